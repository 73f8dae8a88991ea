// Package models defines the data structures used throughout the application.
//
// Go Pattern: Models are plain structs with JSON tags for serialization.
// The `db` tags work with sqlx for database column mapping. Request and
// response DTOs live next to the persisted rows so handlers, services and
// the store all speak the same vocabulary.
package models

import (
	"time"
)

// AnalysisMode records how a video was analyzed.
type AnalysisMode string

const (
	ModeSinglePass AnalysisMode = "single"
	ModeSegmented  AnalysisMode = "segmented"
)

// JobStatus represents the processing state of an async analysis job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Currency is the only billing currency this service records.
const Currency = "USD"

// TokenUsage is the canonical token-count record used throughout billing.
// A nil *TokenUsage means "unknown", which is not the same as zero.
type TokenUsage struct {
	PromptTokens        int `json:"promptTokens"`
	CompletionTokens    int `json:"completionTokens"`
	TotalTokens         int `json:"totalTokens"`
	CachedContentTokens int `json:"cachedContentTokens"`
}

// Section is one titled block of a parsed analysis.
type Section struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Timestamp *int   `json:"timestamp,omitempty"` // seconds from the start of the video
}

// BillingComputation is the priced view of a TokenUsage.
type BillingComputation struct {
	Usage         *TokenUsage `json:"usage"`
	InputCostUSD  float64     `json:"inputCostUsd"`
	OutputCostUSD float64     `json:"outputCostUsd"`
	TotalCostUSD  float64     `json:"totalCostUsd"`
}

// LedgerEntry is one append-only row of billed usage.
type LedgerEntry struct {
	RequestID           string    `json:"requestId" db:"request_id"`
	UserID              *string   `json:"userId,omitempty" db:"user_id"`
	SessionID           *string   `json:"sessionId,omitempty" db:"session_id"`
	Model               string    `json:"model" db:"model"`
	PromptTokens        int       `json:"promptTokens" db:"prompt_tokens"`
	CompletionTokens    int       `json:"completionTokens" db:"completion_tokens"`
	TotalTokens         int       `json:"totalTokens" db:"total_tokens"`
	CachedContentTokens int       `json:"cachedContentTokens" db:"cached_content_tokens"`
	InputCostUSD        float64   `json:"inputCostUsd" db:"input_cost_usd"`
	OutputCostUSD       float64   `json:"outputCostUsd" db:"output_cost_usd"`
	TotalCostUSD        float64   `json:"totalCostUsd" db:"total_cost_usd"`
	Currency            string    `json:"currency" db:"currency"`
	SourceURL           *string   `json:"sourceUrl,omitempty" db:"source_url"`
	CreatedAt           time.Time `json:"createdAt" db:"created_at"`
}

// Requester identifies who is spending budget. UserID is nil when the
// caller authenticated with an API key that is not linked to a user; the
// daily limit then applies to SessionID ("apikey:<id>").
type Requester struct {
	UserID    *string
	SessionID *string
}

// --- Request/Response DTOs ---

// AnalyzeRequest is the JSON body for POST /api/v1/analyze and /api/v1/analyses.
// Go Pattern: gin's `binding` tags run go-playground/validator before the
// handler sees the struct, so range checks live next to the field.
type AnalyzeRequest struct {
	YouTubeURL      string `json:"youtubeUrl" binding:"required"`
	Prompt          string `json:"prompt" binding:"required,min=10,max=500"`
	EnableChunking  bool   `json:"enableChunking"`
	SegmentDuration *int   `json:"segmentDuration,omitempty" binding:"omitempty,min=1,max=3600"`
	MaxConcurrency  *int   `json:"maxConcurrency,omitempty" binding:"omitempty,min=1,max=16"`
}

// AnalysisRequest is an accepted, normalized AnalyzeRequest. Immutable once built.
type AnalysisRequest struct {
	SourceURL            string `json:"sourceUrl"`
	Prompt               string `json:"prompt"`
	EnableSegmentation   bool   `json:"enableSegmentation"`
	SegmentLengthSeconds int    `json:"segmentLengthSeconds"`
	MaxConcurrency       int    `json:"maxConcurrency"`
}

// BillingSnapshot is the billing block reported with every analysis response.
type BillingSnapshot struct {
	Usage               *TokenUsage `json:"usage"`
	InputCostUSD        float64     `json:"inputCostUsd"`
	OutputCostUSD       float64     `json:"outputCostUsd"`
	TotalCostUSD        float64     `json:"totalCostUsd"`
	Currency            string      `json:"currency"`
	RequestID           string      `json:"requestId,omitempty"`
	UserSpendTodayUSD   *float64    `json:"userSpendTodayUsd,omitempty"`
	GlobalSpendTodayUSD float64     `json:"globalSpendTodayUsd"`
	UserDailyLimitUSD   float64     `json:"userDailyLimitUsd"`
	GlobalDailyLimitUSD float64     `json:"globalDailyLimitUsd"`
}

// AnalysisMetadata describes how a response was produced.
type AnalysisMetadata struct {
	Model                string           `json:"model"`
	ProcessingTimeMs     int64            `json:"processingTimeMs"`
	AnalysisMode         AnalysisMode     `json:"analysisMode"`
	VideoDurationSeconds *int             `json:"videoDurationSeconds,omitempty"`
	SegmentCount         int              `json:"segmentCount,omitempty"`
	DowngradeReason      string           `json:"downgradeReason,omitempty"`
	Billing              *BillingSnapshot `json:"billing,omitempty"`
}

// AnalysisResponse is returned by the analyze endpoints. Callers must check
// Error first: on failure the remaining fields are zero-valued.
type AnalysisResponse struct {
	Summary     string           `json:"summary"`
	Sections    []Section        `json:"sections"`
	RawAnalysis string           `json:"rawAnalysis"`
	Metadata    AnalysisMetadata `json:"metadata"`
	Error       string           `json:"error,omitempty"`
}

// AnalysisJob is an async analysis tracked in the database.
// Request and Response hold JSON documents.
type AnalysisJob struct {
	ID           string    `json:"id" db:"id"`
	UserID       *string   `json:"-" db:"user_id"`
	SessionID    *string   `json:"-" db:"session_id"`
	Status       JobStatus `json:"status" db:"status"`
	Request      string    `json:"-" db:"request"`
	Response     string    `json:"-" db:"response"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AnalysisJobResponse is the API view of an AnalysisJob.
type AnalysisJobResponse struct {
	AnalysisJob
	Request *AnalysisRequest  `json:"request,omitempty"`
	Result  *AnalysisResponse `json:"result,omitempty"`
}

// SpendSnapshot is returned by GET /api/v1/usage/today.
type SpendSnapshot struct {
	Day                 string   `json:"day"` // UTC date, YYYY-MM-DD
	UserSpendTodayUSD   *float64 `json:"userSpendTodayUsd,omitempty"`
	UserRemainingUSD    *float64 `json:"userRemainingUsd,omitempty"`
	GlobalSpendTodayUSD float64  `json:"globalSpendTodayUsd"`
	GlobalRemainingUSD  float64  `json:"globalRemainingUsd"`
	UserDailyLimitUSD   float64  `json:"userDailyLimitUsd"`
	GlobalDailyLimitUSD float64  `json:"globalDailyLimitUsd"`
}

// --- Auth ---

// User is an account that can sign in and spend budget.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Name         string    `json:"name" db:"name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// APIKey represents an API key for authentication.
// Note: We store the HASH of the key, never the raw key itself.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	UserID     *string    `json:"user_id,omitempty" db:"user_id"`
	KeyHash    string     `json:"-" db:"key_hash"`
	KeyPrefix  string     `json:"key_prefix" db:"key_prefix"`
	Name       string     `json:"name" db:"name"`
	Active     bool       `json:"active" db:"active"`
	RateLimit  int        `json:"rate_limit" db:"rate_limit"` // Requests per hour
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// RegisterRequest is the JSON body for POST /api/v1/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

// LoginRequest is the JSON body for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries a freshly issued token and the session it opens.
// Ledger rows written with the token carry SessionID.
type AuthResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// MeResponse describes the signed-in caller and today's spend.
type MeResponse struct {
	User      User           `json:"user"`
	SessionID string         `json:"session_id,omitempty"`
	Usage     *SpendSnapshot `json:"usage,omitempty"`
}

// CreateAPIKeyRequest is the JSON body for POST /api/v1/keys.
type CreateAPIKeyRequest struct {
	Name      string  `json:"name" binding:"required"`
	UserID    *string `json:"user_id,omitempty"`    // Optional: bill spend to this user
	RateLimit int     `json:"rate_limit,omitempty"` // 0 = use default
}

// CreateAPIKeyResponse includes the raw key, shown only once at creation time.
type CreateAPIKeyResponse struct {
	APIKey
	RawKey string `json:"raw_key"`
}

// ErrorResponse is the standard error format for non-analysis endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Model    string `json:"model"`
	Workers  int    `json:"workers"`
	Queued   int    `json:"queued"`
}
