package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/billing"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/budget"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/video"
)

// ErrValidation is wrapped by every request validation failure.
var ErrValidation = errors.New("invalid request")

// Prompt length bounds, in characters.
const (
	MinPromptLength = 10
	MaxPromptLength = 500
)

// Defaults fill in optional request fields.
type Defaults struct {
	SegmentSeconds int
	Concurrency    int
}

// Service is the billing-aware entry point: admission, orchestration, cost,
// and the ledger write.
type Service struct {
	orch     *Orchestrator
	admitter *budget.Controller
	ledger   budget.Ledger
	prices   *billing.PriceTable
	defaults Defaults
}

// NewService wires an analysis service.
func NewService(orch *Orchestrator, admitter *budget.Controller, ledger budget.Ledger, prices *billing.PriceTable, defaults Defaults) *Service {
	return &Service{orch: orch, admitter: admitter, ledger: ledger, prices: prices, defaults: defaults}
}

// Model returns the model every analysis runs on.
func (s *Service) Model() string { return s.orch.Model() }

// NewRequest validates client input and fills defaults.
func (s *Service) NewRequest(in models.AnalyzeRequest) (models.AnalysisRequest, error) {
	watchURL, _, err := video.ParseYouTubeURL(in.YouTubeURL)
	if err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	prompt := strings.TrimSpace(in.Prompt)
	if n := utf8.RuneCountInString(prompt); n < MinPromptLength || n > MaxPromptLength {
		return models.AnalysisRequest{}, fmt.Errorf("%w: prompt must be %d-%d characters", ErrValidation, MinPromptLength, MaxPromptLength)
	}

	req := models.AnalysisRequest{
		SourceURL:            watchURL,
		Prompt:               prompt,
		EnableSegmentation:   in.EnableChunking,
		SegmentLengthSeconds: s.defaults.SegmentSeconds,
		MaxConcurrency:       s.defaults.Concurrency,
	}
	if in.SegmentDuration != nil {
		if *in.SegmentDuration <= 0 {
			return models.AnalysisRequest{}, fmt.Errorf("%w: segmentDuration must be positive", ErrValidation)
		}
		req.SegmentLengthSeconds = *in.SegmentDuration
	}
	if in.MaxConcurrency != nil {
		if *in.MaxConcurrency <= 0 {
			return models.AnalysisRequest{}, fmt.Errorf("%w: maxConcurrency must be positive", ErrValidation)
		}
		req.MaxConcurrency = *in.MaxConcurrency
	}
	return req, nil
}

// Admit runs the pre-flight budget check. No model call happens before it.
func (s *Service) Admit(ctx context.Context, requester models.Requester, req models.AnalysisRequest) (*budget.Admission, error) {
	adm, err := s.admitter.Admit(ctx, requester, req)
	if err != nil {
		var denied *budget.DeniedError
		if errors.As(err, &denied) {
			log.Printf("🚫 Analysis denied: %v", denied)
		}
		return nil, err
	}
	log.Printf("✅ Analysis admitted (worst case $%.4f, global spend $%.4f)", adm.Estimate.TotalCostUSD, adm.GlobalSpendBefore)
	return adm, nil
}

// Release drops an admission's budget reservation without running it.
func (s *Service) Release(adm *budget.Admission) {
	s.admitter.Release(adm)
}

// Execute runs an admitted request, bills what it used, and builds the
// response. On failure the returned response carries the error message and
// zero-valued billing; usage from completed segments is still recorded.
// The admission's reservation is released once the ledger write is done.
func (s *Service) Execute(ctx context.Context, requester models.Requester, req models.AnalysisRequest, adm *budget.Admission) (*models.AnalysisResponse, error) {
	defer s.admitter.Release(adm)
	started := time.Now()
	model := s.orch.Model()

	report, runErr := s.orch.Run(ctx, req)
	if runErr != nil {
		var mce *ModelCallError
		if errors.As(runErr, &mce) && mce.Usage != nil {
			s.bill(ctx, requester, req, model, mce.Usage)
		}
		return s.ErrorResponse(runErr.Error()), runErr
	}

	computation, requestID, err := s.bill(ctx, requester, req, model, report.Usage)
	if err != nil {
		return s.ErrorResponse(err.Error()), err
	}

	userSpend, globalSpend := s.admitter.SpendAfter(ctx, adm, computation.TotalCostUSD)
	limits := s.admitter.Limits()

	resp := &models.AnalysisResponse{
		Summary:     report.Summary,
		Sections:    report.Sections,
		RawAnalysis: report.RawAnalysis,
		Metadata: models.AnalysisMetadata{
			Model:                model,
			ProcessingTimeMs:     time.Since(started).Milliseconds(),
			AnalysisMode:         report.Mode,
			VideoDurationSeconds: report.DurationSeconds,
			SegmentCount:         report.SegmentCount,
			DowngradeReason:      report.DowngradeReason,
			Billing: &models.BillingSnapshot{
				Usage:               computation.Usage,
				InputCostUSD:        computation.InputCostUSD,
				OutputCostUSD:       computation.OutputCostUSD,
				TotalCostUSD:        computation.TotalCostUSD,
				Currency:            models.Currency,
				RequestID:           requestID,
				UserSpendTodayUSD:   userSpend,
				GlobalSpendTodayUSD: globalSpend,
				UserDailyLimitUSD:   limits.UserDailyUSD,
				GlobalDailyLimitUSD: limits.GlobalDailyUSD,
			},
		},
	}

	log.Printf("✅ Analysis complete: %s mode, %d sections, $%.6f in %dms",
		report.Mode, len(report.Sections), computation.TotalCostUSD, resp.Metadata.ProcessingTimeMs)
	return resp, nil
}

// Analyze validates, admits and executes in one call.
func (s *Service) Analyze(ctx context.Context, requester models.Requester, in models.AnalyzeRequest) (*models.AnalysisResponse, error) {
	req, err := s.NewRequest(in)
	if err != nil {
		return s.ErrorResponse(err.Error()), err
	}
	adm, err := s.Admit(ctx, requester, req)
	if err != nil {
		return s.ErrorResponse(err.Error()), err
	}
	return s.Execute(ctx, requester, req, adm)
}

// ErrorResponse builds a well-formed failure response with zero billing.
func (s *Service) ErrorResponse(msg string) *models.AnalysisResponse {
	return ErrorResponse(s.orch.Model(), msg)
}

// ErrorResponse builds a well-formed failure response with zero billing.
func ErrorResponse(model, msg string) *models.AnalysisResponse {
	return &models.AnalysisResponse{
		Sections: []models.Section{},
		Metadata: models.AnalysisMetadata{
			Model:   model,
			Billing: &models.BillingSnapshot{Currency: models.Currency},
		},
		Error: msg,
	}
}

// bill prices usage and appends it to the ledger. Pricing errors are
// returned; ledger write errors are only logged.
func (s *Service) bill(ctx context.Context, requester models.Requester, req models.AnalysisRequest, model string, usage *models.TokenUsage) (models.BillingComputation, string, error) {
	computation, err := s.prices.Cost(model, usage)
	if err != nil {
		log.Printf("❌ Cannot bill analysis: %v", err)
		return models.BillingComputation{}, "", err
	}

	entry := &models.LedgerEntry{
		UserID:        requester.UserID,
		SessionID:     requester.SessionID,
		Model:         model,
		InputCostUSD:  computation.InputCostUSD,
		OutputCostUSD: computation.OutputCostUSD,
		TotalCostUSD:  computation.TotalCostUSD,
		Currency:      models.Currency,
		CreatedAt:     time.Now().UTC(),
	}
	if usage != nil {
		entry.PromptTokens = usage.PromptTokens
		entry.CompletionTokens = usage.CompletionTokens
		entry.TotalTokens = usage.TotalTokens
		entry.CachedContentTokens = usage.CachedContentTokens
	}
	if req.SourceURL != "" {
		src := req.SourceURL
		entry.SourceURL = &src
	}

	// Writes use a context detached from the caller so a disconnected client
	// does not drop the spend record.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	requestID, err := s.ledger.Record(writeCtx, entry)
	if err != nil {
		log.Printf("⚠️  Failed to record usage in ledger ($%.6f, model %s): %v", computation.TotalCostUSD, model, err)
		return computation, "", nil
	}
	return computation, requestID, nil
}
