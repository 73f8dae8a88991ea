// Package gemini calls the Gemini generateContent API for a YouTube video,
// optionally restricted to a time window.
//
// Two backends are supported. Vertex AI authenticates with Application
// Default Credentials and honours videoMetadata start/end offsets, so it can
// analyze one segment at a time. The Google AI (API key) backend only
// analyzes whole videos.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/billing"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/retry"
)

// Backend selects the API surface.
type Backend string

const (
	BackendVertexAI Backend = "vertex-ai"
	BackendGoogleAI Backend = "google-ai"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ErrNoContent is returned when the model answers without any text.
var ErrNoContent = errors.New("no response generated")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures a Client.
type Config struct {
	Backend     Backend
	Model       string
	Project     string // vertex-ai
	Location    string // vertex-ai
	APIKey      string // google-ai
	Temperature float64
	TopK        *int
	TopP        *float64
	CallTimeout time.Duration
	RetryDelays []time.Duration

	// BaseURL replaces the backend's default endpoint host.
	BaseURL string
	// TokenSource overrides Application Default Credentials for vertex-ai.
	TokenSource oauth2.TokenSource
}

// Window restricts a call to [Start, End) seconds of the video.
type Window struct {
	Start int
	End   int
}

// Request is one generateContent call.
type Request struct {
	VideoURL        string
	Prompt          string
	Window          *Window
	MaxOutputTokens int
}

// Result is the model's text and the normalized usage for this call alone.
type Result struct {
	Text  string
	Usage *models.TokenUsage
}

// Client is a Gemini generateContent client.
type Client struct {
	cfg        Config
	tokens     oauth2.TokenSource
	httpClient *http.Client
}

// New creates a client. For vertex-ai without an explicit TokenSource it
// resolves Application Default Credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = []time.Duration{0, 2 * time.Second, 8 * time.Second}
	}

	c := &Client{
		cfg: cfg,
		// Go Pattern: Always configure timeouts on HTTP clients.
		// Each attempt also gets its own context deadline from the retry policy.
		httpClient: &http.Client{Timeout: cfg.CallTimeout},
	}

	switch cfg.Backend {
	case BackendVertexAI:
		if cfg.Project == "" {
			return nil, fmt.Errorf("vertex-ai backend requires a Google Cloud project")
		}
		c.tokens = cfg.TokenSource
		if c.tokens == nil {
			ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
			if err != nil {
				return nil, fmt.Errorf("failed to load Google credentials: %w", err)
			}
			c.tokens = ts
		}
	case BackendGoogleAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("google-ai backend requires an API key; set GOOGLE_API_KEY")
		}
	default:
		return nil, fmt.Errorf("unknown gemini backend %q (use vertex-ai or google-ai)", cfg.Backend)
	}
	return c, nil
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.cfg.Model }

// SupportsWindows reports whether calls may be limited to a time window.
func (c *Client) SupportsWindows() bool { return c.cfg.Backend == BackendVertexAI }

// --- generateContent wire types ---

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text          string         `json:"text,omitempty"`
	FileData      *fileData      `json:"fileData,omitempty"`
	VideoMetadata *videoMetadata `json:"videoMetadata,omitempty"`
}

type fileData struct {
	FileURI  string `json:"fileUri"`
	MimeType string `json:"mimeType,omitempty"`
}

type videoMetadata struct {
	StartOffset string `json:"startOffset"`
	EndOffset   string `json:"endOffset"`
}

type generationConfig struct {
	Temperature     float64  `json:"temperature"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *billing.ProviderUsage `json:"usageMetadata"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends one request, retrying on 429, 5xx and transport errors.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Window != nil && !c.SupportsWindows() {
		return nil, fmt.Errorf("%s backend does not support segment windows", c.cfg.Backend)
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result *Result
	policy := retry.Policy{Name: "gemini generateContent", Delays: c.cfg.RetryDelays, AttemptTimeout: c.cfg.CallTimeout}
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		r, err := c.send(ctx, body)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return retry.Permanent(err)
			}
			if errors.Is(err, ErrNoContent) {
				return retry.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) buildRequest(req Request) generateRequest {
	video := part{FileData: &fileData{FileURI: req.VideoURL}}
	if c.cfg.Backend == BackendVertexAI {
		video.FileData.MimeType = "video/mp4"
	}
	if req.Window != nil {
		video.VideoMetadata = &videoMetadata{
			StartOffset: fmt.Sprintf("%ds", req.Window.Start),
			EndOffset:   fmt.Sprintf("%ds", req.Window.End),
		}
	}

	return generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{video, {Text: req.Prompt}},
		}},
		GenerationConfig: generationConfig{
			Temperature:     c.cfg.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
			TopK:            c.cfg.TopK,
			TopP:            c.cfg.TopP,
		},
	}
}

func (c *Client) endpoint() string {
	switch c.cfg.Backend {
	case BackendVertexAI:
		base := c.cfg.BaseURL
		if base == "" {
			host := c.cfg.Location + "-aiplatform.googleapis.com"
			if c.cfg.Location == "global" {
				host = "aiplatform.googleapis.com"
			}
			base = "https://" + host
		}
		return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
			strings.TrimRight(base, "/"), c.cfg.Project, c.cfg.Location, c.cfg.Model)
	default:
		base := c.cfg.BaseURL
		if base == "" {
			base = "https://generativelanguage.googleapis.com"
		}
		return fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(base, "/"), c.cfg.Model)
	}
}

func (c *Client) send(ctx context.Context, body []byte) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to get access token: %w", err))
		}
		tok.SetAuthHeader(httpReq)
	} else {
		httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close() // Go Pattern: ALWAYS close response bodies!

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	text := extractText(gr)
	if text == "" {
		reason := "empty candidates"
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + gr.PromptFeedback.BlockReason
		} else if len(gr.Candidates) > 0 && gr.Candidates[0].FinishReason != "" {
			reason = "finish reason " + gr.Candidates[0].FinishReason
		}
		log.Printf("⚠️  Gemini returned no text (%s)", reason)
		return nil, fmt.Errorf("%w (%s)", ErrNoContent, reason)
	}

	return &Result{Text: text, Usage: billing.Normalize(gr.UsageMetadata)}, nil
}

// extractText joins the trimmed text parts of every candidate.
func extractText(gr generateResponse) string {
	var texts []string
	for _, cand := range gr.Candidates {
		for _, p := range cand.Content.Parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				texts = append(texts, t)
			}
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n\n"))
}
