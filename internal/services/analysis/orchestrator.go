// Package analysis coordinates a full video analysis: duration lookup, mode
// decision, bounded concurrent segment calls, reassembly, section parsing,
// and the billing that wraps it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/billing"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/gemini"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/scheduler"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/segment"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/video"
)

// ErrModelCall is wrapped by every model call failure.
var ErrModelCall = errors.New("model call failed")

// Downgrade reasons reported in metadata when segmentation was requested
// but single-pass ran instead.
const (
	ReasonUnknownDuration = "video duration unknown"
	ReasonTooShort        = "video is not longer than one segment"
	ReasonNoWindows       = "backend does not support segment windows"
)

// Analyzer is the model collaborator. *gemini.Client satisfies it.
type Analyzer interface {
	Generate(ctx context.Context, req gemini.Request) (*gemini.Result, error)
	Model() string
	SupportsWindows() bool
}

// ModelCallError reports a failed model call. Usage holds whatever the
// calls that did complete consumed, so it can still be billed.
type ModelCallError struct {
	Segment int // 1-based; 0 for a single-pass call
	Err     error
	Usage   *models.TokenUsage
}

func (e *ModelCallError) Error() string {
	if e.Segment > 0 {
		return fmt.Sprintf("segment %d analysis failed: %v", e.Segment, e.Err)
	}
	return fmt.Sprintf("video analysis failed: %v", e.Err)
}

func (e *ModelCallError) Unwrap() []error { return []error{ErrModelCall, e.Err} }

// SegmentResult is one completed segment call.
type SegmentResult struct {
	Index int
	Start int
	End   int
	Text  string
	Usage *models.TokenUsage
}

// Report is the orchestrator's output before billing.
type Report struct {
	Mode            models.AnalysisMode
	DurationSeconds *int
	SegmentCount    int
	DowngradeReason string
	Summary         string
	Sections        []models.Section
	RawAnalysis     string
	Usage           *models.TokenUsage
}

// Limits are the output-token ceilings per call.
type Limits struct {
	SinglePassMaxOutputTokens int
	SegmentMaxOutputTokens    int
}

// Orchestrator runs one analysis end to end, without billing.
type Orchestrator struct {
	analyzer  Analyzer
	durations video.DurationResolver
	limits    Limits
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(analyzer Analyzer, durations video.DurationResolver, limits Limits) *Orchestrator {
	return &Orchestrator{analyzer: analyzer, durations: durations, limits: limits}
}

// Model returns the analyzer's model id.
func (o *Orchestrator) Model() string { return o.analyzer.Model() }

// DecideMode picks segmented mode only when segmentation was requested, the
// duration is known and longer than one segment, and the backend can limit
// a call to a time window. Otherwise it returns single-pass and, if
// segmentation was requested, the reason it was not used.
func DecideMode(req models.AnalysisRequest, duration int, known, windows bool) (models.AnalysisMode, string) {
	switch {
	case !req.EnableSegmentation:
		return models.ModeSinglePass, ""
	case !known || duration <= 0:
		return models.ModeSinglePass, ReasonUnknownDuration
	case duration <= req.SegmentLengthSeconds:
		return models.ModeSinglePass, ReasonTooShort
	case !windows:
		return models.ModeSinglePass, ReasonNoWindows
	default:
		return models.ModeSegmented, ""
	}
}

// Run analyzes req. A model failure in either mode fails the whole run with
// a *ModelCallError; duration problems only downgrade to single-pass.
func (o *Orchestrator) Run(ctx context.Context, req models.AnalysisRequest) (*Report, error) {
	report := &Report{}

	var duration int
	var known bool
	if req.EnableSegmentation {
		duration, known = o.durations.Resolve(ctx, req.SourceURL)
		if known && duration > 0 {
			d := duration
			report.DurationSeconds = &d
			log.Printf("⏱️  Video duration: %s (%d seconds)", segment.Clock(duration), duration)
		}
	}

	report.Mode, report.DowngradeReason = DecideMode(req, duration, known, o.analyzer.SupportsWindows())
	if report.DowngradeReason != "" {
		log.Printf("⚠️  Segmentation requested but running single-pass: %s", report.DowngradeReason)
	}

	if report.Mode == models.ModeSegmented {
		if err := o.runSegmented(ctx, req, duration, report); err != nil {
			return nil, err
		}
		return report, nil
	}

	if err := o.runSinglePass(ctx, req, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (o *Orchestrator) runSinglePass(ctx context.Context, req models.AnalysisRequest, report *Report) error {
	log.Printf("🎬 Analyzing full video with %s", o.analyzer.Model())

	res, err := o.analyzer.Generate(ctx, gemini.Request{
		VideoURL:        req.SourceURL,
		Prompt:          req.Prompt,
		MaxOutputTokens: o.limits.SinglePassMaxOutputTokens,
	})
	if err != nil {
		return &ModelCallError{Err: err}
	}

	report.RawAnalysis = res.Text
	report.Usage = res.Usage
	report.Summary, report.Sections = summarizeSinglePass(res.Text)
	return nil
}

func (o *Orchestrator) runSegmented(ctx context.Context, req models.AnalysisRequest, duration int, report *Report) error {
	segs := segment.Split(duration, req.SegmentLengthSeconds)
	limit := max(1, min(req.MaxConcurrency, len(segs)))
	report.SegmentCount = len(segs)

	log.Printf("🎬 Analyzing %d segments of %ds with %s (concurrency %d)",
		len(segs), req.SegmentLengthSeconds, o.analyzer.Model(), limit)

	// The first failure cancels runCtx so segments that have not started yet
	// return immediately. Calls already in flight run on ctx and finish, so
	// their usage is still billed.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make([]scheduler.Task[SegmentResult], len(segs))
	for i, s := range segs {
		s := s // per-iteration copy (go 1.21 loop semantics)
		tasks[i] = func() (SegmentResult, error) {
			if err := runCtx.Err(); err != nil {
				return SegmentResult{}, err
			}
			started := time.Now()
			res, err := o.analyzer.Generate(ctx, gemini.Request{
				VideoURL:        req.SourceURL,
				Prompt:          SegmentPrompt(s, req.Prompt),
				Window:          &gemini.Window{Start: s.Start, End: s.End},
				MaxOutputTokens: o.limits.SegmentMaxOutputTokens,
			})
			if err != nil {
				cancel()
				return SegmentResult{}, err
			}
			log.Printf("  ✓ %s complete (%s)", s, time.Since(started).Round(time.Millisecond))
			return SegmentResult{Index: s.Index, Start: s.Start, End: s.End, Text: res.Text, Usage: res.Usage}, nil
		}
	}

	outcomes := scheduler.Run(tasks, limit)

	results := make([]SegmentResult, 0, len(outcomes))
	usages := make([]*models.TokenUsage, 0, len(outcomes))
	var failure *ModelCallError
	for i, out := range outcomes {
		if out.Err != nil {
			// Segments skipped because of our own cancel are not the cause.
			if failure == nil || (errors.Is(failure.Err, context.Canceled) && !errors.Is(out.Err, context.Canceled)) {
				failure = &ModelCallError{Segment: segs[i].Index, Err: out.Err}
			}
			continue
		}
		results = append(results, out.Value)
		usages = append(usages, out.Value.Usage)
	}

	if failure != nil {
		failure.Usage = billing.Merge(usages...)
		log.Printf("❌ %v (%d of %d segments completed)", failure, len(results), len(segs))
		return failure
	}

	slices.SortFunc(results, func(a, b SegmentResult) int { return a.Index - b.Index })

	report.RawAnalysis = RenderSegments(results)
	report.Usage = billing.Merge(usages...)
	report.Summary, report.Sections = summarizeSegmented(report.RawAnalysis, len(results))
	return nil
}
