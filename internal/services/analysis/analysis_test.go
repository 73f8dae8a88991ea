package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/billing"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/budget"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/gemini"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/segment"
)

const testVideo = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// fakeAnalyzer records every request and answers with respond.
type fakeAnalyzer struct {
	windows bool
	respond func(req gemini.Request) (*gemini.Result, error)

	mu       sync.Mutex
	requests []gemini.Request
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeAnalyzer) Model() string         { return "test-model" }
func (f *fakeAnalyzer) SupportsWindows() bool { return f.windows }

func (f *fakeAnalyzer) Generate(ctx context.Context, req gemini.Request) (*gemini.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeAnalyzer) calls() []gemini.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gemini.Request(nil), f.requests...)
}

type fixedDuration struct {
	secs int
	ok   bool
}

func (d fixedDuration) Resolve(context.Context, string) (int, bool) { return d.secs, d.ok }

func intPtr(v int) *int { return &v }

func segmentUsage() *models.TokenUsage {
	return billing.Normalize(&billing.ProviderUsage{PromptTokenCount: intPtr(100), CandidatesTokenCount: intPtr(50)})
}

// reverseDelay makes earlier windows finish last.
func reverseDelay(req gemini.Request) (*gemini.Result, error) {
	start := 0
	if req.Window != nil {
		start = req.Window.Start
	}
	time.Sleep(time.Duration(400-start) * 50 * time.Microsecond)
	return &gemini.Result{
		Text:  fmt.Sprintf("Events from %d (00:05)\nsecond line", start),
		Usage: segmentUsage(),
	}, nil
}

func segmentedRequest(length, concurrency int) models.AnalysisRequest {
	return models.AnalysisRequest{
		SourceURL:            testVideo,
		Prompt:               "Summarize the key moments",
		EnableSegmentation:   true,
		SegmentLengthSeconds: length,
		MaxConcurrency:       concurrency,
	}
}

var testLimits = Limits{SinglePassMaxOutputTokens: 8192, SegmentMaxOutputTokens: 2048}

func TestRunSegmentedEndToEnd(t *testing.T) {
	fa := &fakeAnalyzer{windows: true, respond: reverseDelay}
	o := NewOrchestrator(fa, fixedDuration{secs: 400, ok: true}, testLimits)

	report, err := o.Run(context.Background(), segmentedRequest(180, 3))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.Mode != models.ModeSegmented || report.SegmentCount != 3 {
		t.Fatalf("mode = %s, segments = %d, want segmented/3", report.Mode, report.SegmentCount)
	}
	if report.DurationSeconds == nil || *report.DurationSeconds != 400 {
		t.Errorf("DurationSeconds = %v, want 400", report.DurationSeconds)
	}

	windows := map[gemini.Window]bool{}
	for _, c := range fa.calls() {
		if c.Window == nil {
			t.Fatal("segment call without a window")
		}
		windows[*c.Window] = true
		if c.MaxOutputTokens != 2048 {
			t.Errorf("segment MaxOutputTokens = %d, want 2048", c.MaxOutputTokens)
		}
		if !strings.HasPrefix(c.Prompt, fmt.Sprintf("Analyze the video segment from %ds to %ds.", c.Window.Start, c.Window.End)) {
			t.Errorf("segment prompt not framed: %q", c.Prompt)
		}
	}
	for _, w := range []gemini.Window{{Start: 0, End: 180}, {Start: 180, End: 360}, {Start: 360, End: 400}} {
		if !windows[w] {
			t.Errorf("missing window %+v", w)
		}
	}

	wantUsage := models.TokenUsage{PromptTokens: 300, CompletionTokens: 150, TotalTokens: 450}
	if report.Usage == nil || *report.Usage != wantUsage {
		t.Errorf("Usage = %+v, want %+v", report.Usage, wantUsage)
	}

	h1 := strings.Index(report.RawAnalysis, "## Segment 1 (00:00 – 03:00)")
	h2 := strings.Index(report.RawAnalysis, "## Segment 2 (03:00 – 06:00)")
	h3 := strings.Index(report.RawAnalysis, "## Segment 3 (06:00 – 06:40)")
	if h1 < 0 || h2 < 0 || h3 < 0 || !(h1 < h2 && h2 < h3) {
		t.Errorf("segment headers missing or out of order (%d, %d, %d):\n%s", h1, h2, h3, report.RawAnalysis)
	}

	if len(report.Sections) != 3 || report.Sections[1].Timestamp == nil || *report.Sections[1].Timestamp != 180 {
		t.Errorf("Sections = %+v, want 3 with segment 2 at 180s", report.Sections)
	}
	if !strings.HasPrefix(report.Summary, "Analyzed 3 segments. Events from 0") {
		t.Errorf("Summary = %q", report.Summary)
	}
}

func TestRunRespectsConcurrency(t *testing.T) {
	fa := &fakeAnalyzer{windows: true, respond: reverseDelay}
	o := NewOrchestrator(fa, fixedDuration{secs: 400 * 5, ok: true}, testLimits)

	if _, err := o.Run(context.Background(), segmentedRequest(100, 2)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if p := fa.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
	if n := len(fa.calls()); n != 20 {
		t.Errorf("made %d calls, want 20", n)
	}
}

func TestDecideMode(t *testing.T) {
	req := segmentedRequest(180, 3)
	plain := req
	plain.EnableSegmentation = false

	tests := []struct {
		name       string
		req        models.AnalysisRequest
		duration   int
		known      bool
		windows    bool
		wantMode   models.AnalysisMode
		wantReason string
	}{
		{name: "not requested", req: plain, duration: 4000, known: true, windows: true, wantMode: models.ModeSinglePass},
		{name: "unknown duration", req: req, known: false, windows: true, wantMode: models.ModeSinglePass, wantReason: ReasonUnknownDuration},
		{name: "zero duration", req: req, duration: 0, known: true, windows: true, wantMode: models.ModeSinglePass, wantReason: ReasonUnknownDuration},
		{name: "total equals length", req: req, duration: 180, known: true, windows: true, wantMode: models.ModeSinglePass, wantReason: ReasonTooShort},
		{name: "total is length plus one", req: req, duration: 181, known: true, windows: true, wantMode: models.ModeSegmented},
		{name: "backend without windows", req: req, duration: 4000, known: true, windows: false, wantMode: models.ModeSinglePass, wantReason: ReasonNoWindows},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, reason := DecideMode(tt.req, tt.duration, tt.known, tt.windows)
			if mode != tt.wantMode || reason != tt.wantReason {
				t.Errorf("DecideMode() = (%s, %q), want (%s, %q)", mode, reason, tt.wantMode, tt.wantReason)
			}
		})
	}

	if n := len(segment.Split(181, 180)); n != 2 {
		t.Errorf("Split(181, 180) = %d windows, want 2", n)
	}
}

func TestRunBoundaryLengths(t *testing.T) {
	tests := []struct {
		duration  int
		wantMode  models.AnalysisMode
		wantCalls int
	}{
		{duration: 180, wantMode: models.ModeSinglePass, wantCalls: 1},
		{duration: 181, wantMode: models.ModeSegmented, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.duration), func(t *testing.T) {
			fa := &fakeAnalyzer{windows: true, respond: reverseDelay}
			o := NewOrchestrator(fa, fixedDuration{secs: tt.duration, ok: true}, testLimits)

			report, err := o.Run(context.Background(), segmentedRequest(180, 3))
			if err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if report.Mode != tt.wantMode || len(fa.calls()) != tt.wantCalls {
				t.Errorf("mode %s with %d calls, want %s with %d", report.Mode, len(fa.calls()), tt.wantMode, tt.wantCalls)
			}
		})
	}
}

func TestRunDowngradesOnUnknownDuration(t *testing.T) {
	fa := &fakeAnalyzer{windows: true, respond: func(gemini.Request) (*gemini.Result, error) {
		return &gemini.Result{
			Text:  "# Overview\nA talk about Go.\nMore detail.\n## Concurrency (12:30)\nGoroutines",
			Usage: segmentUsage(),
		}, nil
	}}
	o := NewOrchestrator(fa, fixedDuration{}, testLimits)

	report, err := o.Run(context.Background(), segmentedRequest(180, 3))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.Mode != models.ModeSinglePass || report.DowngradeReason != ReasonUnknownDuration {
		t.Errorf("mode = %s reason = %q", report.Mode, report.DowngradeReason)
	}
	calls := fa.calls()
	if len(calls) != 1 || calls[0].Window != nil || calls[0].MaxOutputTokens != 8192 {
		t.Fatalf("single-pass call = %+v", calls)
	}
	if calls[0].Prompt != "Summarize the key moments" {
		t.Errorf("single-pass prompt was reframed: %q", calls[0].Prompt)
	}
	if report.Summary != "A talk about Go." {
		t.Errorf("Summary = %q", report.Summary)
	}
	if len(report.Sections) != 1 || report.Sections[0].Title != "Concurrency (12:30)" || *report.Sections[0].Timestamp != 750 {
		t.Errorf("Sections = %+v", report.Sections)
	}
	if report.DurationSeconds != nil {
		t.Errorf("DurationSeconds = %d, want nil", *report.DurationSeconds)
	}
}

func TestRunSegmentFailureFailsJob(t *testing.T) {
	boom := errors.New("upstream 400")
	fa := &fakeAnalyzer{windows: true, respond: func(req gemini.Request) (*gemini.Result, error) {
		if req.Window.Start == 180 {
			return nil, boom
		}
		return &gemini.Result{Text: "ok", Usage: segmentUsage()}, nil
	}}
	o := NewOrchestrator(fa, fixedDuration{secs: 400, ok: true}, testLimits)

	// Concurrency 1 makes the order deterministic: 1 succeeds, 2 fails, 3 is skipped.
	report, err := o.Run(context.Background(), segmentedRequest(180, 1))
	if report != nil {
		t.Errorf("partial report returned: %+v", report)
	}

	var mce *ModelCallError
	if !errors.As(err, &mce) {
		t.Fatalf("Run() error = %v, want *ModelCallError", err)
	}
	if !errors.Is(err, ErrModelCall) || !errors.Is(err, boom) {
		t.Errorf("error chain = %v", err)
	}
	if mce.Segment != 2 {
		t.Errorf("failed segment = %d, want 2", mce.Segment)
	}
	if mce.Usage == nil || mce.Usage.PromptTokens != 100 {
		t.Errorf("partial usage = %+v, want one segment", mce.Usage)
	}
	if n := len(fa.calls()); n != 2 {
		t.Errorf("made %d calls, want 2 (third segment cancelled)", n)
	}
}

// ctxAnalyzer answers each window after a delay unless ctx ends first.
type ctxAnalyzer struct {
	delays map[int]time.Duration
	fail   map[int]error
	calls  atomic.Int32
}

func (a *ctxAnalyzer) Model() string         { return "test-model" }
func (a *ctxAnalyzer) SupportsWindows() bool { return true }

func (a *ctxAnalyzer) Generate(ctx context.Context, req gemini.Request) (*gemini.Result, error) {
	a.calls.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.delays[req.Window.Start]):
	}
	if err := a.fail[req.Window.Start]; err != nil {
		return nil, err
	}
	return &gemini.Result{Text: "ok", Usage: segmentUsage()}, nil
}

func TestRunSegmentFailureLetsInFlightCallsFinish(t *testing.T) {
	boom := errors.New("boom")
	a := &ctxAnalyzer{
		delays: map[int]time.Duration{0: 10 * time.Millisecond, 180: 30 * time.Millisecond, 360: 0},
		fail:   map[int]error{0: boom},
	}
	o := NewOrchestrator(a, fixedDuration{secs: 400, ok: true}, testLimits)

	// Segments 1 and 2 start together; segment 3 is claimed after segment 1 fails.
	_, err := o.Run(context.Background(), segmentedRequest(180, 2))

	var mce *ModelCallError
	if !errors.As(err, &mce) {
		t.Fatalf("Run() error = %v, want *ModelCallError", err)
	}
	if mce.Segment != 1 || !errors.Is(err, boom) {
		t.Errorf("failure = segment %d, %v; want segment 1, boom", mce.Segment, err)
	}
	if mce.Usage == nil || mce.Usage.PromptTokens != 100 || mce.Usage.CompletionTokens != 50 {
		t.Errorf("partial usage = %+v, want the in-flight second segment", mce.Usage)
	}
	if n := a.calls.Load(); n != 2 {
		t.Errorf("made %d calls, want 2", n)
	}
}

// memLedger is an in-memory budget.Ledger.
type memLedger struct {
	mu        sync.Mutex
	entries   []models.LedgerEntry
	recordErr error
}

func (l *memLedger) Record(_ context.Context, e *models.LedgerEntry) (string, error) {
	if l.recordErr != nil {
		return "", l.recordErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.RequestID = fmt.Sprintf("req-%d", len(l.entries)+1)
	l.entries = append(l.entries, *e)
	return e.RequestID, nil
}

func (l *memLedger) GlobalSpendSince(_ context.Context, since time.Time) (float64, error) {
	return l.sum(since, func(models.LedgerEntry) bool { return true }), nil
}

func (l *memLedger) CallerSpendSince(_ context.Context, caller models.Requester, since time.Time) (float64, error) {
	return l.sum(since, func(e models.LedgerEntry) bool {
		if caller.UserID != nil {
			return e.UserID != nil && *e.UserID == *caller.UserID
		}
		return e.UserID == nil && e.SessionID != nil && caller.SessionID != nil && *e.SessionID == *caller.SessionID
	}), nil
}

func (l *memLedger) sum(since time.Time, match func(models.LedgerEntry) bool) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, e := range l.entries {
		if e.CreatedAt.Before(since) || !match(e) {
			continue
		}
		total = billing.SumUSD(total, e.TotalCostUSD)
	}
	return total
}

func newTestService(fa *fakeAnalyzer, dur fixedDuration, ledger *memLedger, limits budget.Limits) *Service {
	prices := billing.NewPriceTable(map[string]billing.Price{
		"test-model": {InputPerMillionUSD: 1, OutputPerMillionUSD: 2},
	})
	ctrl := budget.NewController(ledger, prices, "test-model", limits, budget.Preflight{
		AssumedVideoSeconds:    3600,
		PromptTokensPerCall:    1000,
		SinglePassOutputTokens: 8192,
		SegmentOutputTokens:    2048,
	})
	return NewService(NewOrchestrator(fa, dur, testLimits), ctrl, ledger, prices, Defaults{SegmentSeconds: 180, Concurrency: 3})
}

func userRequester(id string) models.Requester {
	session := "session-" + id
	return models.Requester{UserID: &id, SessionID: &session}
}

func TestServiceAnalyzeBillsAndRecords(t *testing.T) {
	ledger := &memLedger{}
	fa := &fakeAnalyzer{windows: true, respond: reverseDelay}
	svc := newTestService(fa, fixedDuration{secs: 400, ok: true}, ledger, budget.Limits{UserDailyUSD: 5, GlobalDailyUSD: 50})

	resp, err := svc.Analyze(context.Background(), userRequester("alice"), models.AnalyzeRequest{
		YouTubeURL:      "https://youtu.be/dQw4w9WgXcQ",
		Prompt:          "Summarize the key moments",
		EnableChunking:  true,
		SegmentDuration: intPtr(180),
	})
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("response error = %q", resp.Error)
	}

	b := resp.Metadata.Billing
	// 300 prompt @ $1/M + 150 output @ $2/M
	if b.TotalCostUSD != 0.0006 || b.Currency != "USD" || b.RequestID != "req-1" {
		t.Errorf("billing = %+v", b)
	}
	if b.UserSpendTodayUSD == nil || *b.UserSpendTodayUSD != 0.0006 || b.GlobalSpendTodayUSD != 0.0006 {
		t.Errorf("post-spend totals = %v / %v", b.UserSpendTodayUSD, b.GlobalSpendTodayUSD)
	}
	if b.UserDailyLimitUSD != 5 || b.GlobalDailyLimitUSD != 50 {
		t.Errorf("limits = %v / %v", b.UserDailyLimitUSD, b.GlobalDailyLimitUSD)
	}
	if resp.Metadata.AnalysisMode != models.ModeSegmented || resp.Metadata.SegmentCount != 3 {
		t.Errorf("metadata = %+v", resp.Metadata)
	}

	if len(ledger.entries) != 1 {
		t.Fatalf("ledger has %d entries, want 1", len(ledger.entries))
	}
	e := ledger.entries[0]
	if *e.UserID != "alice" || *e.SessionID != "session-alice" || e.TotalTokens != 450 || *e.SourceURL != testVideo {
		t.Errorf("ledger entry = %+v", e)
	}
}

func TestServiceLedgerFailureIsNotFatal(t *testing.T) {
	ledger := &memLedger{recordErr: errors.New("disk full")}
	fa := &fakeAnalyzer{respond: reverseDelay}
	svc := newTestService(fa, fixedDuration{}, ledger, budget.Limits{UserDailyUSD: 5, GlobalDailyUSD: 50})

	resp, err := svc.Analyze(context.Background(), userRequester("bob"), models.AnalyzeRequest{
		YouTubeURL: testVideo,
		Prompt:     "What happens in this video?",
	})
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if resp.Error != "" || resp.RawAnalysis == "" {
		t.Errorf("analysis result lost: %+v", resp)
	}
	b := resp.Metadata.Billing
	if b.RequestID != "" || b.TotalCostUSD == 0 {
		t.Errorf("billing = %+v, want cost without request id", b)
	}
	// Re-read sees nothing recorded; reported totals come from the ledger.
	if b.GlobalSpendTodayUSD != 0 {
		t.Errorf("GlobalSpendTodayUSD = %v", b.GlobalSpendTodayUSD)
	}
}

func TestServiceDeniedMakesNoModelCall(t *testing.T) {
	ledger := &memLedger{}
	ledger.entries = append(ledger.entries, models.LedgerEntry{UserID: strPtr("carol"), TotalCostUSD: 1, CreatedAt: time.Now().UTC()})
	fa := &fakeAnalyzer{respond: reverseDelay}
	svc := newTestService(fa, fixedDuration{}, ledger, budget.Limits{UserDailyUSD: 1, GlobalDailyUSD: 50})

	resp, err := svc.Analyze(context.Background(), userRequester("carol"), models.AnalyzeRequest{
		YouTubeURL: testVideo,
		Prompt:     "What happens in this video?",
	})

	var denied *budget.DeniedError
	if !errors.As(err, &denied) || denied.Scope != budget.ScopeUser {
		t.Fatalf("Analyze() error = %v, want user denial", err)
	}
	if resp.Error == "" || resp.Metadata.Billing.TotalCostUSD != 0 {
		t.Errorf("denial response = %+v", resp)
	}
	if len(fa.calls()) != 0 {
		t.Errorf("model called %d times after denial", len(fa.calls()))
	}
	if len(ledger.entries) != 1 {
		t.Errorf("denial was billed")
	}
}

func TestServiceBillsPartialUsageOnFailure(t *testing.T) {
	ledger := &memLedger{}
	fa := &fakeAnalyzer{windows: true, respond: func(req gemini.Request) (*gemini.Result, error) {
		if req.Window.Start == 360 {
			return nil, errors.New("quota")
		}
		return &gemini.Result{Text: "ok", Usage: segmentUsage()}, nil
	}}
	svc := newTestService(fa, fixedDuration{secs: 400, ok: true}, ledger, budget.Limits{UserDailyUSD: 5, GlobalDailyUSD: 50})

	resp, err := svc.Analyze(context.Background(), userRequester("dave"), models.AnalyzeRequest{
		YouTubeURL:     testVideo,
		Prompt:         "What happens in this video?",
		EnableChunking: true,
		MaxConcurrency: intPtr(1),
	})
	if !errors.Is(err, ErrModelCall) {
		t.Fatalf("Analyze() error = %v, want ErrModelCall", err)
	}
	if resp.Error == "" || resp.RawAnalysis != "" || resp.Metadata.Billing.TotalCostUSD != 0 {
		t.Errorf("failure response = %+v", resp)
	}
	if len(ledger.entries) != 1 || ledger.entries[0].PromptTokens != 200 {
		t.Errorf("ledger = %+v, want one entry for two completed segments", ledger.entries)
	}
}

func TestServiceReleasesReservationAfterRecording(t *testing.T) {
	tests := []struct {
		name    string
		respond func(gemini.Request) (*gemini.Result, error)
	}{
		{name: "success", respond: reverseDelay},
		{name: "model failure", respond: func(gemini.Request) (*gemini.Result, error) { return nil, errors.New("quota") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAnalyzer{respond: tt.respond}
			svc := newTestService(fa, fixedDuration{}, &memLedger{}, budget.Limits{UserDailyUSD: 5, GlobalDailyUSD: 50})
			erin := userRequester("erin")
			req := models.AnalysisRequest{SourceURL: testVideo, Prompt: "What happens here?", SegmentLengthSeconds: 180, MaxConcurrency: 1}

			adm, err := svc.Admit(context.Background(), erin, req)
			if err != nil {
				t.Fatalf("Admit() error: %v", err)
			}
			if global, user := svc.admitter.Reserved(erin); global == 0 || user == 0 {
				t.Fatalf("Reserved() = (%v, %v), want the admission held", global, user)
			}

			svc.Execute(context.Background(), erin, req, adm)

			if global, user := svc.admitter.Reserved(erin); global != 0 || user != 0 {
				t.Errorf("Reserved() after Execute = (%v, %v), want (0, 0)", global, user)
			}
		})
	}
}

func TestNewRequest(t *testing.T) {
	svc := newTestService(&fakeAnalyzer{}, fixedDuration{}, &memLedger{}, budget.Limits{})

	tests := []struct {
		name    string
		in      models.AnalyzeRequest
		wantErr bool
		check   func(t *testing.T, r models.AnalysisRequest)
	}{
		{
			name: "defaults applied",
			in:   models.AnalyzeRequest{YouTubeURL: "dQw4w9WgXcQ", Prompt: "  ten chars!  "},
			check: func(t *testing.T, r models.AnalysisRequest) {
				if r.SourceURL != testVideo || r.SegmentLengthSeconds != 180 || r.MaxConcurrency != 3 || r.Prompt != "ten chars!" {
					t.Errorf("request = %+v", r)
				}
			},
		},
		{
			name: "overrides applied",
			in:   models.AnalyzeRequest{YouTubeURL: testVideo, Prompt: "long enough prompt", SegmentDuration: intPtr(60), MaxConcurrency: intPtr(5)},
			check: func(t *testing.T, r models.AnalysisRequest) {
				if r.SegmentLengthSeconds != 60 || r.MaxConcurrency != 5 {
					t.Errorf("request = %+v", r)
				}
			},
		},
		{name: "bad url", in: models.AnalyzeRequest{YouTubeURL: "https://example.com", Prompt: "long enough prompt"}, wantErr: true},
		{name: "short prompt", in: models.AnalyzeRequest{YouTubeURL: testVideo, Prompt: "too short"}, wantErr: true},
		{name: "long prompt", in: models.AnalyzeRequest{YouTubeURL: testVideo, Prompt: strings.Repeat("x", 501)}, wantErr: true},
		{name: "zero segment", in: models.AnalyzeRequest{YouTubeURL: testVideo, Prompt: "long enough prompt", SegmentDuration: intPtr(0)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.NewRequest(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("NewRequest() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRequest() error: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func strPtr(s string) *string { return &s }
