// Package budget decides whether an analysis may spend money before any
// model call is made, and reports how much of today's budget is used.
//
// Admission is pessimistic: it prices a worst-case request up front and
// denies if that worst case could push either the caller's or the global
// daily spend to its limit. An admitted request holds its estimate as an
// in-process reservation until it is released, so queued work counts
// against the limits before it is recorded. Actual spend is recorded
// afterwards, so concurrent segment calls never contend on a shared counter.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/billing"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/segment"
)

// ErrBudgetExceeded is wrapped by every admission denial.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Scope says which limit denied a request.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

// DeniedError describes an admission denial. ReservedUSD is the worst case
// of requests admitted earlier that have not been recorded yet.
type DeniedError struct {
	Scope       Scope
	SpendUSD    float64
	ReservedUSD float64
	EstimateUSD float64
	LimitUSD    float64
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s daily budget exceeded: spent $%.4f, reserved $%.4f, estimate $%.4f, limit $%.2f",
		e.Scope, e.SpendUSD, e.ReservedUSD, e.EstimateUSD, e.LimitUSD)
}

func (e *DeniedError) Unwrap() error { return ErrBudgetExceeded }

// Ledger is the append-only spend store admission reads from and the
// analysis service writes to. CallerSpendSince sums rows owned by the
// caller: by user when the caller has one, otherwise by session.
type Ledger interface {
	Record(ctx context.Context, entry *models.LedgerEntry) (string, error)
	GlobalSpendSince(ctx context.Context, since time.Time) (float64, error)
	CallerSpendSince(ctx context.Context, caller models.Requester, since time.Time) (float64, error)
}

// Limits are the daily USD ceilings. Reaching a limit blocks further spend.
type Limits struct {
	UserDailyUSD   float64
	GlobalDailyUSD float64
}

// Preflight holds the worst-case assumptions used to price a request before
// its real size is known.
type Preflight struct {
	AssumedVideoSeconds    int
	PromptTokensPerCall    int
	SinglePassOutputTokens int
	SegmentOutputTokens    int
}

// Admission is the record of an allowed request. It is passed to the
// orchestrator and later used to report post-spend totals. Until it is
// released its worst-case estimate counts against both limits.
type Admission struct {
	Day               time.Time
	Caller            models.Requester
	GlobalSpendBefore float64
	UserSpendBefore   *float64 // nil when the caller has no daily limit of its own
	Estimate          models.BillingComputation

	callerKey string
	released  bool
}

// Controller runs admission checks against a Ledger.
type Controller struct {
	ledger    Ledger
	prices    *billing.PriceTable
	model     string
	limits    Limits
	preflight Preflight
	now       func() time.Time

	mu             sync.Mutex
	reservedGlobal float64
	reservedCaller map[string]float64
}

// NewController creates an admission controller for model.
func NewController(ledger Ledger, prices *billing.PriceTable, model string, limits Limits, preflight Preflight) *Controller {
	return &Controller{
		ledger:         ledger,
		prices:         prices,
		model:          model,
		limits:         limits,
		preflight:      preflight,
		now:            time.Now,
		reservedCaller: make(map[string]float64),
	}
}

// callerKey names the per-caller budget. Callers with neither a user nor a
// session only have the global limit.
func callerKey(r models.Requester) string {
	switch {
	case r.UserID != nil:
		return "user:" + *r.UserID
	case r.SessionID != nil && *r.SessionID != "":
		return "session:" + *r.SessionID
	default:
		return ""
	}
}

// Limits returns the configured daily limits.
func (c *Controller) Limits() Limits { return c.limits }

// StartOfUTCDay returns midnight UTC of t's UTC date.
func StartOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Estimate prices the worst case for req. When segmentation is requested it
// assumes the configured video length split into segments, and keeps the
// larger of that and a single full-length call, since a segmented request
// can still be downgraded to single-pass.
func (c *Controller) Estimate(req models.AnalysisRequest) (models.BillingComputation, error) {
	single := &models.TokenUsage{
		PromptTokens:     c.preflight.PromptTokensPerCall,
		CompletionTokens: c.preflight.SinglePassOutputTokens,
	}
	single.TotalTokens = single.PromptTokens + single.CompletionTokens

	if req.EnableSegmentation && req.SegmentLengthSeconds > 0 {
		n := segment.Count(c.preflight.AssumedVideoSeconds, req.SegmentLengthSeconds)
		seg := &models.TokenUsage{
			PromptTokens:     n * c.preflight.PromptTokensPerCall,
			CompletionTokens: n * c.preflight.SegmentOutputTokens,
		}
		seg.TotalTokens = seg.PromptTokens + seg.CompletionTokens

		segCost, err := c.prices.Cost(c.model, seg)
		if err != nil {
			return models.BillingComputation{}, err
		}
		singleCost, err := c.prices.Cost(c.model, single)
		if err != nil {
			return models.BillingComputation{}, err
		}
		if segCost.TotalCostUSD >= singleCost.TotalCostUSD {
			return segCost, nil
		}
		return singleCost, nil
	}
	return c.prices.Cost(c.model, single)
}

// Admit checks current spend plus outstanding reservations and the
// worst-case estimate against both limits, then reserves the estimate.
// Ledger read failures deny the request with a plain error.
func (c *Controller) Admit(ctx context.Context, requester models.Requester, req models.AnalysisRequest) (*Admission, error) {
	// Held across the ledger reads so two admissions never share headroom.
	c.mu.Lock()
	defer c.mu.Unlock()

	day := StartOfUTCDay(c.now())
	key := callerKey(requester)
	adm := &Admission{Day: day, Caller: requester, callerKey: key}

	global, err := c.ledger.GlobalSpendSince(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("read global spend: %w", err)
	}
	adm.GlobalSpendBefore = global

	if key != "" {
		user, err := c.ledger.CallerSpendSince(ctx, requester, day)
		if err != nil {
			return nil, fmt.Errorf("read user spend: %w", err)
		}
		adm.UserSpendBefore = &user
	}

	reservedGlobal := c.reservedGlobal
	reservedUser := c.reservedCaller[key]

	if billing.SumUSD(global, reservedGlobal) >= c.limits.GlobalDailyUSD {
		return nil, &DeniedError{Scope: ScopeGlobal, SpendUSD: global, ReservedUSD: reservedGlobal, LimitUSD: c.limits.GlobalDailyUSD}
	}
	if adm.UserSpendBefore != nil && billing.SumUSD(*adm.UserSpendBefore, reservedUser) >= c.limits.UserDailyUSD {
		return nil, &DeniedError{Scope: ScopeUser, SpendUSD: *adm.UserSpendBefore, ReservedUSD: reservedUser, LimitUSD: c.limits.UserDailyUSD}
	}

	estimate, err := c.Estimate(req)
	if err != nil {
		return nil, fmt.Errorf("preflight estimate: %w", err)
	}
	adm.Estimate = estimate
	worst := estimate.TotalCostUSD

	if billing.SumUSD(global, reservedGlobal, worst) >= c.limits.GlobalDailyUSD {
		return nil, &DeniedError{Scope: ScopeGlobal, SpendUSD: global, ReservedUSD: reservedGlobal, EstimateUSD: worst, LimitUSD: c.limits.GlobalDailyUSD}
	}
	if adm.UserSpendBefore != nil && billing.SumUSD(*adm.UserSpendBefore, reservedUser, worst) >= c.limits.UserDailyUSD {
		return nil, &DeniedError{Scope: ScopeUser, SpendUSD: *adm.UserSpendBefore, ReservedUSD: reservedUser, EstimateUSD: worst, LimitUSD: c.limits.UserDailyUSD}
	}

	c.reservedGlobal = billing.SumUSD(reservedGlobal, worst)
	if key != "" {
		c.reservedCaller[key] = billing.SumUSD(reservedUser, worst)
	}
	return adm, nil
}

// Release returns an admission's reservation once its spend is in the
// ledger or will never be. Releasing twice is a no-op.
func (c *Controller) Release(adm *Admission) {
	if adm == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if adm.released {
		return
	}
	adm.released = true

	worst := adm.Estimate.TotalCostUSD
	c.reservedGlobal = max(0, billing.SumUSD(c.reservedGlobal, -worst))
	if adm.callerKey == "" {
		return
	}
	if left := billing.SumUSD(c.reservedCaller[adm.callerKey], -worst); left > 0 {
		c.reservedCaller[adm.callerKey] = left
	} else {
		delete(c.reservedCaller, adm.callerKey)
	}
}

// Reserved reports the outstanding worst-case total globally and for caller.
func (c *Controller) Reserved(caller models.Requester) (global, user float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reservedGlobal, c.reservedCaller[callerKey(caller)]
}

// SpendAfter re-reads today's totals after a call was recorded. If a read
// fails the total falls back to the pre-call spend plus actualUSD.
func (c *Controller) SpendAfter(ctx context.Context, adm *Admission, actualUSD float64) (user *float64, global float64) {
	global, err := c.ledger.GlobalSpendSince(ctx, adm.Day)
	if err != nil {
		global = billing.SumUSD(adm.GlobalSpendBefore, actualUSD)
	}

	if adm.UserSpendBefore != nil {
		u, err := c.ledger.CallerSpendSince(ctx, adm.Caller, adm.Day)
		if err != nil {
			u = billing.SumUSD(*adm.UserSpendBefore, actualUSD)
		}
		user = &u
	}
	return user, global
}

// Snapshot reports today's spend and remaining headroom for caller.
func (c *Controller) Snapshot(ctx context.Context, caller models.Requester) (*models.SpendSnapshot, error) {
	day := StartOfUTCDay(c.now())

	global, err := c.ledger.GlobalSpendSince(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("read global spend: %w", err)
	}

	snap := &models.SpendSnapshot{
		Day:                 day.Format("2006-01-02"),
		GlobalSpendTodayUSD: global,
		GlobalRemainingUSD:  max(0, billing.SumUSD(c.limits.GlobalDailyUSD, -global)),
		UserDailyLimitUSD:   c.limits.UserDailyUSD,
		GlobalDailyLimitUSD: c.limits.GlobalDailyUSD,
	}

	if callerKey(caller) != "" {
		user, err := c.ledger.CallerSpendSince(ctx, caller, day)
		if err != nil {
			return nil, fmt.Errorf("read user spend: %w", err)
		}
		remaining := max(0, billing.SumUSD(c.limits.UserDailyUSD, -user))
		snap.UserSpendTodayUSD = &user
		snap.UserRemainingUSD = &remaining
	}
	return snap, nil
}
