package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

// ErrPricingNotConfigured is returned when a model has no price table entry.
// It is a configuration defect: there is no zero-cost fallback.
var ErrPricingNotConfigured = errors.New("pricing not configured for model")

var million = decimal.NewFromInt(1_000_000)

// Price is the USD cost per million tokens for one model.
type Price struct {
	InputPerMillionUSD  float64 `json:"inputPerMillionUsd"`
	OutputPerMillionUSD float64 `json:"outputPerMillionUsd"`
}

// DefaultPrices are the built-in list prices, keyed by lower-cased model id.
var DefaultPrices = map[string]Price{
	"gemini-2.5-pro":        {InputPerMillionUSD: 1.25, OutputPerMillionUSD: 10.00},
	"gemini-2.5-flash":      {InputPerMillionUSD: 0.30, OutputPerMillionUSD: 2.50},
	"gemini-2.5-flash-lite": {InputPerMillionUSD: 0.10, OutputPerMillionUSD: 0.40},
	"gemini-2.0-flash":      {InputPerMillionUSD: 0.10, OutputPerMillionUSD: 0.40},
}

// PriceTable is an immutable model → price lookup.
type PriceTable struct {
	prices map[string]Price
}

// NewPriceTable returns the defaults with overrides merged on top.
func NewPriceTable(overrides map[string]Price) *PriceTable {
	prices := maps.Clone(DefaultPrices)
	for model, p := range overrides {
		prices[strings.ToLower(strings.TrimSpace(model))] = p
	}
	return &PriceTable{prices: prices}
}

// ParseOverrides decodes a JSON object of the form
// {"model":{"inputPerMillionUsd":x,"outputPerMillionUsd":y}}.
// An empty string yields no overrides.
func ParseOverrides(raw string) (map[string]Price, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var overrides map[string]Price
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		return nil, fmt.Errorf("invalid pricing overrides: %w", err)
	}
	for model, p := range overrides {
		if strings.TrimSpace(model) == "" {
			return nil, fmt.Errorf("invalid pricing overrides: empty model name")
		}
		if p.InputPerMillionUSD < 0 || p.OutputPerMillionUSD < 0 {
			return nil, fmt.Errorf("invalid pricing overrides: negative price for %q", model)
		}
	}
	return overrides, nil
}

// Lookup returns the price for model, matched case-insensitively.
func (t *PriceTable) Lookup(model string) (Price, bool) {
	p, ok := t.prices[strings.ToLower(strings.TrimSpace(model))]
	return p, ok
}

// Cost prices usage for model. A nil usage yields a zero computation with a
// nil Usage. Cached prompt tokens are not billed at the input rate.
func (t *PriceTable) Cost(model string, usage *models.TokenUsage) (models.BillingComputation, error) {
	if usage == nil {
		return models.BillingComputation{}, nil
	}

	price, ok := t.Lookup(model)
	if !ok {
		return models.BillingComputation{}, fmt.Errorf("%w: %q", ErrPricingNotConfigured, model)
	}

	billablePrompt := max(0, usage.PromptTokens-usage.CachedContentTokens)

	input := decimal.NewFromInt(int64(billablePrompt)).
		Div(million).
		Mul(decimal.NewFromFloat(price.InputPerMillionUSD))
	output := decimal.NewFromInt(int64(usage.CompletionTokens)).
		Div(million).
		Mul(decimal.NewFromFloat(price.OutputPerMillionUSD))

	u := *usage
	return models.BillingComputation{
		Usage:         &u,
		InputCostUSD:  input.InexactFloat64(),
		OutputCostUSD: output.InexactFloat64(),
		TotalCostUSD:  input.Add(output).InexactFloat64(),
	}, nil
}

// SumUSD adds dollar amounts without accumulating float rounding error.
func SumUSD(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.InexactFloat64()
}
