// Package billing converts provider token counters into canonical usage
// records and prices them.
//
// A nil *models.TokenUsage means "unknown" and is carried through merging and
// pricing as such. It is never treated as a zero-token call.
package billing

import "github.com/Shimizu-Technology/video-insights-api/internal/models"

// ProviderUsage is the usageMetadata block returned by Gemini generateContent.
// It is the only place the provider's field names appear; everything
// downstream works with models.TokenUsage.
type ProviderUsage struct {
	PromptTokenCount        *int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount    *int `json:"candidatesTokenCount,omitempty"`
	TotalTokenCount         *int `json:"totalTokenCount,omitempty"`
	CachedContentTokenCount *int `json:"cachedContentTokenCount,omitempty"`
}

// Normalize maps provider usage onto a TokenUsage. Missing counts default to
// zero, and a missing total defaults to prompt + completion.
func Normalize(p *ProviderUsage) *models.TokenUsage {
	if p == nil {
		return nil
	}

	u := &models.TokenUsage{
		PromptTokens:        deref(p.PromptTokenCount),
		CompletionTokens:    deref(p.CandidatesTokenCount),
		CachedContentTokens: deref(p.CachedContentTokenCount),
	}
	if p.TotalTokenCount != nil {
		u.TotalTokens = *p.TotalTokenCount
	} else {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// Merge sums usages pointwise. Nil entries contribute nothing; if every
// entry is nil the result is nil.
func Merge(usages ...*models.TokenUsage) *models.TokenUsage {
	var out *models.TokenUsage
	for _, u := range usages {
		if u == nil {
			continue
		}
		if out == nil {
			out = &models.TokenUsage{}
		}
		out.PromptTokens += u.PromptTokens
		out.CompletionTokens += u.CompletionTokens
		out.TotalTokens += u.TotalTokens
		out.CachedContentTokens += u.CachedContentTokens
	}
	return out
}

func deref(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
