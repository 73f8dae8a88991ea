// ratelimit.go implements per-caller rate limiting using a token bucket.
//
// Each API key (or JWT user) gets a bucket of N tokens, where N is the key's
// rate_limit or the configured default for users. A request consumes one
// token and tokens refill at N per hour. An empty bucket means 429.
//
// Rate limiting bounds request volume; spend is bounded separately by the
// daily budgets.
package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

// RateLimiter tracks request rates per caller.
type RateLimiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	defaultLimit int
	now          func() time.Time
}

// bucket tracks the token state for a single caller.
type bucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// allowResult contains the result of a rate limit check,
// including header information for the response.
type allowResult struct {
	allowed   bool
	remaining float64
	limit     float64
}

// NewRateLimiter creates a new rate limiter. defaultLimit applies to JWT
// users and to keys without their own limit.
func NewRateLimiter(defaultLimit int) *RateLimiter {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	rl := &RateLimiter{
		buckets:      make(map[string]*bucket),
		defaultLimit: defaultLimit,
		now:          time.Now,
	}

	// Start background cleanup goroutine
	go rl.cleanup()

	return rl
}

// RateLimit returns Gin middleware that enforces per-caller rate limits.
// It must run after an auth middleware.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, limit, ok := rl.caller(c)
		if !ok {
			// Unauthenticated requests were already rejected by auth.
			c.Next()
			return
		}

		result := rl.allow(id, limit)
		if !result.allowed {
			// Add headers even for rejected requests so clients know their limits
			c.Header("X-RateLimit-Limit", formatFloat(result.limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "rate_limit_exceeded",
				Message: "Rate limit exceeded. Try again later.",
				Code:    http.StatusTooManyRequests,
			})
			c.Abort()
			return
		}

		// Go Pattern: These headers follow the standard draft RFC for rate limiting.
		c.Header("X-RateLimit-Limit", formatFloat(result.limit))
		c.Header("X-RateLimit-Remaining", formatFloat(result.remaining))

		c.Next()
	}
}

// caller picks the bucket ID and hourly limit for the authenticated caller.
func (rl *RateLimiter) caller(c *gin.Context) (string, int, bool) {
	if key := GetAPIKey(c); key != nil {
		limit := key.RateLimit
		if limit <= 0 {
			limit = rl.defaultLimit
		}
		return "key:" + key.ID, limit, true
	}
	if user := GetUser(c); user != nil {
		return "user:" + user.ID, rl.defaultLimit, true
	}
	return "", 0, false
}

// allow checks if a request should be allowed, consuming a token if so.
// The check and the header values come from one critical section.
func (rl *RateLimiter) allow(id string, rateLimit int) allowResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.buckets[id]
	if !exists {
		b = &bucket{
			tokens:     float64(rateLimit),
			maxTokens:  float64(rateLimit),
			refillRate: float64(rateLimit) / 3600.0, // tokens per second
			lastRefill: now,
		}
		rl.buckets[id] = b
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	// Check if we have a token available
	if b.tokens < 1.0 {
		return allowResult{
			allowed:   false,
			remaining: 0,
			limit:     b.maxTokens,
		}
	}

	// Consume a token
	b.tokens--
	return allowResult{
		allowed:   true,
		remaining: b.tokens,
		limit:     b.maxTokens,
	}
}

// cleanup periodically removes stale buckets to prevent memory leaks.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := rl.now()
		for id, b := range rl.buckets {
			// Remove buckets that haven't been used in over an hour
			if now.Sub(b.lastRefill) > time.Hour {
				delete(rl.buckets, id)
			}
		}
		rl.mu.Unlock()
	}
}

// formatFloat converts a float to a string for headers.
func formatFloat(f float64) string {
	return fmt.Sprintf("%.0f", f)
}
