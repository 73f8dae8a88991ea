package video

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Shimizu-Technology/video-insights-api/internal/services/retry"
)

// DurationResolver looks up a video's length. It never fails: any lookup or
// parse problem is reported as ok == false and the caller picks a fallback.
type DurationResolver interface {
	Resolve(ctx context.Context, sourceURL string) (seconds int, ok bool)
}

// maxPageBytes caps how much of a watch page is scanned.
const maxPageBytes = 8 << 20

var (
	lengthSecondsRe = regexp.MustCompile(`"lengthSeconds"\s*:\s*"(\d+)"`)
	approxMsRe      = regexp.MustCompile(`"approxDurationMs"\s*:\s*"(\d+)"`)
)

// PageResolver scrapes the public watch page for a duration marker.
type PageResolver struct {
	httpClient *http.Client
	baseURL    string
	policy     retry.Policy
}

// NewPageResolver creates a scraping resolver. baseURL replaces
// https://www.youtube.com when non-empty.
func NewPageResolver(timeout time.Duration, baseURL string) *PageResolver {
	if baseURL == "" {
		baseURL = "https://www.youtube.com"
	}
	return &PageResolver{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		policy: retry.Policy{
			Name:           "duration lookup",
			Delays:         []time.Duration{0, 500 * time.Millisecond},
			AttemptTimeout: timeout,
		},
	}
}

// Resolve fetches the watch page and scans it for lengthSeconds, falling
// back to approxDurationMs.
func (r *PageResolver) Resolve(ctx context.Context, sourceURL string) (int, bool) {
	_, videoID, err := ParseYouTubeURL(sourceURL)
	if err != nil {
		log.Printf("⚠️  Duration lookup skipped: %v", err)
		return 0, false
	}

	var page string
	err = retry.Do(ctx, r.policy, func(ctx context.Context) error {
		p, err := r.fetch(ctx, videoID)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		log.Printf("⚠️  Duration lookup failed for %s: %v", videoID, err)
		return 0, false
	}

	if secs, ok := ParseDuration(page); ok {
		return secs, true
	}
	log.Printf("⚠️  No duration marker found on watch page for %s", videoID)
	return 0, false
}

func (r *PageResolver) fetch(ctx context.Context, videoID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/watch?v="+videoID, nil)
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; VideoInsightsAPI/1.0)")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("watch page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("watch page returned %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", err
		}
		return "", retry.Permanent(err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read watch page: %w", err)
	}
	return string(body), nil
}

// ParseDuration scans raw page text for a duration marker and returns seconds.
// Zero durations are treated as not found.
func ParseDuration(page string) (int, bool) {
	if m := lengthSecondsRe.FindStringSubmatch(page); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	if m := approxMsRe.FindStringSubmatch(page); m != nil {
		if ms, err := strconv.ParseInt(m[1], 10, 64); err == nil && ms > 0 {
			return int((ms + 500) / 1000), true
		}
	}
	return 0, false
}

// Chain tries each resolver in order and returns the first known duration.
type Chain []DurationResolver

// Resolve implements DurationResolver.
func (c Chain) Resolve(ctx context.Context, sourceURL string) (int, bool) {
	for _, r := range c {
		if ctx.Err() != nil {
			return 0, false
		}
		if secs, ok := r.Resolve(ctx, sourceURL); ok && secs > 0 {
			return secs, true
		}
	}
	return 0, false
}

// Deduped collapses concurrent lookups for the same URL into one call.
type Deduped struct {
	next  DurationResolver
	group singleflight.Group
}

// NewDeduped wraps next with singleflight.
func NewDeduped(next DurationResolver) *Deduped {
	return &Deduped{next: next}
}

type lookup struct {
	seconds int
	ok      bool
}

// Resolve implements DurationResolver. The shared lookup is detached from
// any one caller's cancellation and bounded by the resolvers' own timeouts;
// a caller whose ctx ends stops waiting and gets "unknown".
func (d *Deduped) Resolve(ctx context.Context, sourceURL string) (int, bool) {
	key := sourceURL
	if _, id, err := ParseYouTubeURL(sourceURL); err == nil {
		key = id
	}

	shared := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		secs, ok := d.next.Resolve(shared, sourceURL)
		return lookup{seconds: secs, ok: ok}, nil
	})

	select {
	case res := <-ch:
		l := res.Val.(lookup)
		return l.seconds, l.ok
	case <-ctx.Done():
		return 0, false
	}
}

// NewDurationResolver builds the production resolver: the page scrape, then
// yt-dlp when ytDlpPath is set, deduplicated per video.
func NewDurationResolver(timeout time.Duration, ytDlpPath string) DurationResolver {
	chain := Chain{NewPageResolver(timeout, "")}
	if ytDlpPath != "" {
		chain = append(chain, NewYtDlpResolver(ytDlpPath, timeout))
	}
	return NewDeduped(chain)
}
