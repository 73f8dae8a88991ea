package video

import (
	"context"
	"encoding/json"
	"log"
	"os/exec"
	"time"
)

// YtDlpResolver asks the yt-dlp CLI for a video's duration.
type YtDlpResolver struct {
	path    string
	timeout time.Duration
}

// NewYtDlpResolver creates a resolver that shells out to yt-dlp at path.
func NewYtDlpResolver(path string, timeout time.Duration) *YtDlpResolver {
	return &YtDlpResolver{path: path, timeout: timeout}
}

// ytDlpMetadata is the subset of yt-dlp --dump-json output we read.
type ytDlpMetadata struct {
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
}

// Resolve implements DurationResolver.
func (r *YtDlpResolver) Resolve(ctx context.Context, sourceURL string) (int, bool) {
	watchURL, _, err := ParseYouTubeURL(sourceURL)
	if err != nil {
		return 0, false
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// exec.CommandContext kills yt-dlp if the context is cancelled.
	cmd := exec.CommandContext(ctx, r.path,
		"--dump-json",
		"--no-download",
		"--no-warnings",
		watchURL,
	)
	output, err := cmd.Output()
	if err != nil {
		log.Printf("⚠️  yt-dlp duration lookup failed: %v", err)
		return 0, false
	}

	var meta ytDlpMetadata
	if err := json.Unmarshal(output, &meta); err != nil {
		log.Printf("⚠️  Failed to parse yt-dlp output: %v", err)
		return 0, false
	}
	if meta.Duration <= 0 {
		return 0, false
	}
	return int(meta.Duration + 0.5), true
}
