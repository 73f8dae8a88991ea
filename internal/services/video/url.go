// Package video normalizes YouTube links and looks up video durations.
package video

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	videoIDRe   = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	urlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/v/)([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`(?:youtube\.com/shorts/|youtube\.com/live/)([a-zA-Z0-9_-]{11})`),
	}
)

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

// ParseYouTubeURL extracts the video ID from a YouTube URL or bare ID and
// returns the canonical watch URL alongside it.
// Supports:
//   - https://www.youtube.com/watch?v=VIDEO_ID (with or without extra params)
//   - https://youtu.be/VIDEO_ID
//   - /embed/, /v/, /shorts/ and /live/ paths
//   - Just the video ID itself (11 characters)
func ParseYouTubeURL(input string) (string, string, error) {
	input = strings.TrimSpace(input)

	if videoIDRe.MatchString(input) {
		return WatchURL(input), input, nil
	}

	for _, pattern := range urlPatterns {
		if m := pattern.FindStringSubmatch(input); len(m) >= 2 {
			return WatchURL(m[1]), m[1], nil
		}
	}

	return "", "", fmt.Errorf("invalid YouTube URL or video ID: %s", input)
}
