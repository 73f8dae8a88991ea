// Package sections turns free-form model output into titled, optionally
// timestamped sections.
//
// The parser is a single top-to-bottom scan: Markdown-style headings open a
// section, non-blank lines accumulate into its body, and an (MM:SS) or
// [MM:SS] marker on the heading line becomes the section's timestamp.
package sections

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

const (
	// FallbackTitle names the single section emitted for text with no headings.
	FallbackTitle = "Analysis"
	// PreambleTitle names text that appears before the first heading.
	PreambleTitle = "Overview"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	// Matches (01:05), [01:05] and ranges such as (01:05 - 02:10); the
	// start of a range is used.
	timestampRe = regexp.MustCompile(`[\(\[](\d{1,3}):([0-5]\d)(?:\s*[–-]\s*\d{1,3}:[0-5]\d)?[\)\]]`)
)

// Parse splits text into sections in order of first appearance.
// Sections whose body is empty are dropped.
func Parse(text string) []models.Section {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var (
		out        []models.Section
		current    *models.Section
		body       []string
		preamble   []string
		sawHeading bool
	)

	flush := func() {
		if current != nil && len(body) > 0 {
			current.Content = strings.Join(body, "\n")
			out = append(out, *current)
		}
		current = nil
		body = nil
	}

	for _, raw := range strings.Split(trimmed, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			if !sawHeading && len(preamble) > 0 {
				out = append(out, models.Section{
					Title:   PreambleTitle,
					Content: strings.Join(preamble, "\n"),
				})
			}
			sawHeading = true
			current = &models.Section{
				Title:     strings.TrimSpace(m[2]),
				Timestamp: Timestamp(line),
			}
			continue
		}

		if current == nil {
			preamble = append(preamble, line)
			continue
		}
		body = append(body, line)
	}
	flush()

	if !sawHeading {
		return []models.Section{{Title: FallbackTitle, Content: trimmed}}
	}
	return out
}

// Timestamp returns the first wrapped MM:SS marker in line as seconds,
// or nil when the line has none.
func Timestamp(line string) *int {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	seconds, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	total := minutes*60 + seconds
	return &total
}
