package analysis

import (
	"fmt"
	"strings"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/sections"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/segment"
)

// summaryContentLimit caps the excerpt used in a segmented summary.
const summaryContentLimit = 280

// SegmentPrompt frames the user's prompt for one segment window.
func SegmentPrompt(s segment.Segment, prompt string) string {
	return fmt.Sprintf("Analyze the video segment from %ds to %ds. "+
		"If you reference any events, please include their timestamps. %s", s.Start, s.End, prompt)
}

// SegmentHeader is the heading that introduces a segment in the combined report.
func SegmentHeader(r SegmentResult) string {
	return fmt.Sprintf("## Segment %d (%s – %s)", r.Index, segment.Clock(r.Start), segment.Clock(r.End))
}

// RenderSegments joins results, in the order given, into one Markdown
// document separated by blank lines.
func RenderSegments(results []SegmentResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, SegmentHeader(r)+"\n\n"+strings.TrimSpace(r.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// summarizeSinglePass uses the first line of the first section as the
// summary and returns the remaining sections.
func summarizeSinglePass(text string) (string, []models.Section) {
	parsed := sections.Parse(text)
	if len(parsed) == 0 {
		return "", []models.Section{}
	}
	first, _, _ := strings.Cut(parsed[0].Content, "\n")
	rest := parsed[1:]
	if rest == nil {
		rest = []models.Section{}
	}
	return strings.TrimSpace(first), rest
}

// summarizeSegmented parses the combined report and builds a short summary
// from the segment count and the first section's content.
func summarizeSegmented(raw string, count int) (string, []models.Section) {
	parsed := sections.Parse(raw)
	if parsed == nil {
		parsed = []models.Section{}
	}
	summary := fmt.Sprintf("Analyzed %d segments.", count)
	if len(parsed) > 0 {
		summary += " " + truncate(strings.ReplaceAll(parsed[0].Content, "\n", " "), summaryContentLimit)
	}
	return summary, parsed
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit])) + "..."
}
