// Package segment splits a video timeline into fixed-length windows.
package segment

import "fmt"

// Segment is a half-open [Start, End) window of a video, in seconds.
// Index is 1-based and follows timeline order.
type Segment struct {
	Index int `json:"index"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Length returns the window length in seconds.
func (s Segment) Length() int {
	return s.End - s.Start
}

// String renders the window as "Segment 2: 03:00 - 06:00".
func (s Segment) String() string {
	return fmt.Sprintf("Segment %d: %s - %s", s.Index, Clock(s.Start), Clock(s.End))
}

// Split walks the timeline from zero and emits contiguous windows of
// length seconds until total is covered. The last window may be shorter.
// It returns nil unless both total and length are positive.
//
// Callers decide single-pass vs segmented before calling Split; a video that
// fits in one window still produces exactly one Segment here.
func Split(total, length int) []Segment {
	if total <= 0 || length <= 0 {
		return nil
	}

	segments := make([]Segment, 0, Count(total, length))
	for start, index := 0, 1; start < total; index++ {
		end := min(start+length, total)
		segments = append(segments, Segment{Index: index, Start: start, End: end})
		start = end
	}
	return segments
}

// Count returns ceil(total/length), the number of windows Split produces.
func Count(total, length int) int {
	if total <= 0 || length <= 0 {
		return 0
	}
	return (total + length - 1) / length
}

// Clock formats seconds as MM:SS (minutes are not capped at 59).
func Clock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
