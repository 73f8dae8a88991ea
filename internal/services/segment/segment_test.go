package segment

import "testing"

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		length int
		want   []Segment
	}{
		{
			name:   "400 seconds in 180 second windows",
			total:  400,
			length: 180,
			want: []Segment{
				{Index: 1, Start: 0, End: 180},
				{Index: 2, Start: 180, End: 360},
				{Index: 3, Start: 360, End: 400},
			},
		},
		{
			name:   "exact multiple",
			total:  360,
			length: 180,
			want: []Segment{
				{Index: 1, Start: 0, End: 180},
				{Index: 2, Start: 180, End: 360},
			},
		},
		{
			name:   "one second over",
			total:  181,
			length: 180,
			want: []Segment{
				{Index: 1, Start: 0, End: 180},
				{Index: 2, Start: 180, End: 181},
			},
		},
		{
			name:   "shorter than one window",
			total:  30,
			length: 180,
			want:   []Segment{{Index: 1, Start: 0, End: 30}},
		},
		{name: "zero total", total: 0, length: 180, want: nil},
		{name: "zero length", total: 100, length: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.total, tt.length)
			if len(got) != len(tt.want) {
				t.Fatalf("Split(%d, %d) returned %d segments, want %d", tt.total, tt.length, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("segment %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestSplitCoverage checks the window invariants over a grid of inputs:
// contiguous, non-overlapping, covering [0,total) with ceil(total/len) windows.
func TestSplitCoverage(t *testing.T) {
	for total := 1; total <= 400; total++ {
		for length := 1; length <= 45; length++ {
			segs := Split(total, length)

			if want := (total + length - 1) / length; len(segs) != want {
				t.Fatalf("Split(%d, %d): %d segments, want %d", total, length, len(segs), want)
			}
			if segs[0].Start != 0 {
				t.Fatalf("Split(%d, %d): first window starts at %d", total, length, segs[0].Start)
			}
			if last := segs[len(segs)-1]; last.End != total || last.Length() <= 0 || last.Length() > length {
				t.Fatalf("Split(%d, %d): bad last window %+v", total, length, last)
			}
			for i, s := range segs {
				if s.Index != i+1 {
					t.Fatalf("Split(%d, %d): window %d has index %d", total, length, i, s.Index)
				}
				if i > 0 && segs[i-1].End != s.Start {
					t.Fatalf("Split(%d, %d): gap or overlap between %+v and %+v", total, length, segs[i-1], s)
				}
				if i < len(segs)-1 && s.Length() != length {
					t.Fatalf("Split(%d, %d): inner window %+v is not full length", total, length, s)
				}
			}
		}
	}
}

func TestSegmentString(t *testing.T) {
	s := Segment{Index: 2, Start: 180, End: 360}
	if got, want := s.String(), "Segment 2: 03:00 - 06:00"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestClock(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{65, "01:05"},
		{3600, "60:00"},
		{3725, "62:05"},
	}
	for _, tt := range tests {
		if got := Clock(tt.seconds); got != tt.want {
			t.Errorf("Clock(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
