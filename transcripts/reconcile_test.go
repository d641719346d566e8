package transcripts

import (
	"reflect"
	"testing"
)

func seg(start, end float64, text string) RawSegment {
	return RawSegment{Start: Seconds(start), End: Seconds(end), Text: text}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		segs     []RawSegment
		wantText string
		want     []Chunk
	}{
		{
			name: "empty input",
			segs: nil,
			want: []Chunk{},
		},
		{
			name: "invalid runs absorbed into next chunk",
			segs: []RawSegment{
				seg(0, 0, ""),
				seg(0, 5, "hello"),
				seg(5, 5, ""),
				seg(5, 10, "world"),
			},
			wantText: "hello world",
			want:     []Chunk{{Time: 0, Text: "hello"}, {Time: 5, Text: "world"}},
		},
		{
			name:     "clean input",
			segs:     []RawSegment{seg(0, 5, "hello"), seg(5, 10, "world")},
			wantText: "hello world",
			want:     []Chunk{{Time: 0, Text: "hello"}, {Time: 5, Text: "world"}},
		},
		{
			name:     "trailing invalid dropped",
			segs:     []RawSegment{seg(0, 5, "hi"), seg(5, 5, "")},
			wantText: "hi",
			want:     []Chunk{{Time: 0, Text: "hi"}},
		},
		{
			name: "all invalid with empty text",
			segs: []RawSegment{seg(0, 0, ""), seg(1, 2, "  "), seg(3, 1, "")},
			want: []Chunk{},
		},
		{
			name:     "all invalid with text keeps full text",
			segs:     []RawSegment{seg(3, 3, "uh"), seg(4, 2, "um")},
			wantText: "uh um",
			want:     []Chunk{},
		},
		{
			name: "carried start later than own start wins",
			segs: []RawSegment{
				seg(7, 7, "glitch"),
				seg(6, 9, "next"),
			},
			wantText: "glitch next",
			want:     []Chunk{{Time: 7, Text: "next"}},
		},
		{
			name: "most recent invalid start is carried",
			segs: []RawSegment{
				seg(1, 1, ""),
				seg(3, 2, ""),
				seg(2, 6, "after"),
			},
			wantText: "after",
			want:     []Chunk{{Time: 3, Text: "after"}},
		},
		{
			name: "carry resets after a valid chunk",
			segs: []RawSegment{
				seg(4, 4, ""),
				seg(2, 5, "a"),
				seg(1, 3, "b"),
			},
			wantText: "a b",
			want:     []Chunk{{Time: 4, Text: "a"}, {Time: 1, Text: "b"}},
		},
		{
			name: "missing bounds are valid",
			segs: []RawSegment{
				{Start: Seconds(2), Text: "open ended"},
				{End: Seconds(9), Text: "no start"},
			},
			wantText: "open ended no start",
			want:     []Chunk{{Time: 2, Text: "open ended"}, {Time: 0, Text: "no start"}},
		},
		{
			name: "missing start takes the carry",
			segs: []RawSegment{
				seg(8, 8, ""),
				{Text: "unknown"},
			},
			wantText: "unknown",
			want:     []Chunk{{Time: 8, Text: "unknown"}},
		},
		{
			name: "invalid segment with missing start clears the carry",
			segs: []RawSegment{
				seg(8, 8, ""),
				{Text: ""},
				seg(3, 4, "x"),
			},
			wantText: "x",
			want:     []Chunk{{Time: 3, Text: "x"}},
		},
		{
			name:     "text is trimmed",
			segs:     []RawSegment{seg(0, 1, "  padded \n")},
			wantText: "padded",
			want:     []Chunk{{Time: 0, Text: "padded"}},
		},
		{
			name:     "zero start is a real timestamp",
			segs:     []RawSegment{seg(0, 0, "zero length")},
			wantText: "zero length",
			want:     []Chunk{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.segs)
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if !reflect.DeepEqual(got.Chunks, tt.want) {
				t.Errorf("Chunks = %+v, want %+v", got.Chunks, tt.want)
			}
		})
	}
}

func TestReconcile_ZeroIsMissing(t *testing.T) {
	r := Reconciler{ZeroIsMissing: true}
	got := r.Reconcile([]RawSegment{seg(0, 0, "intro"), seg(0, 4, "body")})

	want := []Chunk{{Time: 0, Text: "intro"}, {Time: 0, Text: "body"}}
	if !reflect.DeepEqual(got.Chunks, want) {
		t.Errorf("Chunks = %+v, want %+v", got.Chunks, want)
	}

	// Non-zero equal bounds stay invalid.
	got = r.Reconcile([]RawSegment{seg(2, 2, "dup")})
	if len(got.Chunks) != 0 {
		t.Errorf("Chunks = %+v, want none", got.Chunks)
	}
}

func TestReconcile_CleanInputIsUnchanged(t *testing.T) {
	segs := []RawSegment{
		seg(0, 1.5, "one"),
		seg(1.5, 3.25, "two"),
		seg(3.25, 4, "three"),
		seg(10, 12, "four"),
	}

	got := Reconcile(segs)
	if len(got.Chunks) != len(segs) {
		t.Fatalf("len(Chunks) = %d, want %d", len(got.Chunks), len(segs))
	}
	for i, c := range got.Chunks {
		if c.Time != *segs[i].Start {
			t.Errorf("Chunks[%d].Time = %v, want %v", i, c.Time, *segs[i].Start)
		}
		if c.Text != segs[i].Text {
			t.Errorf("Chunks[%d].Text = %q, want %q", i, c.Text, segs[i].Text)
		}
	}
}

// A chunk's time may only move away from its own start when an invalid
// segment directly precedes it.
func TestReconcile_TimeOnlyShiftsAfterInvalid(t *testing.T) {
	segs := []RawSegment{
		seg(0, 2, "a"),
		seg(3, 3, ""),
		seg(2.5, 4, "b"),
		seg(4, 5, "c"),
		seg(9, 1, "bad"),
		seg(5, 6, "d"),
	}

	var r Reconciler
	got := r.Reconcile(segs)

	var (
		chunk     int
		prevValid = true
	)
	for _, s := range segs {
		if !r.Valid(s) {
			prevValid = false
			continue
		}
		c := got.Chunks[chunk]
		if prevValid && c.Time != *s.Start {
			t.Errorf("chunk %q: Time = %v, want own start %v", c.Text, c.Time, *s.Start)
		}
		if !prevValid && c.Time < *s.Start {
			t.Errorf("chunk %q: Time = %v below own start %v", c.Text, c.Time, *s.Start)
		}
		chunk++
		prevValid = true
	}
	if chunk != len(got.Chunks) {
		t.Errorf("len(Chunks) = %d, want %d", len(got.Chunks), chunk)
	}
}

func TestReconciler_Valid(t *testing.T) {
	tests := []struct {
		name string
		seg  RawSegment
		want bool
	}{
		{"ordinary", seg(0, 1, "x"), true},
		{"equal bounds", seg(1, 1, "x"), false},
		{"reversed bounds", seg(2, 1, "x"), false},
		{"empty text", seg(0, 1, ""), false},
		{"whitespace text", seg(0, 1, " \t"), false},
		{"no bounds", RawSegment{Text: "x"}, true},
		{"no bounds no text", RawSegment{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Reconciler{}).Valid(tt.seg); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
