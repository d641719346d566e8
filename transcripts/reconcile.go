package transcripts

import "strings"

// noCarry marks that no invalid segment precedes the current one.
const noCarry = -1.0

// Reconciler turns raw recognition segments into a clean chunk sequence.
// The zero value treats 0 as a real timestamp.
type Reconciler struct {
	// ZeroIsMissing makes a bound equal to 0 count as unreported, matching
	// older deployments that tested timestamps for truthiness.
	ZeroIsMissing bool
}

// Reconcile runs the default Reconciler over segs.
func Reconcile(segs []RawSegment) Transcript {
	return Reconciler{}.Reconcile(segs)
}

// Reconcile is a single pass over segs. An invalid segment emits nothing but
// leaves its start behind; the next valid chunk takes the later of that
// carried start and its own. Invalid segments after the last valid one are
// dropped.
func (r Reconciler) Reconcile(segs []RawSegment) Transcript {
	res := Transcript{Chunks: make([]Chunk, 0, len(segs))}
	texts := make([]string, 0, len(segs))

	carry := noCarry
	for _, s := range segs {
		text := strings.TrimSpace(s.Text)
		if text != "" {
			texts = append(texts, text)
		}

		if !r.Valid(s) {
			carry = noCarry
			if s.Start != nil {
				carry = *s.Start
			}
			continue
		}

		var t float64
		switch {
		case s.Start != nil:
			t = max(carry, *s.Start)
		case carry != noCarry:
			t = carry
		}
		res.Chunks = append(res.Chunks, Chunk{Time: t, Text: text})
		carry = noCarry
	}

	res.Text = strings.Join(texts, " ")
	return res
}

// Valid reports whether s carries text and, when both bounds are known,
// a strictly increasing time range.
func (r Reconciler) Valid(s RawSegment) bool {
	if strings.TrimSpace(s.Text) == "" {
		return false
	}

	start, end := r.bound(s.Start), r.bound(s.End)
	if start == nil || end == nil {
		return true
	}
	return *start < *end
}

func (r Reconciler) bound(v *float64) *float64 {
	if v == nil || (r.ZeroIsMissing && *v == 0) {
		return nil
	}
	return v
}
