package whisper

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"brainspace/transcripts"

	"github.com/shopspring/decimal"
)

// The recognizers this package talks to disagree on where segment timings
// live. output covers the shapes seen in practice:
//
//	segments[{start, end, text}]                     whisperx, faster-whisper
//	chunks[{timestamp: [start, end], text}]          transformers pipeline
//	transcription[{offsets: {from, to}, text}]       whisper.cpp, offsets in ms
//	transcription[{timestamps: {from, to}, text}]    whisper.cpp, "HH:MM:SS,mmm"
type (
	output struct {
		Language      string           `json:"language"`
		Duration      *decimal.Decimal `json:"duration"`
		Segments      []segment        `json:"segments"`
		Chunks        []segment        `json:"chunks"`
		Transcription []segment        `json:"transcription"`
		Result        struct {
			Language string `json:"language"`
		} `json:"result"`
	}

	segment struct {
		Text       string             `json:"text"`
		Start      *decimal.Decimal   `json:"start"`
		End        *decimal.Decimal   `json:"end"`
		Timestamp  []*decimal.Decimal `json:"timestamp"`
		Offsets    *msSpan            `json:"offsets"`
		Timestamps *clockSpan         `json:"timestamps"`
	}

	msSpan struct {
		From *decimal.Decimal `json:"from"`
		To   *decimal.Decimal `json:"to"`
	}

	clockSpan struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
)

var msPerSecond = decimal.NewFromInt(1000)

// Decode reads a recognizer JSON document and normalizes it.
func Decode(r io.Reader) (transcripts.TranscribeResult, error) {
	var out output
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return transcripts.TranscribeResult{}, fmt.Errorf("decoding recognizer json: %w", err)
	}

	return normalize(out), nil
}

func normalize(out output) transcripts.TranscribeResult {
	segs := out.Segments
	switch {
	case len(segs) > 0:
	case len(out.Chunks) > 0:
		segs = out.Chunks
	default:
		segs = out.Transcription
	}

	res := transcripts.TranscribeResult{
		Language: out.Language,
		Segments: make([]transcripts.RawSegment, len(segs)),
	}
	if res.Language == "" {
		res.Language = out.Result.Language
	}
	if out.Duration != nil {
		res.Duration = out.Duration.InexactFloat64()
	}

	for n, s := range segs {
		start, end := s.bounds()
		res.Segments[n] = transcripts.RawSegment{
			Start: seconds(start),
			End:   seconds(end),
			Text:  s.Text,
		}
	}
	return res
}

func (s segment) bounds() (*decimal.Decimal, *decimal.Decimal) {
	switch {
	case s.Start != nil || s.End != nil:
		return s.Start, s.End
	case len(s.Timestamp) > 0:
		var end *decimal.Decimal
		if len(s.Timestamp) > 1 {
			end = s.Timestamp[1]
		}
		return s.Timestamp[0], end
	case s.Offsets != nil:
		return fromMs(s.Offsets.From), fromMs(s.Offsets.To)
	case s.Timestamps != nil:
		return parseClock(s.Timestamps.From), parseClock(s.Timestamps.To)
	}
	return nil, nil
}

func seconds(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	return transcripts.Seconds(d.InexactFloat64())
}

func fromMs(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	s := d.Div(msPerSecond)
	return &s
}

// parseClock parses "HH:MM:SS,mmm" (or with a dot) into seconds.
func parseClock(v string) *decimal.Decimal {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 3 {
		return nil
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}
	sec, err := decimal.NewFromString(strings.Replace(parts[2], ",", ".", 1))
	if err != nil {
		return nil
	}

	total := decimal.NewFromInt(int64(h*3600 + m*60)).Add(sec)
	return &total
}
