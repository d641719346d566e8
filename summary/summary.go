package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"brainspace/gemini"
	"brainspace/transcripts"

	"github.com/shopspring/decimal"
)

type (
	generator interface {
		Generate(ctx context.Context, prompt string, o *gemini.GenerationOverrides) (string, error)
	}

	// Timestamp decodes a JSON number, a numeric string or a clock string
	// ("M:SS", "H:MM:SS.mmm") and encodes as a number of seconds.
	Timestamp struct {
		decimal.Decimal
	}

	Sentence struct {
		Text string    `json:"text"`
		Time Timestamp `json:"time"`
	}

	KeyPoint struct {
		Text                string     `json:"text"`
		Time                Timestamp  `json:"time"`
		SupportingSentences []Sentence `json:"supporting_sentences"`
	}

	// Result holds either the extracted key points or, when the model's
	// answer could not be parsed, the transcript that was sent.
	Result struct {
		KeyPoints  []KeyPoint
		Transcript *transcripts.Transcript
	}

	Summarizer struct {
		gen generator
	}
)

func New(gen generator) *Summarizer {
	return &Summarizer{gen: gen}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(t.Decimal.String()), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if err := t.Decimal.UnmarshalJSON(b); err == nil {
		return nil
	}

	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("timestamp %s: not a number or string", b)
	}
	d, ok := parseClock(v)
	if !ok {
		return fmt.Errorf("timestamp %q: not a number or clock time", v)
	}
	t.Decimal = d
	return nil
}

// parseClock reads "M:SS" or "H:MM:SS", seconds optionally fractional with
// a dot or comma.
func parseClock(v string) (decimal.Decimal, bool) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return decimal.Decimal{}, false
	}

	sec, err := decimal.NewFromString(strings.Replace(parts[len(parts)-1], ",", ".", 1))
	if err != nil || sec.IsNegative() {
		return decimal.Decimal{}, false
	}
	total := sec
	scale := int64(60)
	for i := len(parts) - 2; i >= 0; i-- {
		n, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil || n < 0 {
			return decimal.Decimal{}, false
		}
		total = total.Add(decimal.NewFromInt(n * scale))
		scale *= 60
	}
	return total, true
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Transcript != nil {
		return json.Marshal(r.Transcript)
	}
	if r.KeyPoints == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.KeyPoints)
}

// SupportingSentences asks the model to pair each point of t with the chunks
// that back it up. Only a failed generation is an error; an unusable answer
// yields t unchanged.
func (s *Summarizer) SupportingSentences(ctx context.Context, t transcripts.Transcript, chunks []transcripts.Chunk) (Result, error) {
	prompt, err := buildPrompt(t, chunks)
	if err != nil {
		return Result{}, err
	}

	answer, err := s.gen.Generate(ctx, prompt, nil)
	if err != nil {
		return Result{}, fmt.Errorf("generating supporting sentences: %w", err)
	}

	points, ok := Parse(answer)
	if !ok {
		return Result{Transcript: &t}, nil
	}
	return Result{KeyPoints: points}, nil
}

// StripFences removes markdown code fences the model wraps answers in.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// Parse extracts key points from a model answer, reporting false when the
// answer is not a JSON array of key points.
func Parse(answer string) ([]KeyPoint, bool) {
	var points []KeyPoint
	if err := json.Unmarshal([]byte(StripFences(answer)), &points); err != nil {
		return nil, false
	}
	if points == nil {
		return nil, false
	}
	return points, true
}

func buildPrompt(t transcripts.Transcript, chunks []transcripts.Chunk) (string, error) {
	if chunks == nil {
		chunks = []transcripts.Chunk{}
	}
	tj, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encoding transcript for prompt: %w", err)
	}
	cj, err := json.Marshal(chunks)
	if err != nil {
		return "", fmt.Errorf("encoding chunks for prompt: %w", err)
	}

	return fmt.Sprintf(promptTemplate, tj, cj), nil
}

const promptTemplate = `Preserving the key points and main message, identify supporting evidence for each transcript item.

Transcript:
%s

Time-stamped segments:
%s

Return ONLY a valid JSON array with the following structure, without any additional text, code formatting, prefixes, or line numbers:

[
  {
    "text": "The 'text' value from the first chunk in 'Transcript'",
    "time": "The 'time' value from the first chunk in 'Transcript'",
    "supporting_sentences": [
      {
        "text": "The 'text' value from the first relevant item in 'Time-stamped segments'",
        "time": "The 'time' value from the first relevant item in 'Time-stamped segments'"
      }
    ]
  }
]

IMPORTANT:
1. Focus on preserving the key points and main message of the transcript
2. Make each summary point concise but informative
3. Do not include any text outside the JSON array
4. Do not add markdown code blocks, backticks, or any other formatting
5. Do not include numbering or bullet points
6. Ensure the response is valid, parseable JSON
7. Each summary point should be supported by relevant sentences from the transcript
8. Do not add any explanations before or after the JSON`
