package transcripts

import (
	"errors"
	"time"
)

var (
	ErrEmptyMedia     = errors.New("empty file received")
	ErrPathNotAllowed = errors.New("path is not allowed")
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

type (
	// RawSegment is one recognition span as the source produced it. A nil
	// bound means the source did not report it.
	RawSegment struct {
		Start *float64
		End   *float64
		Text  string
	}

	Chunk struct {
		Time float64 `json:"time"`
		Text string  `json:"text"`
	}

	Transcript struct {
		Text   string  `json:"text"`
		Chunks []Chunk `json:"chunks"`
	}

	TranscriptionRecord struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Blake3Hash   string    `json:"blake3_hash"`
		SizeBytes    int64     `json:"size_bytes"`
		Status       string    `json:"status"`
		SegmentCount int       `json:"segment_count"`
		ChunkCount   int       `json:"chunk_count"`
		DurationMs   int64     `json:"duration_ms"`
		Error        string    `json:"error,omitempty"`
		CreatedAt    time.Time `json:"created_at"`
	}
)

// Seconds returns a pointer to v, for building segments with known bounds.
func Seconds(v float64) *float64 {
	return &v
}
