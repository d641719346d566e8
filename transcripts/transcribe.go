package transcripts

import "context"

type (
	// Transcriber is a speech recognition backend. Implementations normalize
	// their own output into RawSegments before returning.
	Transcriber interface {
		Transcribe(ctx context.Context, filePath string) (TranscribeResult, error)
	}

	TranscribeResult struct {
		Language string
		Duration float64
		Segments []RawSegment
	}
)
