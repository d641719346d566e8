package whisper

import (
	"context"
	"fmt"

	"brainspace/transcripts"

	openai "github.com/sashabaranov/go-openai"
)

type (
	OpenAIConfig struct {
		APIKey string
		// BaseURL points at any OpenAI-compatible transcription server.
		BaseURL  string
		Model    string
		Language string
	}

	// OpenAITranscriber asks an OpenAI-compatible audio endpoint for a
	// verbose JSON transcription so segment timings come back.
	OpenAITranscriber struct {
		client *openai.Client
		cfg    OpenAIConfig
	}
)

var _ transcripts.Transcriber = (*OpenAITranscriber)(nil)

func NewOpenAITranscriber(cfg OpenAIConfig) *OpenAITranscriber {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	return &OpenAITranscriber{client: openai.NewClientWithConfig(c), cfg: cfg}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, filePath string) (transcripts.TranscribeResult, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.cfg.Model,
		FilePath: filePath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: t.cfg.Language,
	})
	if err != nil {
		return transcripts.TranscribeResult{}, fmt.Errorf("transcribing with openai: %w", err)
	}

	res := transcripts.TranscribeResult{
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: make([]transcripts.RawSegment, len(resp.Segments)),
	}
	for n, s := range resp.Segments {
		res.Segments[n] = transcripts.RawSegment{
			Start: transcripts.Seconds(s.Start),
			End:   transcripts.Seconds(s.End),
			Text:  s.Text,
		}
	}
	return res, nil
}
