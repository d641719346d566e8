package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"brainspace/did"
	"brainspace/gemini"
	"brainspace/summary"
	"brainspace/transcripts"

	"github.com/gorilla/mux"
)

type (
	TranscriptionService interface {
		Transcribe(ctx context.Context, name string, body io.Reader) (transcripts.Transcript, error)
		TranscribeSource(ctx context.Context, source string) (transcripts.Transcript, error)
	}

	TranscriptionHistory interface {
		ListTranscriptions(ctx context.Context, limit int) ([]transcripts.TranscriptionRecord, error)
		GetTranscription(ctx context.Context, id string) (transcripts.TranscriptionRecord, error)
	}

	Generator interface {
		Generate(ctx context.Context, prompt string, o *gemini.GenerationOverrides) (string, error)
	}

	Summarizer interface {
		SupportingSentences(ctx context.Context, t transcripts.Transcript, chunks []transcripts.Chunk) (summary.Result, error)
	}

	TalkClient interface {
		CreateTalk(ctx context.Context, scriptText string) (map[string]any, error)
		GetTalk(ctx context.Context, id string) (map[string]any, error)
	}

	TalkStore interface {
		CreateTalk(ctx context.Context, t did.Talk) error
		UpdateTalk(ctx context.Context, id, status, resultURL string, at time.Time) error
		GetTalk(ctx context.Context, id string) (did.Talk, error)
	}

	// Deps are the collaborators the handlers need. Generator, Summarizer
	// and Talks may be nil when the matching upstream is not configured;
	// their routes then answer 503.
	Deps struct {
		APIKey         string
		ServiceName    string
		MaxUploadBytes int64

		Transcripts TranscriptionService
		History     TranscriptionHistory
		Generator   Generator
		Summarizer  Summarizer
		Talks       TalkClient
		TalkStore   TalkStore
		Logger      *slog.Logger
	}

	handler struct {
		Deps
	}
)

// NewRouter wires every route. Only /healthz is reachable without the
// x-api-key header.
func NewRouter(d Deps) *mux.Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.ServiceName == "" {
		d.ServiceName = "brainspace AI gateway"
	}
	h := handler{d}

	r := mux.NewRouter()
	r.Use(requestLogger(d.Logger))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	a := r.NewRoute().Subrouter()
	a.Use(requireAPIKey(d.APIKey))
	a.HandleFunc("/transcribe{slash:/?}", h.transcribe).Methods(http.MethodPost)
	a.HandleFunc("/transcribe-stream{slash:/?}", h.transcribeStream).Methods(http.MethodPost)
	a.HandleFunc("/transcribe-from-path{slash:/?}", h.transcribeFromPath).Methods(http.MethodPost)
	a.HandleFunc("/transcriptions", h.listTranscriptions).Methods(http.MethodGet)
	a.HandleFunc("/transcriptions/{id}", h.getTranscription).Methods(http.MethodGet)
	a.HandleFunc("/generate", h.generate).Methods(http.MethodPost)
	a.HandleFunc("/summarize", h.summarize).Methods(http.MethodPost)
	a.HandleFunc("/create-talk", h.createTalk).Methods(http.MethodPost)
	a.HandleFunc("/get-talk", h.getTalk).Methods(http.MethodPost)
	a.HandleFunc("/webhook", h.webhook).Methods(http.MethodPost)
	a.HandleFunc("/talks/{id}", h.storedTalk).Methods(http.MethodGet)

	return r
}
