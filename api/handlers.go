package api

import (
	"database/sql"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"brainspace/did"
	"brainspace/gemini"
	"brainspace/transcripts"

	"github.com/gorilla/mux"
)

func (h handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "online",
		"service": h.ServiceName,
	})
}

func (h handler) transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	h.transcribeMultipart(w, r)
}

// transcribeStream takes the raw request body as media, unless the client
// sent a form.
func (h handler) transcribeStream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		h.transcribeMultipart(w, r)
		return
	}

	t, err := h.Transcripts.Transcribe(r.Context(), "stream.mp4", r.Body)
	if err != nil {
		h.transcriptionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

// transcribeMultipart streams the "file" part straight to the service
// without buffering the form.
func (h handler) transcribeMultipart(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "expected multipart/form-data with a file field")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "No file in form-data")
			return
		}
		if err != nil {
			h.transcriptionError(w, r, err)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		t, err := h.Transcripts.Transcribe(r.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			h.transcriptionError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, t)
		return
	}
}

type pathRequest struct {
	FilePath string `json:"file_path"`
}

func (h handler) transcribeFromPath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FilePath == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "file_path is required")
		return
	}

	t, err := h.Transcripts.TranscribeSource(r.Context(), req.FilePath)
	if err != nil {
		h.transcriptionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (h handler) transcriptionError(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, transcripts.ErrEmptyMedia):
		writeError(w, r, http.StatusBadRequest, "Empty file received")
	case errors.Is(err, transcripts.ErrPathNotAllowed):
		writeError(w, r, http.StatusBadRequest, "file_path is not allowed")
	case errors.As(err, &tooBig):
		writeError(w, r, http.StatusRequestEntityTooLarge, "file exceeds "+strconv.FormatInt(tooBig.Limit, 10)+" bytes")
	default:
		writeError(w, r, http.StatusInternalServerError, "Transcription error: "+err.Error())
	}
}

func (h handler) listTranscriptions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, r, http.StatusUnprocessableEntity, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	recs, err := h.History.ListTranscriptions(r.Context(), limit)
	if err != nil {
		h.Logger.Error("listing transcriptions", "err", err)
		writeError(w, r, http.StatusInternalServerError, "listing transcriptions failed")
		return
	}
	writeJSON(w, r, http.StatusOK, recs)
}

func (h handler) getTranscription(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.History.GetTranscription(r.Context(), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, r, http.StatusNotFound, "transcription not found")
	case err != nil:
		h.Logger.Error("getting transcription", "id", id, "err", err)
		writeError(w, r, http.StatusInternalServerError, "getting transcription failed")
	default:
		writeJSON(w, r, http.StatusOK, rec)
	}
}

type generateRequest struct {
	Prompt           string                      `json:"prompt"`
	GenerationConfig *gemini.GenerationOverrides `json:"generation_config"`
}

func (h handler) generate(w http.ResponseWriter, r *http.Request) {
	if h.Generator == nil {
		writeError(w, r, http.StatusServiceUnavailable, "generative text service is not configured")
		return
	}

	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "prompt is required")
		return
	}

	text, err := h.Generator.Generate(r.Context(), req.Prompt, req.GenerationConfig)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed after retries: "+err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"text": text})
}

type summarizeRequest struct {
	Transcripts transcripts.Transcript `json:"transcripts"`
	Chunks      []transcripts.Chunk    `json:"chunks"`
}

func (h handler) summarize(w http.ResponseWriter, r *http.Request) {
	if h.Summarizer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "generative text service is not configured")
		return
	}

	var req summarizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Transcripts.Chunks == nil {
		req.Transcripts.Chunks = []transcripts.Chunk{}
	}

	res, err := h.Summarizer.SupportingSentences(r.Context(), req.Transcripts, req.Chunks)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed after retries: "+err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

type createTalkRequest struct {
	ScriptText string `json:"script_text"`
}

func (h handler) createTalk(w http.ResponseWriter, r *http.Request) {
	if h.Talks == nil {
		writeError(w, r, http.StatusServiceUnavailable, did.ErrNotConfigured.Error())
		return
	}

	var req createTalkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ScriptText) == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "script_text is required")
		return
	}

	res, err := h.Talks.CreateTalk(r.Context(), req.ScriptText)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	if id := did.StringField(res, "id"); id != "" && h.TalkStore != nil {
		now := time.Now().UTC()
		err := h.TalkStore.CreateTalk(r.Context(), did.Talk{
			ID:        id,
			Script:    req.ScriptText,
			Status:    did.StringField(res, "status"),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			h.Logger.Warn("storing talk", "id", id, "err", err)
		}
	}
	writeJSON(w, r, http.StatusOK, res)
}

type getTalkRequest struct {
	ID          string                 `json:"id"`
	Transcripts transcripts.Transcript `json:"transcripts"`
}

// getTalk fetches a talk and, once it has rendered, transcribes the video
// and backs each of its points with sentences from the caller's transcript.
func (h handler) getTalk(w http.ResponseWriter, r *http.Request) {
	if h.Talks == nil {
		writeError(w, r, http.StatusServiceUnavailable, did.ErrNotConfigured.Error())
		return
	}

	var req getTalkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, r, http.StatusBadRequest, "Missing 'id' in request body")
		return
	}

	talk, err := h.Talks.GetTalk(r.Context(), req.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	resultURL := did.StringField(talk, "result_url")
	h.recordTalk(r, req.ID, did.StringField(talk, "status"), resultURL)
	if resultURL == "" {
		writeJSON(w, r, http.StatusOK, talk)
		return
	}

	t, err := h.Transcripts.TranscribeSource(r.Context(), resultURL)
	if err != nil {
		h.transcriptionError(w, r, err)
		return
	}
	talk["transcripts"] = t

	if h.Summarizer != nil {
		res, err := h.Summarizer.SupportingSentences(r.Context(), t, req.Transcripts.Chunks)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Failed after retries: "+err.Error())
			return
		}
		talk["transcripts"] = res
	}
	writeJSON(w, r, http.StatusOK, talk)
}

func (h handler) webhook(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	if !decodeBody(w, r, &body) {
		return
	}

	resultURL := did.StringField(body, "result_url")
	if id := did.StringField(body, "id"); id != "" {
		h.recordTalk(r, id, did.StringField(body, "status"), resultURL)
	}
	h.Logger.Info("talk webhook", "id", did.StringField(body, "id"), "status", did.StringField(body, "status"))

	writeJSON(w, r, http.StatusOK, map[string]string{"result_url": resultURL})
}

// storedTalk answers from the local talk store without calling D-ID.
func (h handler) storedTalk(w http.ResponseWriter, r *http.Request) {
	if h.TalkStore == nil {
		writeError(w, r, http.StatusServiceUnavailable, "talk store is not configured")
		return
	}

	id := mux.Vars(r)["id"]
	t, err := h.TalkStore.GetTalk(r.Context(), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, r, http.StatusNotFound, "talk not found")
	case err != nil:
		h.Logger.Error("getting talk", "id", id, "err", err)
		writeError(w, r, http.StatusInternalServerError, "getting talk failed")
	default:
		writeJSON(w, r, http.StatusOK, t)
	}
}

func (h handler) recordTalk(r *http.Request, id, status, resultURL string) {
	if h.TalkStore == nil {
		return
	}
	if err := h.TalkStore.UpdateTalk(r.Context(), id, status, resultURL, time.Now().UTC()); err != nil {
		h.Logger.Warn("updating talk", "id", id, "err", err)
	}
}
