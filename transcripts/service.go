package transcripts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"brainspace/b3"

	"github.com/google/uuid"
)

type (
	repo interface {
		CreateTranscription(ctx context.Context, rec TranscriptionRecord) error
		FinishTranscription(ctx context.Context, rec TranscriptionRecord) error
	}

	ServiceConfig struct {
		// ScratchDir holds uploaded media for the lifetime of one request.
		// Empty means the system temp dir.
		ScratchDir string
		// MediaRoot is the only directory local paths may be read from.
		// Empty disables local paths entirely.
		MediaRoot     string
		ZeroIsMissing bool
		HTTPClient    *http.Client
	}

	Service struct {
		r   repo
		t   Transcriber
		rc  Reconciler
		cfg ServiceConfig
		log *slog.Logger
	}
)

func NewService(r repo, t Transcriber, cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	if cfg.MediaRoot != "" {
		root, err := filepath.Abs(cfg.MediaRoot)
		if err != nil {
			return nil, fmt.Errorf("resolving media root: %w", err)
		}
		if root, err = filepath.EvalSymlinks(root); err != nil {
			return nil, fmt.Errorf("resolving media root: %w", err)
		}
		cfg.MediaRoot = root
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		r:   r,
		t:   t,
		rc:  Reconciler{ZeroIsMissing: cfg.ZeroIsMissing},
		cfg: cfg,
		log: logger,
	}, nil
}

// Transcribe spools body to a scratch file, transcribes it and reconciles
// the result. The scratch file is removed before returning.
func (s *Service) Transcribe(ctx context.Context, name string, body io.Reader) (Transcript, error) {
	path, hash, size, cleanup, err := s.spool(name, body)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribe: %w", err)
	}
	defer cleanup()

	if size == 0 {
		return Transcript{}, ErrEmptyMedia
	}

	return s.run(ctx, name, hash, size, path)
}

// TranscribeSource transcribes an http(s) URL or a path under the media root.
func (s *Service) TranscribeSource(ctx context.Context, source string) (Transcript, error) {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return s.transcribeURL(ctx, u)
	}

	path, err := s.resolveLocal(source)
	if err != nil {
		return Transcript{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribe source: opening file: %w", err)
	}
	defer f.Close()

	hash, size, err := b3.Copy(io.Discard, f)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribe source: %w", err)
	}
	if size == 0 {
		return Transcript{}, ErrEmptyMedia
	}

	return s.run(ctx, filepath.Base(path), hash, size, path)
}

func (s *Service) transcribeURL(ctx context.Context, u *url.URL) (Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribe url: building request: %w", err)
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribe url: downloading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Transcript{}, fmt.Errorf("transcribe url: downloading: unexpected status %d", resp.StatusCode)
	}

	return s.Transcribe(ctx, filepath.Base(u.Path), resp.Body)
}

func (s *Service) resolveLocal(source string) (string, error) {
	root := s.cfg.MediaRoot
	if root == "" || source == "" {
		return "", ErrPathNotAllowed
	}

	p := source
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !within(root, p) {
		return "", ErrPathNotAllowed
	}

	// Links inside the root may still point outside it.
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("transcribe source: %w", err)
	}
	if !within(root, resolved) {
		return "", ErrPathNotAllowed
	}

	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *Service) spool(name string, body io.Reader) (string, string, int64, func(), error) {
	f, err := os.CreateTemp(s.cfg.ScratchDir, "upload-*"+filepath.Ext(name))
	if err != nil {
		return "", "", 0, nil, fmt.Errorf("creating scratch file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("removing scratch file", "path", f.Name(), "err", err)
		}
	}

	hash, size, err := b3.Copy(f, body)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing scratch file: %w", cerr)
	}
	if err != nil {
		cleanup()
		return "", "", 0, nil, fmt.Errorf("spooling upload: %w", err)
	}

	return f.Name(), hash, size, cleanup, nil
}

func (s *Service) run(ctx context.Context, name, hash string, size int64, path string) (Transcript, error) {
	started := time.Now()
	rec := TranscriptionRecord{
		ID:         uuid.NewString(),
		Name:       name,
		Blake3Hash: hash,
		SizeBytes:  size,
		Status:     StatusPending,
		CreatedAt:  started.UTC(),
	}
	if err := s.r.CreateTranscription(ctx, rec); err != nil {
		s.log.Warn("recording transcription", "id", rec.ID, "err", err)
	}

	tr, err := s.t.Transcribe(ctx, path)
	rec.DurationMs = time.Since(started).Milliseconds()
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		s.finish(rec)
		s.log.Error("transcription failed", "id", rec.ID, "file_size", size, "err", err)
		return Transcript{}, fmt.Errorf("transcribing %s: %w", name, err)
	}

	res := s.rc.Reconcile(tr.Segments)
	rec.Status = StatusDone
	rec.SegmentCount = len(tr.Segments)
	rec.ChunkCount = len(res.Chunks)
	s.finish(rec)

	s.log.Info("transcribed",
		"id", rec.ID,
		"time_ms", rec.DurationMs,
		"file_size", size,
		"segments", rec.SegmentCount,
		"chunks", rec.ChunkCount,
	)
	return res, nil
}

// finish records the outcome even if the request context is already done.
func (s *Service) finish(rec TranscriptionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.r.FinishTranscription(ctx, rec); err != nil {
		s.log.Warn("recording transcription outcome", "id", rec.ID, "err", err)
	}
}
