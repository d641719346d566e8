package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"brainspace/api"
	"brainspace/config"
	"brainspace/did"
	"brainspace/gemini"
	"brainspace/summary"
	"brainspace/transcripts"
	"brainspace/whisper"

	"github.com/mattn/go-sqlite3"
)

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log, os.Stderr)

	db, err := initDB(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ts, err := newTranscriptionService(cfg, db, logger)
	if err != nil {
		return err
	}

	deps := api.Deps{
		APIKey:         cfg.Auth.APIKey,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Transcripts:    ts,
		History:        transcripts.NewSQLiteRepo(db),
		TalkStore:      did.NewSQLiteRepo(db),
		Logger:         logger,
	}
	if cfg.Auth.APIKey == "" {
		logger.Warn("no api key configured, every authenticated route will answer 401")
	}

	// Interface fields stay nil unless the client was built, so the
	// handlers can tell an unconfigured upstream apart.
	gc, err := gemini.NewClient(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.Gemini.Timeout.Duration,
		Generation: gemini.GenerationConfig{
			Temperature:     cfg.Gemini.Temperature,
			TopP:            cfg.Gemini.TopP,
			TopK:            cfg.Gemini.TopK,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		},
		Retry: gemini.RetryPolicy{
			MaxAttempts: cfg.Gemini.Retry.MaxAttempts,
			Unit:        cfg.Gemini.Retry.Unit.Duration,
			Min:         cfg.Gemini.Retry.Min,
			Max:         cfg.Gemini.Retry.Max,
		},
	})
	switch {
	case err == nil:
		deps.Generator = gc
		deps.Summarizer = summary.New(gc)
	case errors.Is(err, gemini.ErrNoAPIKey):
		logger.Warn("gemini disabled", "err", err)
	default:
		return err
	}

	dc, err := did.NewClient(did.Config{
		APIURL:    cfg.DID.APIURL,
		APIKey:    cfg.DID.APIKey,
		SourceURL: cfg.DID.SourceURL,
		VoiceID:   cfg.DID.VoiceID,
		Timeout:   cfg.DID.Timeout.Duration,
	})
	switch {
	case err == nil:
		deps.Talks = dc
	case errors.Is(err, did.ErrNotConfigured):
		logger.Warn("d-id disabled", "err", err)
	default:
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "whisper_backend", cfg.Whisper.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http listen and serve: %w", err)
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func newTranscriptionService(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*transcripts.Service, error) {
	var t transcripts.Transcriber
	switch cfg.Whisper.Backend {
	case "openai":
		t = whisper.NewOpenAITranscriber(whisper.OpenAIConfig{
			APIKey:   cfg.Whisper.OpenAIKey,
			BaseURL:  cfg.Whisper.OpenAIURL,
			Model:    cfg.Whisper.OpenAIModel,
			Language: cfg.Whisper.Language,
		})
	default:
		t = whisper.NewWhisperxTranscriber(whisper.WhisperxConfig{
			Command:     cfg.Whisper.Command,
			Model:       cfg.Whisper.Model,
			Device:      cfg.Whisper.Device,
			ComputeType: cfg.Whisper.ComputeType,
			Language:    cfg.Whisper.Language,
			BeamSize:    cfg.Whisper.BeamSize,
			ScratchDir:  cfg.Whisper.ScratchDir,
		}, logger)
	}

	return transcripts.NewService(transcripts.NewSQLiteRepo(db), t, transcripts.ServiceConfig{
		ScratchDir:    cfg.Whisper.ScratchDir,
		MediaRoot:     cfg.Whisper.MediaRoot,
		ZeroIsMissing: cfg.Transcripts.ZeroTimestampIsMissing,
	}, logger)
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", "brainspace")
}

const sqlitePragmas = `
	PRAGMA busy_timeout       = 10000;
	PRAGMA journal_mode       = WAL;
	PRAGMA journal_size_limit = 200000000;
	PRAGMA synchronous        = NORMAL;
	PRAGMA foreign_keys       = ON;
	PRAGMA temp_store         = MEMORY;
	PRAGMA cache_size         = -16000;`

// Pragmas are per connection, so every connection the pool opens runs them.
func init() {
	sql.Register("sqlite3_brainspace", &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if _, err := conn.Exec(sqlitePragmas, nil); err != nil {
				return fmt.Errorf("setting pragmas: %w", err)
			}
			return nil
		},
	})
}

func initDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3_brainspace", "file:"+path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if err := transcripts.NewSQLiteRepo(db).Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := did.NewSQLiteRepo(db).Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
