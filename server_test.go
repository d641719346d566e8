package main

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"brainspace/config"
	"brainspace/transcripts"
)

func TestInitDB(t *testing.T) {
	ctx := context.Background()
	db, err := initDB(ctx, filepath.Join(t.TempDir(), "brainspace.db"))
	if err != nil {
		t.Fatalf("initDB: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"transcriptions", "talks"} {
		var name string
		err := db.QueryRowContext(ctx, `select name from sqlite_master where type = 'table' and name = $1`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}

	recs, err := transcripts.NewSQLiteRepo(db).ListTranscriptions(ctx, 10)
	if err != nil || len(recs) != 0 {
		t.Errorf("ListTranscriptions = %v, %v", recs, err)
	}
}

func TestInitDB_PragmasOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	db, err := initDB(ctx, filepath.Join(t.TempDir(), "brainspace.db"))
	if err != nil {
		t.Fatalf("initDB: %v", err)
	}
	defer db.Close()

	// Holding the first connection forces the pool to open a second one.
	first, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	for n, c := range []*sql.Conn{first, second} {
		var timeout int
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("conn %d: %v", n, err)
		}
		if timeout != 10000 {
			t.Errorf("conn %d: busy_timeout = %d, want 10000", n, timeout)
		}
		var mode string
		if err := c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("conn %d: %v", n, err)
		}
		if mode != "wal" {
			t.Errorf("conn %d: journal_mode = %q, want wal", n, mode)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "service=brainspace") {
		t.Errorf("output = %q", out)
	}
}

func TestNewTranscriptionService_Backends(t *testing.T) {
	ctx := context.Background()
	db, err := initDB(ctx, filepath.Join(t.TempDir(), "brainspace.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for _, backend := range []string{"whisperx", "openai"} {
		cfg := config.Default()
		cfg.Whisper.Backend = backend
		if _, err := newTranscriptionService(cfg, db, newLogger(cfg.Log, &bytes.Buffer{})); err != nil {
			t.Errorf("%s: %v", backend, err)
		}
	}
}
