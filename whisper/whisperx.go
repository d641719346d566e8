package whisper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"brainspace/transcripts"
)

type (
	WhisperxConfig struct {
		// Command is the whisperx executable. Defaults to "whisperx".
		Command     string
		Model       string
		Device      string
		ComputeType string
		Language    string
		BeamSize    int
		// ScratchDir receives the per-run output directory.
		ScratchDir string
	}

	// WhisperxTranscriber runs the whisperx CLI as a child process and reads
	// its JSON output.
	WhisperxTranscriber struct {
		cfg WhisperxConfig
		log *slog.Logger
	}
)

var _ transcripts.Transcriber = (*WhisperxTranscriber)(nil)

func NewWhisperxTranscriber(cfg WhisperxConfig, logger *slog.Logger) *WhisperxTranscriber {
	if cfg.Command == "" {
		cfg.Command = "whisperx"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WhisperxTranscriber{cfg: cfg, log: logger.With("backend", "whisperx")}
}

func (w *WhisperxTranscriber) Transcribe(ctx context.Context, filePath string) (transcripts.TranscribeResult, error) {
	outDir, err := os.MkdirTemp(w.cfg.ScratchDir, "whisperx-*")
	if err != nil {
		return transcripts.TranscribeResult{}, fmt.Errorf("creating whisperx output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, w.cfg.Command, w.args(filePath, outDir)...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return transcripts.TranscribeResult{}, fmt.Errorf("whisperx stderr pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return transcripts.TranscribeResult{}, fmt.Errorf("whisperx stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return transcripts.TranscribeResult{}, fmt.Errorf("starting whisperx: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go w.logLines(&wg, "stderr", stderr)
	go w.logLines(&wg, "stdout", stdout)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return transcripts.TranscribeResult{}, fmt.Errorf("transcribing with whisperx: %w", err)
	}

	base := filepath.Base(filePath)
	resultPath := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".json")
	f, err := os.Open(resultPath)
	if err != nil {
		return transcripts.TranscribeResult{}, fmt.Errorf("opening whisperx transcribe result: %w", err)
	}
	defer f.Close()

	res, err := Decode(f)
	if err != nil {
		return transcripts.TranscribeResult{}, fmt.Errorf("whisperx result: %w", err)
	}
	return res, nil
}

func (w *WhisperxTranscriber) args(filePath, outDir string) []string {
	args := []string{filePath, "--output_dir", outDir, "--output_format", "json"}
	if w.cfg.Model != "" {
		args = append(args, "--model", w.cfg.Model)
	}
	if w.cfg.Device != "" {
		args = append(args, "--device", w.cfg.Device)
	}
	if w.cfg.ComputeType != "" {
		args = append(args, "--compute_type", w.cfg.ComputeType)
	}
	if w.cfg.Language != "" {
		args = append(args, "--language", w.cfg.Language)
	}
	if w.cfg.BeamSize > 0 {
		args = append(args, "--beam_size", strconv.Itoa(w.cfg.BeamSize))
	}
	return args
}

func (w *WhisperxTranscriber) logLines(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanTerminalLines)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			w.log.Debug(line, "stream", stream)
		}
	}
	if err := scanner.Err(); err != nil {
		w.log.Warn("reading whisperx output", "stream", stream, "err", err)
	}

	// The child blocks on a full pipe if nobody reads it.
	io.Copy(io.Discard, r)
}

// scanTerminalLines splits on "\n" and on the bare "\r" progress bars use to
// redraw a line.
func scanTerminalLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
