package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/subtitle"
)

// LocalBackend runs whisper-cli against a local ggml model.
type LocalBackend struct {
	runner     *media.Runner
	binaryPath string
	cache      *ModelCache
	threads    int
	logger     *slog.Logger
}

// NewLocalBackend creates a whisper-cli backend.
func NewLocalBackend(runner *media.Runner, binaryPath string, cache *ModelCache, threads int, logger *slog.Logger) *LocalBackend {
	if binaryPath == "" {
		binaryPath = "whisper-cli"
	}
	if threads <= 0 {
		threads = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBackend{
		runner:     runner,
		binaryPath: binaryPath,
		cache:      cache,
		threads:    threads,
		logger:     logger,
	}
}

// Transcribe runs whisper-cli, which writes an SRT next to the audio file.
// Detected language and progress are scraped from the tool's log lines.
func (b *LocalBackend) Transcribe(ctx context.Context, req Request, onProgress func(percent float64)) (*Result, error) {
	used, modelPath, err := b.cache.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	outBase := strings.TrimSuffix(req.AudioPath, filepath.Ext(req.AudioPath))
	lang := req.SourceLang
	if lang == "" {
		lang = "auto"
	}

	args := []string{
		"-m", modelPath,
		"-f", req.AudioPath,
		"-l", lang,
		"-t", strconv.Itoa(b.threads),
		"--output-srt",
		"--output-file", outBase,
		"--print-progress",
	}

	detected := ""
	err = b.runner.Run(ctx, media.Command{
		Path: b.binaryPath,
		Args: args,
		OnLine: func(line string) {
			if l, ok := parseDetectedLanguage(line); ok {
				detected = l
			}
			if pct, ok := parseWhisperProgress(line); ok && onProgress != nil {
				onProgress(pct)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription: %w", err)
	}

	srtPath := outBase + ".srt"
	f, err := os.Open(srtPath)
	if err != nil {
		return nil, fmt.Errorf("opening whisper output: %w", err)
	}
	defer f.Close()
	defer os.Remove(srtPath)

	segments, err := subtitle.ParseSRT(f)
	if err != nil {
		return nil, fmt.Errorf("parsing whisper output: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("transcription produced no segments")
	}

	if detected == "" {
		detected = req.SourceLang
	}
	return &Result{Segments: segments, DetectedLang: detected, ModelUsed: used}, nil
}

// parseDetectedLanguage scrapes whisper's language-detection log line,
// e.g. "whisper_full_with_state: auto-detected language: en (p = 0.97)".
func parseDetectedLanguage(line string) (string, bool) {
	const marker = "auto-detected language:"
	i := strings.Index(line, marker)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSpace(line[i+len(marker):])
	code, _, _ := strings.Cut(rest, " ")
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	return code, true
}

// parseWhisperProgress scrapes "--print-progress" lines,
// e.g. "whisper_print_progress_callback: progress =  35%".
func parseWhisperProgress(line string) (float64, bool) {
	const marker = "progress ="
	i := strings.Index(line, marker)
	if i < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[i+len(marker):])
	rest = strings.TrimSuffix(rest, "%")
	pct, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}
