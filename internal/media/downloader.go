package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Downloader fetches remote media with yt-dlp.
type Downloader struct {
	runner     *Runner
	binaryPath string
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewDownloader creates a Downloader. Failed downloads are retried twice
// more before giving up.
func NewDownloader(runner *Runner, binaryPath string, logger *slog.Logger) *Downloader {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		runner:     runner,
		binaryPath: binaryPath,
		attempts:   3,
		retryDelay: 5 * time.Second,
		logger:     logger,
	}
}

// RemoteInfo is the metadata yt-dlp reports before downloading.
type RemoteInfo struct {
	Title     string  `json:"title"`
	DurationS float64 `json:"duration"`
	Ext       string  `json:"ext"`
}

// Inspect fetches metadata for a remote URL without downloading the media.
func (d *Downloader) Inspect(ctx context.Context, url string) (*RemoteInfo, error) {
	out, err := d.runner.Output(ctx, Command{
		Path: d.binaryPath,
		Args: []string{"-J", "--no-playlist", url},
	})
	if err != nil {
		return nil, fmt.Errorf("inspecting remote media: %w", err)
	}

	var info RemoteInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parsing yt-dlp metadata: %w", err)
	}
	return &info, nil
}

// Download fetches the remote media into dir and returns the downloaded
// file's path. Transient failures are retried with a fixed delay.
func (d *Downloader) Download(ctx context.Context, url, dir string, onProgress ProgressFunc) (string, error) {
	template := filepath.Join(dir, "source.%(ext)s")

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if attempt > 1 {
			d.logger.Warn("retrying download",
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}

		err := d.runner.Run(ctx, Command{
			Path: d.binaryPath,
			Args: []string{
				"--no-playlist",
				"--newline",
				"-f", "bv*+ba/b",
				"--merge-output-format", "mp4",
				"-o", template,
				url,
			},
			OnLine: func(line string) {
				if pct, ok := parseDownloadProgress(line); ok && onProgress != nil {
					onProgress(pct)
				}
			},
		})
		if err == nil {
			return findDownloadedFile(dir)
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("download failed after %d attempts: %w", d.attempts, lastErr)
}

// parseDownloadProgress extracts the percentage from a yt-dlp progress line
// like "[download]  42.3% of 10.00MiB at 1.00MiB/s ETA 00:05".
func parseDownloadProgress(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[download]") {
		return 0, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "[download]"))
	pctEnd := strings.IndexByte(rest, '%')
	if pctEnd <= 0 {
		return 0, false
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(rest[:pctEnd]), 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

// findDownloadedFile locates the "source.*" file yt-dlp wrote. Partial
// downloads carry a .part suffix and are ignored.
func findDownloadedFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading download dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "source.") {
			continue
		}
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("no downloaded file found in %s", dir)
}
