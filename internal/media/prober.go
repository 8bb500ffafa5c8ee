package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/voxsub/voxsub/internal/models"
)

// Prober inspects media files with ffprobe.
type Prober struct {
	runner      *Runner
	ffprobePath string
	logger      *slog.Logger
}

// NewProber creates a Prober using the given ffprobe binary.
func NewProber(runner *Runner, ffprobePath string, logger *slog.Logger) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{runner: runner, ffprobePath: ffprobePath, logger: logger}
}

// probeResult mirrors the ffprobe JSON output.
type probeResult struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

type probeStream struct {
	Index        int    `json:"index"`
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
	Duration     string `json:"duration"`
}

// ErrNoAudio is returned when the probed media carries no audio stream.
var ErrNoAudio = errors.New("media has no audio stream")

// ErrZeroDuration is returned when the probed media has no measurable
// duration.
var ErrZeroDuration = errors.New("media has zero duration")

// Probe runs ffprobe against path and maps its findings to SourceMetadata.
// Media without an audio stream or with zero duration is rejected: there is
// nothing to transcribe.
func (p *Prober) Probe(ctx context.Context, path string) (*models.SourceMetadata, error) {
	out, err := p.runner.Output(ctx, Command{
		Path: p.ffprobePath,
		Args: []string{
			"-v", "quiet",
			"-print_format", "json",
			"-show_format",
			"-show_streams",
			path,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", filepath.Base(path), err)
	}

	meta, err := parseProbeOutput(out)
	if err != nil {
		return nil, err
	}
	meta.Ext = strings.ToLower(filepath.Ext(path))

	p.logger.Debug("probed media",
		slog.String("file", filepath.Base(path)),
		slog.Float64("duration_s", meta.DurationS),
		slog.String("codec_v", meta.CodecVideo),
		slog.String("codec_a", meta.CodecAudio),
	)
	return meta, nil
}

// parseProbeOutput decodes ffprobe JSON and validates the result.
func parseProbeOutput(data []byte) (*models.SourceMetadata, error) {
	var result probeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	meta := &models.SourceMetadata{}
	meta.DurationS, _ = strconv.ParseFloat(result.Format.Duration, 64)
	meta.SizeBytes, _ = strconv.ParseInt(result.Format.Size, 10, 64)
	meta.BitRate, _ = strconv.ParseInt(result.Format.BitRate, 10, 64)
	if title, ok := result.Format.Tags["title"]; ok {
		meta.Title = title
	}

	hasAudio := false
	for _, s := range result.Streams {
		switch s.CodecType {
		case "video":
			if meta.CodecVideo == "" {
				meta.CodecVideo = s.CodecName
				meta.Width = s.Width
				meta.Height = s.Height
				meta.FPS = parseFramerate(s.AvgFrameRate)
			}
		case "audio":
			if meta.CodecAudio == "" {
				meta.CodecAudio = s.CodecName
			}
			hasAudio = true
			if meta.DurationS == 0 {
				meta.DurationS, _ = strconv.ParseFloat(s.Duration, 64)
			}
		}
	}

	if !hasAudio {
		return nil, ErrNoAudio
	}
	if meta.DurationS <= 0 {
		return nil, ErrZeroDuration
	}
	return meta, nil
}

// parseFramerate converts an ffprobe rational like "30000/1001" to a float.
func parseFramerate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	if !found {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
