package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/taskerr"
	"github.com/voxsub/voxsub/internal/util"
)

// EditService runs the synchronous one-shot editing operations: cut, merge,
// subtitle embedding and logo overlay. Unlike pipeline tasks these hold the
// HTTP request open and stream the result straight back, so nothing here
// touches the task registry.
type EditService struct {
	ffmpeg     *media.FFmpeg
	prober     *media.Prober
	workspaces *storage.Workspaces
	logger     *slog.Logger
}

// NewEditService creates an EditService.
func NewEditService(ffmpeg *media.FFmpeg, prober *media.Prober, workspaces *storage.Workspaces, logger *slog.Logger) *EditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditService{
		ffmpeg:     ffmpeg,
		prober:     prober,
		workspaces: workspaces,
		logger:     logger,
	}
}

// AcquireWorkspace hands out a scratch directory for one edit request. The
// caller stages its uploads there and releases it when the response is sent.
func (s *EditService) AcquireWorkspace() (*storage.Workspace, error) {
	return s.workspaces.Acquire("edit-" + models.NewULID().String())
}

// Cut extracts the [start, end) range of the input into a new MP4.
func (s *EditService) Cut(ctx context.Context, ws *storage.Workspace, input, start, end string) (string, error) {
	rng, err := util.ParseTimeRange(start, end)
	if err != nil || rng == nil {
		return "", taskerr.Wrap(taskerr.CodeBadRequest, "invalid time range", err)
	}

	meta, err := s.probe(ctx, input)
	if err != nil {
		return "", err
	}
	mediaDuration := time.Duration(meta.DurationS * float64(time.Second))
	if err := rng.ValidateWithin(mediaDuration); err != nil {
		return "", taskerr.Wrap(taskerr.CodeBadRequest, "time range outside media", err)
	}

	output := ws.Path("cut.mp4")
	if err := s.ffmpeg.Cut(ctx, input, output, rng.Start.Seconds(), rng.End.Seconds(), nil); err != nil {
		return "", taskerr.Wrap(taskerr.CodeFormatError, "cutting media", err)
	}
	return output, nil
}

// Merge concatenates the inputs in order into a single MP4.
func (s *EditService) Merge(ctx context.Context, ws *storage.Workspace, inputs []string) (string, error) {
	if len(inputs) < 2 {
		return "", taskerr.New(taskerr.CodeBadRequest, "merge requires at least two files")
	}

	total := 0.0
	for _, input := range inputs {
		meta, err := s.probe(ctx, input)
		if err != nil {
			return "", err
		}
		total += meta.DurationS
	}

	output := ws.Path("merged.mp4")
	if err := s.ffmpeg.Merge(ctx, inputs, output, total, nil); err != nil {
		return "", taskerr.Wrap(taskerr.CodeFormatError, "merging media", err)
	}
	return output, nil
}

// EmbedSubs muxes a subtitle track into the container without re-encoding.
func (s *EditService) EmbedSubs(ctx context.Context, ws *storage.Workspace, input, subtitlePath string) (string, error) {
	meta, err := s.probe(ctx, input)
	if err != nil {
		return "", err
	}

	output := ws.Path("subtitled.mp4")
	if err := s.ffmpeg.EmbedSubs(ctx, input, subtitlePath, output, meta.DurationS, nil); err != nil {
		return "", taskerr.Wrap(taskerr.CodeFormatError, "embedding subtitles", err)
	}
	return output, nil
}

// AddLogo overlays a logo on the video.
func (s *EditService) AddLogo(ctx context.Context, ws *storage.Workspace, input, logoPath string, wm models.WatermarkChoices) (string, error) {
	if err := wm.Validate(); err != nil {
		return "", taskerr.Wrap(taskerr.CodeBadRequest, "invalid watermark options", err)
	}

	meta, err := s.probe(ctx, input)
	if err != nil {
		return "", err
	}

	output := ws.Path("watermarked.mp4")
	if err := s.ffmpeg.AddLogo(ctx, input, logoPath, output, meta.DurationS, wm, nil); err != nil {
		return "", taskerr.Wrap(taskerr.CodeRenderError, "overlaying logo", err)
	}
	return output, nil
}

func (s *EditService) probe(ctx context.Context, path string) (*models.SourceMetadata, error) {
	meta, err := s.prober.Probe(ctx, path)
	if err != nil {
		if errors.Is(err, media.ErrNoAudio) || errors.Is(err, media.ErrZeroDuration) {
			return nil, taskerr.Wrap(taskerr.CodeUnsupportedMedia, "file is not processable media", err)
		}
		return nil, taskerr.Wrap(taskerr.CodeProbeFailed, "probing file", err)
	}
	return meta, nil
}
