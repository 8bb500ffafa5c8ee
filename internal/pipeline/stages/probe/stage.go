// Package probe implements the media inspection pipeline stage.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/shared"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/taskerr"
	"github.com/voxsub/voxsub/internal/util"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = progress.StepProbe
	// StageName is the human-readable name for this stage.
	StageName = "Probe"
)

// Stage inspects the acquired media, persists its metadata on the task
// record and validates the optional processing time range against the real
// duration.
type Stage struct {
	shared.BaseStage
	prober *media.Prober
	tasks  repository.TaskRepository
}

// New creates a new probe stage.
func New(prober *media.Prober, tasks repository.TaskRepository) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		prober:    prober,
		tasks:     tasks,
	}
}

// NewConstructor returns a stage constructor for use with the pipeline builder.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps.Prober, deps.Tasks)
	}
}

// Execute probes the source and fills in state.Metadata and state.Range.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if state.SourcePath == "" {
		return result, core.ErrNoSource
	}

	meta, err := s.prober.Probe(ctx, state.SourcePath)
	if err != nil {
		if errors.Is(err, media.ErrNoAudio) || errors.Is(err, media.ErrZeroDuration) {
			return result, taskerr.Wrap(taskerr.CodeUnsupportedMedia, "media not processable", err)
		}
		return result, taskerr.Wrap(taskerr.CodeProbeFailed, "probing media", err)
	}
	state.Metadata = meta

	if state.Request.StartTime != "" || state.Request.EndTime != "" {
		rng, err := util.ParseTimeRange(state.Request.StartTime, state.Request.EndTime)
		if err != nil {
			return result, taskerr.Wrap(taskerr.CodeBadRequest, "invalid time range", err)
		}
		duration := time.Duration(meta.DurationS * float64(time.Second))
		if err := rng.ValidateWithin(duration); err != nil {
			return result, taskerr.Wrap(taskerr.CodeBadRequest, "time range outside media", err)
		}
		state.Range = rng
	}

	if err := s.tasks.SetSourceMetadata(ctx, state.Task.ID, meta); err != nil {
		return result, fmt.Errorf("recording source metadata: %w", err)
	}

	result.Message = fmt.Sprintf("%.1fs %dx%d %s/%s",
		meta.DurationS, meta.Width, meta.Height, meta.CodecVideo, meta.CodecAudio)
	return result, nil
}
