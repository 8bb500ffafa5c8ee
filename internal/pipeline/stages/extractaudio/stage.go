// Package extractaudio implements the audio extraction pipeline stage.
package extractaudio

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/shared"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/taskerr"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = progress.StepExtract
	// StageName is the human-readable name for this stage.
	StageName = "Extract Audio"
)

// Stage applies the optional time-range cut and demuxes the audio track to
// the mono 16 kHz WAV the transcriber expects. When a cut happens the state's
// source path is replaced so every later stage works on the bounded video.
type Stage struct {
	shared.BaseStage
	ffmpeg *media.FFmpeg
}

// New creates a new extract-audio stage.
func New(ffmpeg *media.FFmpeg) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		ffmpeg:    ffmpeg,
	}
}

// NewConstructor returns a stage constructor for use with the pipeline builder.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps.FFmpeg)
	}
}

// Execute cuts (when a range is set) and extracts the audio track.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if state.SourcePath == "" {
		return result, core.ErrNoSource
	}

	// With a cut the step is split: the first half is the cut, the second
	// the extraction.
	scale, offset := 100.0, 0.0
	if state.Range != nil {
		scale = 50.0
		cutPath := state.Workspace.Path("cut" + filepath.Ext(state.SourcePath))
		err := s.ffmpeg.Cut(ctx,
			state.SourcePath, cutPath,
			state.Range.Start.Seconds(), state.Range.End.Seconds(),
			func(percent float64) {
				state.Reporter.UpdateStep(ctx, StageID, percent*0.5)
			},
		)
		if err != nil {
			return result, taskerr.Wrap(taskerr.CodeAudioExtractionError, "cutting time range", err)
		}
		state.SourcePath = cutPath
		offset = 50.0
	}

	audioPath := state.Workspace.AudioPath()
	err := s.ffmpeg.ExtractAudio(ctx,
		state.SourcePath, audioPath,
		state.EffectiveDurationS(),
		func(percent float64) {
			state.Reporter.UpdateStep(ctx, StageID, offset+percent*scale/100)
		},
	)
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeAudioExtractionError, "extracting audio track", err)
	}

	state.AudioPath = audioPath
	result.Message = fmt.Sprintf("%.1fs of audio", state.EffectiveDurationS())
	return result, nil
}
