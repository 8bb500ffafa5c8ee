// Package transcribe implements the speech-to-text pipeline stage.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/shared"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/taskerr"
	"github.com/voxsub/voxsub/internal/transcribe"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = progress.StepTranscribe
	// StageName is the human-readable name for this stage.
	StageName = "Transcribe"
)

// Stage runs the transcription engine over the extracted audio and records
// the timed segments, the detected language and the model that actually ran.
type Stage struct {
	shared.BaseStage
	engine *transcribe.Engine
}

// New creates a new transcribe stage.
func New(engine *transcribe.Engine) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		engine:    engine,
	}
}

// NewConstructor returns a stage constructor for use with the pipeline builder.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps.Transcriber)
	}
}

// Execute transcribes the audio and stores the segments in the state.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if state.AudioPath == "" {
		return result, core.ErrNoSource
	}

	sourceLang := state.Choices.SourceLang
	if sourceLang == "" {
		sourceLang = "auto"
	}

	req := transcribe.Request{
		AudioPath:  state.AudioPath,
		SourceLang: sourceLang,
		Model:      state.Choices.TranscribeModel,
	}
	res, err := s.engine.Transcribe(ctx, req, func(percent float64) {
		state.Reporter.UpdateStep(ctx, StageID, percent)
	})
	if err != nil {
		if errors.Is(err, transcribe.ErrModelUnavailable) {
			return result, taskerr.Wrap(taskerr.CodeTranscriptionError, "no usable transcription model", err)
		}
		return result, taskerr.Wrap(taskerr.CodeTranscriptionError, "transcribing audio", err)
	}
	if len(res.Segments) == 0 {
		return result, taskerr.Wrap(taskerr.CodeTranscriptionError, "no speech detected", core.ErrNoSegments)
	}

	state.Cues = res.Segments
	state.DetectedLang = res.DetectedLang
	state.ModelUsed = res.ModelUsed

	if res.ModelUsed != state.Choices.TranscribeModel {
		state.Reporter.Log(ctx, fmt.Sprintf("transcription model downgraded to %s", res.ModelUsed))
	}

	result.Message = fmt.Sprintf("%d segments, language %s, model %s",
		len(res.Segments), res.DetectedLang, res.ModelUsed)
	return result, nil
}
