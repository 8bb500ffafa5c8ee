// Package emitsubs implements the source-language subtitle emission stage.
package emitsubs

import (
	"context"
	"fmt"
	"os"

	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/shared"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/subtitle"
	"github.com/voxsub/voxsub/internal/taskerr"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = progress.StepEmit
	// StageName is the human-readable name for this stage.
	StageName = "Emit Subtitles"
)

// Stage writes the source-language SRT file and decides whether translation
// still applies now that the real source language is known.
type Stage struct {
	shared.BaseStage
}

// New creates a new emit-subtitles stage.
func New() *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(StageID, StageName)}
}

// NewConstructor returns a stage constructor for use with the pipeline builder.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New()
	}
}

// Execute writes the original subtitle artifact.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if len(state.Cues) == 0 {
		return result, core.ErrNoSegments
	}

	lang := state.DetectedLang
	filename := fmt.Sprintf("%s.%s.srt", state.OutputBase(), lang)
	path := state.Workspace.Path(filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeSubtitleEmitError, "creating subtitle file", err)
	}
	writeErr := subtitle.WriteSRT(f, state.Cues, subtitle.WriteOptions{RTL: state.SourceRTL()})
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return result, taskerr.Wrap(taskerr.CodeSubtitleEmitError, "writing subtitle file", writeErr)
	}

	info, err := os.Stat(path)
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeSubtitleEmitError, "inspecting subtitle file", err)
	}
	result.Artifacts = append(result.Artifacts, core.Artifact{
		Kind:      core.ArtifactOriginalSubs,
		Path:      path,
		Filename:  filename,
		CreatedBy: StageID,
		SizeBytes: info.Size(),
	})

	result.Message = filename
	return result, nil
}
