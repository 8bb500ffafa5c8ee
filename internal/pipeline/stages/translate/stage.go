// Package translate implements the subtitle translation pipeline stage.
package translate

import (
	"context"
	"fmt"
	"os"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/shared"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/subtitle"
	"github.com/voxsub/voxsub/internal/taskerr"
	"github.com/voxsub/voxsub/internal/translate"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = progress.StepTranslate
	// StageName is the human-readable name for this stage.
	StageName = "Translate"
)

// Stage streams the transcribed cues through the translation engine into the
// target-language SRT file. Finished batches hit the file while later ones
// are still in flight; a fallback replay rewinds the file through the sink.
type Stage struct {
	shared.BaseStage
	engine *translate.Engine
	// paid is the paid-first engine variant, used when the task chose the
	// paid service. Nil when no paid backend is configured; the default
	// engine then serves every task.
	paid *translate.Engine
}

// New creates a new translate stage.
func New(engine *translate.Engine) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		engine:    engine,
	}
}

// WithPaidEngine sets the engine used for tasks that chose the paid service.
func (s *Stage) WithPaidEngine(engine *translate.Engine) *Stage {
	s.paid = engine
	return s
}

// NewConstructor returns a stage constructor for use with the pipeline builder.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps.Translator).WithPaidEngine(deps.PaidTranslator)
	}
}

// Execute translates all cues and writes the translated subtitle artifact.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	// Now that the real source language is known the request may have
	// degraded to transcription-only: translating into the detected language
	// would be a no-op.
	if skipped(state) {
		state.TranslationSkipped = true
		if state.Choices.TranslationRequested() {
			state.Reporter.Log(ctx, fmt.Sprintf("target language %s matches detected source, skipping translation", state.Choices.TargetLang))
		}
		result.Message = "translation not applicable"
		return result, nil
	}
	if len(state.Cues) == 0 {
		return result, core.ErrNoSegments
	}

	target := state.Choices.TargetLang
	filename := fmt.Sprintf("%s.%s.srt", state.OutputBase(), target)
	path := state.Workspace.Path(filename)

	sink, err := subtitle.NewStreamWriter(path, subtitle.WriteOptions{RTL: state.TargetRTL()})
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeTranslationError, "creating translated subtitle file", err)
	}

	engine := s.engine
	if state.Choices.TranslationService == models.ServicePaid && s.paid != nil {
		engine = s.paid
	}

	used, err := engine.TranslateStream(ctx, state.Cues, state.DetectedLang, target, sink,
		func(percent float64) {
			state.Reporter.UpdateStep(ctx, StageID, percent)
		},
	)
	if closeErr := sink.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return result, taskerr.Wrap(taskerr.CodeTranslationError, "translating subtitles", err)
	}
	state.ServiceUsed = used

	info, err := os.Stat(path)
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeTranslationError, "inspecting translated subtitle file", err)
	}
	result.Artifacts = append(result.Artifacts, core.Artifact{
		Kind:      core.ArtifactTranslatedSubs,
		Path:      path,
		Filename:  filename,
		CreatedBy: StageID,
		SizeBytes: info.Size(),
	})

	result.Message = fmt.Sprintf("%s via %s service", filename, used)
	return result, nil
}

func skipped(state *core.State) bool {
	if !state.Choices.TranslationRequested() {
		return true
	}
	target, ok := models.NormalizeLanguage(state.Choices.TargetLang)
	if !ok {
		return false
	}
	detected, ok := models.NormalizeLanguage(state.DetectedLang)
	if !ok {
		return false
	}
	return target == detected
}
