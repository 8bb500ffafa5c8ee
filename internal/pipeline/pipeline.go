// Package pipeline assembles and runs the staged media-processing pipeline.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/stages/acquire"
	"github.com/voxsub/voxsub/internal/pipeline/stages/burnin"
	"github.com/voxsub/voxsub/internal/pipeline/stages/emitsubs"
	"github.com/voxsub/voxsub/internal/pipeline/stages/extractaudio"
	"github.com/voxsub/voxsub/internal/pipeline/stages/probe"
	"github.com/voxsub/voxsub/internal/pipeline/stages/publish"
	"github.com/voxsub/voxsub/internal/pipeline/stages/transcribe"
	"github.com/voxsub/voxsub/internal/pipeline/stages/translate"
	"github.com/voxsub/voxsub/internal/pipeline/stages/verify"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/taskerr"
)

// defaultWeights indexes the canonical step weights by step name.
var defaultWeights = func() map[string]float64 {
	m := make(map[string]float64, len(progress.DefaultSteps))
	for _, d := range progress.DefaultSteps {
		m[d.Name] = d.Weight
	}
	return m
}()

// Processor runs one task through its pipeline and settles the task record.
type Processor struct {
	deps       *core.Dependencies
	workspaces *storage.Workspaces
	events     *storage.EventLog
	softLimit  time.Duration
	logger     *slog.Logger
}

// NewProcessor creates a Processor. softLimit bounds one pipeline run; zero
// disables the limit.
func NewProcessor(deps *core.Dependencies, workspaces *storage.Workspaces, events *storage.EventLog, softLimit time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		deps:       deps,
		workspaces: workspaces,
		events:     events,
		softLimit:  softLimit,
		logger:     logger,
	}
}

// Process runs the task's pipeline to a terminal state. The returned error
// reports why the task failed; the task record is already settled either way.
func (p *Processor) Process(ctx context.Context, task *models.Task) error {
	constructors := p.plan(task)
	defs := make([]progress.StepDef, len(constructors))
	stages := make([]core.Stage, len(constructors))
	for i, construct := range constructors {
		stages[i] = construct(p.deps)
		defs[i] = progress.StepDef{Name: stages[i].ID(), Weight: defaultWeights[stages[i].ID()]}
	}

	reporter := progress.NewReporter(task.ID, p.deps.Tasks, defs, p.logger)

	workspace, err := p.workspaces.Acquire(task.ID.String())
	if err != nil {
		return p.settleFailure(ctx, task, nil,
			taskerr.Wrap(taskerr.CodeInfrastructure, "acquiring workspace", err))
	}
	defer func() {
		if err := workspace.Release(); err != nil {
			p.logger.Warn("releasing workspace failed",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}()

	state := core.NewState(task, workspace, reporter)

	runCtx := ctx
	if p.softLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.softLimit)
		defer cancel()
	}

	p.appendEvent(storage.Event{Type: storage.EventTaskStarted, TaskID: task.ID.String()})

	orch := core.NewOrchestrator(state, stages, p.logger)
	if _, err := orch.Execute(runCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.Canceled) {
			err = taskerr.Wrap(taskerr.CodeTimeoutExceeded, "processing time limit exceeded", err)
		}
		return p.settleFailure(ctx, task, state, err)
	}

	result := &models.TaskResult{
		Files:         state.Published,
		TimingSummary: reporter.Timings(),
		ModelUsed:     string(state.ModelUsed),
		ServiceUsed:   string(state.ServiceUsed),
		DetectedLang:  state.DetectedLang,
	}
	if err := p.deps.Tasks.MarkSuccess(context.WithoutCancel(ctx), task.ID, result); err != nil {
		p.logger.Error("marking task success failed",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	p.appendEvent(storage.Event{
		Type:   storage.EventTaskSucceeded,
		TaskID: task.ID.String(),
		Fields: map[string]any{
			"duration_s":    state.Duration().Seconds(),
			"model_used":    result.ModelUsed,
			"detected_lang": result.DetectedLang,
		},
	})
	return nil
}

// plan selects the stage sequence for a task. Stages that can never apply
// (no translation target, no burn-in) are left out so their progress weight
// renormalizes away.
func (p *Processor) plan(task *models.Task) []core.StageConstructor {
	if task.InitialRequest.Kind == models.RequestKindDownloadOnly {
		return []core.StageConstructor{
			acquire.NewConstructor(),
			probe.NewConstructor(),
			publish.NewConstructor(),
		}
	}

	constructors := []core.StageConstructor{
		acquire.NewConstructor(),
		probe.NewConstructor(),
		extractaudio.NewConstructor(),
		transcribe.NewConstructor(),
	}
	if task.UserChoices.TranslationRequested() {
		constructors = append(constructors, translate.NewConstructor())
	}
	constructors = append(constructors, emitsubs.NewConstructor())
	if task.UserChoices.BurnIn {
		constructors = append(constructors,
			burnin.NewConstructor(),
			verify.NewConstructor(),
		)
	}
	return append(constructors, publish.NewConstructor())
}

// settleFailure publishes whatever subtitle files already exist, records the
// failure on the task and emits the failure event.
func (p *Processor) settleFailure(ctx context.Context, task *models.Task, state *core.State, cause error) error {
	settleCtx := context.WithoutCancel(ctx)

	var partial *models.TaskResult
	if state != nil {
		if files := p.publishPartial(state); files != (models.ResultFiles{}) {
			partial = &models.TaskResult{Files: files, DetectedLang: state.DetectedLang}
		}
	}

	te := taskerr.From(cause)
	taskError := &models.TaskError{
		Code:        string(te.Code),
		Message:     te.Message,
		UserMessage: taskerr.UserMessage(te.Code, taskerr.DefaultLocale),
		Recoverable: te.Recoverable,
	}
	if err := p.deps.Tasks.MarkFailure(settleCtx, task.ID, taskError, partial); err != nil {
		p.logger.Error("marking task failure failed",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	p.appendEvent(storage.Event{
		Type:   storage.EventTaskFailed,
		TaskID: task.ID.String(),
		Fields: map[string]any{"code": taskError.Code},
	})
	return cause
}

// publishPartial moves finished subtitle artifacts to the store when a later
// stage failed. A broken render still leaves the user their subtitle files.
func (p *Processor) publishPartial(state *core.State) models.ResultFiles {
	files := state.Published
	for _, kind := range []core.ArtifactKind{core.ArtifactOriginalSubs, core.ArtifactTranslatedSubs} {
		artifact, ok := state.Artifacts[kind]
		if !ok {
			continue
		}
		if kind == core.ArtifactOriginalSubs && files.OriginalSubs != "" {
			continue
		}
		if kind == core.ArtifactTranslatedSubs && files.TranslatedSubs != "" {
			continue
		}
		key, err := p.deps.Artifacts.Publish(state.TaskID(), artifact.Filename, artifact.Path)
		if err != nil {
			p.logger.Warn("publishing partial artifact failed",
				slog.String("task_id", state.TaskID()),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if kind == core.ArtifactOriginalSubs {
			files.OriginalSubs = key
		} else {
			files.TranslatedSubs = key
		}
	}
	return files
}

func (p *Processor) appendEvent(event storage.Event) {
	if p.events == nil {
		return
	}
	if err := p.events.Append(event); err != nil {
		p.logger.Warn("appending usage event failed",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
	}
}
