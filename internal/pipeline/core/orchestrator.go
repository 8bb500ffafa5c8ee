package core

import (
	"context"
	"log/slog"
	"time"
)

// Orchestrator executes a sequence of pipeline stages against one task.
// Stage IDs double as progress step names: the orchestrator starts,
// completes and fails the reporter step around each stage so stages only
// report intra-step percentages themselves.
type Orchestrator struct {
	stages []Stage
	state  *State
	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator over an initialized state.
func NewOrchestrator(state *State, stages []Stage, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		stages: stages,
		state:  state,
		logger: logger,
	}
}

// State returns the shared pipeline state.
func (o *Orchestrator) State() *State {
	return o.state
}

// Execute runs all stages in sequence. The first stage error aborts the run;
// the caller decides what already-finished artifacts are still publishable.
func (o *Orchestrator) Execute(ctx context.Context) (*Result, error) {
	result := &Result{
		StageResults: make(map[string]*StageResult),
	}

	o.logger.InfoContext(ctx, "starting pipeline execution",
		slog.String("task_id", o.state.TaskID()),
		slog.Int("stage_count", len(o.stages)),
	)

	startTime := time.Now()

	for i, stage := range o.stages {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			o.state.Reporter.FailStep(ctx, stage.ID(), "canceled")
			o.cleanupStages(o.stages[:i])
			return result, ctx.Err()
		default:
		}

		stageResult, err := o.executeStage(ctx, i, stage)
		result.StageResults[stage.ID()] = stageResult

		if err != nil {
			result.Duration = time.Since(startTime)
			o.cleanupStages(o.stages[:i+1])
			return result, NewStageError(stage.ID(), stage.Name(), err)
		}
	}

	result.Success = true
	result.Duration = time.Since(startTime)

	o.logger.InfoContext(ctx, "pipeline execution completed",
		slog.String("task_id", o.state.TaskID()),
		slog.Duration("duration", result.Duration),
		slog.Int("artifact_count", len(o.state.Artifacts)),
	)

	o.cleanupStages(o.stages)

	return result, nil
}

// executeStage runs a single stage and handles logging and step reporting.
func (o *Orchestrator) executeStage(ctx context.Context, index int, stage Stage) (*StageResult, error) {
	stageStart := time.Now()

	o.logger.InfoContext(ctx, "executing stage",
		slog.Int("stage_num", index+1),
		slog.Int("total_stages", len(o.stages)),
		slog.String("stage_id", stage.ID()),
		slog.String("task_id", o.state.TaskID()),
	)

	// Stages that cannot estimate progress re-start their step as
	// indeterminate.
	o.state.Reporter.StartStep(ctx, stage.ID(), false)

	stageResult, err := stage.Execute(ctx, o.state)
	if stageResult == nil {
		stageResult = &StageResult{}
	}
	stageResult.Duration = time.Since(stageStart)

	if err != nil {
		o.state.Reporter.FailStep(ctx, stage.ID(), err.Error())
		o.logger.ErrorContext(ctx, "stage failed",
			slog.String("stage_id", stage.ID()),
			slog.String("task_id", o.state.TaskID()),
			slog.String("error", err.Error()),
			slog.Duration("duration", stageResult.Duration),
		)
		return stageResult, err
	}

	for _, artifact := range stageResult.Artifacts {
		o.state.AddArtifact(artifact)
	}
	o.state.Reporter.CompleteStep(ctx, stage.ID())

	o.logger.InfoContext(ctx, "stage completed",
		slog.String("stage_id", stage.ID()),
		slog.String("task_id", o.state.TaskID()),
		slog.Duration("duration", stageResult.Duration),
		slog.Int("artifacts_produced", len(stageResult.Artifacts)),
	)

	return stageResult, nil
}

// cleanupStages calls Cleanup on the given stages. Cleanup runs with a
// background context so it still happens when the task context is dead.
func (o *Orchestrator) cleanupStages(stages []Stage) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stage := range stages {
		if err := stage.Cleanup(ctx); err != nil {
			o.logger.Warn("stage cleanup failed",
				slog.String("stage_id", stage.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
}
