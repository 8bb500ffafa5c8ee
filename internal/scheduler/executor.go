package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
)

// JobHandler defines the interface for handling specific job types.
type JobHandler interface {
	// Execute runs the job and returns a result string or error.
	Execute(ctx context.Context, job *models.QueueJob) (string, error)
}

// TaskPipeline runs a task's processing pipeline to a terminal state.
type TaskPipeline interface {
	Process(ctx context.Context, task *models.Task) error
}

// TaskChainer enqueues the follow-up processing task after a successful
// download-only task that asked for one.
type TaskChainer interface {
	EnqueueChained(ctx context.Context, parent *models.Task) (*models.Task, error)
}

// ProcessTaskHandler handles process_task and download_only jobs by running
// the pipeline for the job's task.
type ProcessTaskHandler struct {
	tasks    repository.TaskRepository
	pipeline TaskPipeline
	chainer  TaskChainer
	logger   *slog.Logger
}

// NewProcessTaskHandler creates a handler that drives the pipeline.
func NewProcessTaskHandler(tasks repository.TaskRepository, pipeline TaskPipeline) *ProcessTaskHandler {
	return &ProcessTaskHandler{
		tasks:    tasks,
		pipeline: pipeline,
		logger:   slog.Default(),
	}
}

// WithChainer sets the service used to chain download-then-process tasks.
func (h *ProcessTaskHandler) WithChainer(chainer TaskChainer) *ProcessTaskHandler {
	h.chainer = chainer
	return h
}

// WithLogger sets the logger.
func (h *ProcessTaskHandler) WithLogger(logger *slog.Logger) *ProcessTaskHandler {
	h.logger = logger
	return h
}

// Execute runs the pipeline for the job's task. Jobs are delivered
// at-least-once, so a redelivered job for an already-settled task is a no-op.
func (h *ProcessTaskHandler) Execute(ctx context.Context, job *models.QueueJob) (string, error) {
	task, err := h.tasks.GetByID(ctx, job.TaskID)
	if err != nil {
		return "", fmt.Errorf("loading task: %w", err)
	}
	if task == nil {
		return "", fmt.Errorf("task %s not found", job.TaskID)
	}
	if task.IsTerminal() {
		return "task already settled", nil
	}

	if task.State == models.TaskStatePending {
		if err := h.tasks.MarkRunning(ctx, task.ID); err != nil {
			return "", fmt.Errorf("marking task running: %w", err)
		}
	}

	// Process settles the task record itself; the returned error is the
	// failure cause and becomes the job's last error.
	if err := h.pipeline.Process(ctx, task); err != nil {
		return "", err
	}

	if job.Type == models.JobTypeDownloadOnly && task.InitialRequest.ProcessAfter {
		return h.chain(ctx, task.ID)
	}

	return fmt.Sprintf("processed task %s", task.ID), nil
}

// chain hands the downloaded file back in as a regular upload task.
func (h *ProcessTaskHandler) chain(ctx context.Context, taskID models.ULID) (string, error) {
	if h.chainer == nil {
		return "", fmt.Errorf("task %s requested chaining but no chainer is configured", taskID)
	}

	// Reload to pick up the result recorded by the pipeline.
	settled, err := h.tasks.GetByID(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("reloading task for chaining: %w", err)
	}
	if settled == nil || settled.State != models.TaskStateSuccess {
		return "", fmt.Errorf("task %s not in a chainable state", taskID)
	}

	chained, err := h.chainer.EnqueueChained(ctx, settled)
	if err != nil {
		return "", fmt.Errorf("chaining processing task: %w", err)
	}

	h.logger.Info("chained processing task",
		slog.String("parent_task_id", taskID.String()),
		slog.String("task_id", chained.ID.String()))

	return fmt.Sprintf("downloaded task %s, chained %s", taskID, chained.ID), nil
}

// Executor dispatches jobs to the appropriate handlers.
type Executor struct {
	handlers map[models.JobType]JobHandler
	queue    repository.QueueRepository
	logger   *slog.Logger
}

// NewExecutor creates a new job executor.
func NewExecutor(queue repository.QueueRepository) *Executor {
	return &Executor{
		handlers: make(map[models.JobType]JobHandler),
		queue:    queue,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// RegisterHandler registers a handler for a job type.
func (e *Executor) RegisterHandler(jobType models.JobType, handler JobHandler) {
	e.handlers[jobType] = handler
}

// Execute runs a job and updates its status.
func (e *Executor) Execute(ctx context.Context, job *models.QueueJob) error {
	handler, ok := e.handlers[job.Type]
	if !ok {
		job.MarkFailed(fmt.Errorf("no handler registered for job type: %s", job.Type))
		if err := e.queue.Update(ctx, job); err != nil {
			return fmt.Errorf("updating job status: %w", err)
		}
		return fmt.Errorf("no handler registered for job type: %s", job.Type)
	}

	e.logger.Info("executing job",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)),
		slog.String("task_id", job.TaskID.String()))

	result, err := handler.Execute(ctx, job)

	if err != nil {
		e.logger.Error("job failed",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.Any("error", err))

		job.MarkFailed(err)

		if job.CanRetry() {
			job.ScheduleRetry()
			e.logger.Info("job scheduled for retry",
				slog.String("job_id", job.ID.String()),
				slog.Int("attempt", job.AttemptCount),
				slog.Time("next_run", job.NextRunAt.UTC()))
		}
	} else {
		e.logger.Info("job completed",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.String("result", result))

		job.MarkCompleted()
	}

	// The job outlives this worker's context when the hard limit fired.
	if err := e.queue.Update(context.WithoutCancel(ctx), job); err != nil {
		e.logger.Error("failed to update job status",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err))
		return fmt.Errorf("updating job status: %w", err)
	}

	return nil
}
