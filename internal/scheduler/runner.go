package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/taskerr"
)

// Runner polls the durable queues and executes claimed jobs with a pool of
// workers. Each worker drains the processing queue first and falls back to
// the cleanup queue, so sweeps never starve media work of a slot.
type Runner struct {
	mu sync.RWMutex

	queue    repository.QueueRepository
	tasks    repository.TaskRepository
	executor *Executor
	logger   *slog.Logger

	workerCount   int
	pollInterval  time.Duration
	lockTimeout   time.Duration
	hardTimeLimit time.Duration
	workerID      string
	cleanupAge    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RunnerConfig holds configuration for the job runner.
type RunnerConfig struct {
	// WorkerCount is the number of concurrent worker slots.
	// Default: 2
	WorkerCount int

	// PollInterval is how long an idle worker waits before polling again.
	// Default: 2 seconds
	PollInterval time.Duration

	// LockTimeout is how long a claimed job may hold its lock before a
	// reclaim returns it to the queue.
	// Default: 40 minutes
	LockTimeout time.Duration

	// HardTimeLimit bounds a single job execution; the job context is
	// cancelled outright when it expires.
	// Default: 35 minutes
	HardTimeLimit time.Duration

	// WorkerID identifies this runner instance in job locks.
	// Default: worker-<unix-nano>
	WorkerID string

	// CleanupAge is how long finished job rows are kept for inspection.
	// Default: 24 hours
	CleanupAge time.Duration
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:   2,
		PollInterval:  2 * time.Second,
		LockTimeout:   40 * time.Minute,
		HardTimeLimit: 35 * time.Minute,
		WorkerID:      fmt.Sprintf("worker-%d", time.Now().UnixNano()),
		CleanupAge:    24 * time.Hour,
	}
}

// NewRunner creates a job runner with default configuration.
func NewRunner(queue repository.QueueRepository, executor *Executor) *Runner {
	config := DefaultRunnerConfig()
	return &Runner{
		queue:         queue,
		executor:      executor,
		logger:        slog.Default(),
		workerCount:   config.WorkerCount,
		pollInterval:  config.PollInterval,
		lockTimeout:   config.LockTimeout,
		hardTimeLimit: config.HardTimeLimit,
		workerID:      config.WorkerID,
		cleanupAge:    config.CleanupAge,
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithTaskRepository enables settling tasks whose job died with its worker.
func (r *Runner) WithTaskRepository(tasks repository.TaskRepository) *Runner {
	r.tasks = tasks
	return r
}

// WithConfig applies configuration to the runner.
func (r *Runner) WithConfig(config RunnerConfig) *Runner {
	if config.WorkerCount > 0 {
		r.workerCount = config.WorkerCount
	}
	if config.PollInterval > 0 {
		r.pollInterval = config.PollInterval
	}
	if config.LockTimeout > 0 {
		r.lockTimeout = config.LockTimeout
	}
	if config.HardTimeLimit > 0 {
		r.hardTimeLimit = config.HardTimeLimit
	}
	if config.WorkerID != "" {
		r.workerID = config.WorkerID
	}
	if config.CleanupAge > 0 {
		r.cleanupAge = config.CleanupAge
	}
	return r
}

// Start begins the runner with the configured number of workers.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return fmt.Errorf("runner already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	for i := 0; i < r.workerCount; i++ {
		workerID := fmt.Sprintf("%s-%d", r.workerID, i)
		r.wg.Add(1)
		go r.worker(workerID)
	}

	r.wg.Add(1)
	go r.housekeeping()

	r.logger.Info("runner started",
		slog.Int("workers", r.workerCount),
		slog.Duration("poll_interval", r.pollInterval),
		slog.String("worker_id", r.workerID))

	return nil
}

// Stop stops the runner and waits for workers to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	r.ctx = nil
	r.cancel = nil
	r.mu.Unlock()

	r.logger.Info("runner stopped")
}

// worker is the main worker loop.
func (r *Runner) worker(workerID string) {
	defer r.wg.Done()

	r.logger.Debug("worker started", slog.String("worker_id", workerID))

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("worker stopping", slog.String("worker_id", workerID))
			return
		default:
			if err := r.processJob(workerID); err != nil {
				if err != errNoJobs {
					r.logger.Error("error processing job",
						slog.String("worker_id", workerID),
						slog.Any("error", err))
				}

				// Wait before polling again
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(r.pollInterval):
				}
			}
		}
	}
}

var errNoJobs = fmt.Errorf("no jobs available")

// processJob claims and executes a single job. The processing queue is
// checked before the cleanup queue.
func (r *Runner) processJob(workerID string) error {
	var job *models.QueueJob
	for _, queue := range []models.QueueName{models.QueueProcessing, models.QueueCleanup} {
		claimed, err := r.queue.Acquire(r.ctx, queue, workerID)
		if err != nil {
			return fmt.Errorf("acquiring job from %s: %w", queue, err)
		}
		if claimed != nil {
			job = claimed
			break
		}
	}

	if job == nil {
		return errNoJobs
	}

	r.logger.Debug("acquired job",
		slog.String("worker_id", workerID),
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)))

	jobCtx, cancel := context.WithTimeout(r.ctx, r.hardTimeLimit)
	defer cancel()

	if err := r.executor.Execute(jobCtx, job); err != nil {
		return fmt.Errorf("executing job: %w", err)
	}

	return nil
}

// housekeeping periodically reclaims stale locks and prunes finished jobs.
func (r *Runner) housekeeping() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	pruneEvery := 60
	tick := 0

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.reclaimStale()
			tick++
			if tick%pruneEvery == 0 {
				r.pruneFinished()
			}
		}
	}
}

// reclaimStale returns jobs locked past the lock timeout to the queue.
// This happens when a worker crashes or is killed mid-job.
func (r *Runner) reclaimStale() {
	reclaimed, err := r.queue.ReclaimStale(r.ctx, r.lockTimeout)
	if err != nil {
		r.logger.Error("failed to reclaim stale jobs", slog.Any("error", err))
		return
	}
	for _, job := range reclaimed {
		r.logger.Warn("reclaimed stale job",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.String("status", string(job.Status)))

		// A job that exhausted its attempts through reclaims never got the
		// chance to settle its task, so settle it here.
		if job.Status == models.JobStatusFailed && !job.TaskID.IsZero() && r.tasks != nil {
			taskErr := &models.TaskError{
				Code:        string(taskerr.CodeInfrastructure),
				Message:     "worker lost while processing",
				UserMessage: taskerr.UserMessage(taskerr.CodeInfrastructure, taskerr.DefaultLocale),
			}
			if err := r.tasks.MarkFailure(r.ctx, job.TaskID, taskErr, nil); err != nil {
				r.logger.Error("failed to settle abandoned task",
					slog.String("task_id", job.TaskID.String()),
					slog.Any("error", err))
			}
		}
	}
}

// pruneFinished deletes old completed and failed job rows.
func (r *Runner) pruneFinished() {
	deleted, err := r.queue.DeleteFinished(r.ctx, time.Now().Add(-r.cleanupAge))
	if err != nil {
		r.logger.Error("failed to prune finished jobs", slog.Any("error", err))
	} else if deleted > 0 {
		r.logger.Info("pruned finished jobs", slog.Int64("deleted", deleted))
	}
}

// GetStatus returns the current runner status.
func (r *Runner) GetStatus() RunnerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	running := r.ctx != nil && r.ctx.Err() == nil

	var pending int64
	if running {
		processing, _ := r.queue.Depth(r.ctx, models.QueueProcessing)
		cleanup, _ := r.queue.Depth(r.ctx, models.QueueCleanup)
		pending = processing + cleanup
	}

	return RunnerStatus{
		Running:      running,
		WorkerCount:  r.workerCount,
		WorkerID:     r.workerID,
		PendingJobs:  pending,
		PollInterval: r.pollInterval,
	}
}

// RunnerStatus represents the current state of the runner.
type RunnerStatus struct {
	Running      bool          `json:"running"`
	WorkerCount  int           `json:"worker_count"`
	WorkerID     string        `json:"worker_id"`
	PendingJobs  int64         `json:"pending_jobs"`
	PollInterval time.Duration `json:"poll_interval"`
}
