// Package scheduler provides job scheduling and execution for voxsub.
// The Runner drains the durable queues, the Executor dispatches jobs to
// handlers, and the Scheduler enqueues the recurring retention sweeps.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
)

// sweepJobTypes lists the cleanup jobs enqueued on every sweep tick.
var sweepJobTypes = []models.JobType{
	models.JobTypeArtifactSweep,
	models.JobTypeAssetSweep,
	models.JobTypeRecordSweep,
	models.JobTypeWorkspaceSweep,
}

// Scheduler enqueues the retention sweep jobs at a fixed interval. The jobs
// land on the cleanup queue and run through the same runner as media work.
type Scheduler struct {
	mu sync.Mutex

	queue    repository.QueueRepository
	interval time.Duration
	logger   *slog.Logger

	cron    *cron.Cron
	started bool
}

// NewScheduler creates a sweep scheduler firing every interval.
func NewScheduler(queue repository.QueueRepository, interval time.Duration) *Scheduler {
	return &Scheduler{
		queue:    queue,
		interval: interval,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Start begins the sweep schedule. The first round of sweeps is enqueued
// immediately so a restart never extends retention by a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.enqueueSweeps(ctx)
	}); err != nil {
		return fmt.Errorf("registering sweep schedule: %w", err)
	}

	s.enqueueSweeps(ctx)
	s.cron.Start()
	s.started = true

	s.logger.Info("sweep scheduler started", slog.Duration("interval", s.interval))
	return nil
}

// Stop stops the schedule and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	<-s.cron.Stop().Done()
	s.cron = nil
	s.started = false

	s.logger.Info("sweep scheduler stopped")
}

// enqueueSweeps adds one job per sweep type, skipping the whole round when
// the previous round is still queued.
func (s *Scheduler) enqueueSweeps(ctx context.Context) {
	depth, err := s.queue.Depth(ctx, models.QueueCleanup)
	if err != nil {
		s.logger.Error("failed to check cleanup queue depth", slog.Any("error", err))
		return
	}
	if depth > 0 {
		s.logger.Debug("skipping sweep round, cleanup queue not drained",
			slog.Int64("depth", depth))
		return
	}

	for _, jobType := range sweepJobTypes {
		if err := s.queue.Enqueue(ctx, models.NewCleanupJob(jobType)); err != nil {
			s.logger.Error("failed to enqueue sweep job",
				slog.String("type", string(jobType)),
				slog.Any("error", err))
		}
	}

	s.logger.Debug("enqueued sweep jobs", slog.Int("count", len(sweepJobTypes)))
}
