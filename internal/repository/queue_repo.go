package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// queueRepo implements QueueRepository using GORM.
type queueRepo struct {
	db *gorm.DB
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(db *gorm.DB) *queueRepo {
	return &queueRepo{db: db}
}

// Enqueue persists a new pending job.
func (r *queueRepo) Enqueue(ctx context.Context, job *models.QueueJob) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("enqueuing job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *queueRepo) GetByID(ctx context.Context, id models.ULID) (*models.QueueJob, error) {
	var job models.QueueJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// Acquire atomically claims the oldest runnable job on a queue.
// Uses SELECT FOR UPDATE with SKIP LOCKED for safe concurrent access.
// ULIDs sort by creation time, so ordering by ID preserves FIFO.
func (r *queueRepo) Acquire(ctx context.Context, queue models.QueueName, workerID string) (*models.QueueJob, error) {
	var job models.QueueJob
	now := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue = ?", queue).
			Where("(status = ? OR (status = ? AND next_run_at <= ?))",
				models.JobStatusPending, models.JobStatusScheduled, now).
			Where("locked_by IS NULL OR locked_by = ''").
			Order("priority DESC, id ASC").
			Limit(1)

		if err := query.First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("finding runnable job: %w", err)
		}

		nowTime := models.Now()
		job.Status = models.JobStatusRunning
		job.StartedAt = &nowTime
		job.LockedBy = workerID
		job.LockedAt = &nowTime
		job.AttemptCount++

		if err := tx.Save(&job).Error; err != nil {
			return fmt.Errorf("claiming job: %w", err)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // queue empty
		}
		return nil, err
	}
	return &job, nil
}

// Update persists job mutations.
func (r *queueRepo) Update(ctx context.Context, job *models.QueueJob) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return nil
}

// Release clears a job's lock and returns it to pending.
func (r *queueRepo) Release(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Model(&models.QueueJob{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"locked_by": "",
			"locked_at": nil,
			"status":    models.JobStatusPending,
		})
	if result.Error != nil {
		return fmt.Errorf("releasing job: %w", result.Error)
	}
	return nil
}

// Depth returns the number of pending or scheduled jobs on a queue.
func (r *queueRepo) Depth(ctx context.Context, queue models.QueueName) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.QueueJob{}).
		Where("queue = ? AND status IN (?, ?)", queue, models.JobStatusPending, models.JobStatusScheduled).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting queue depth: %w", err)
	}
	return count, nil
}

// ReclaimStale returns jobs locked longer than lockTimeout to pending and
// reports which jobs were reclaimed so their tasks can be failed over.
func (r *queueRepo) ReclaimStale(ctx context.Context, lockTimeout time.Duration) ([]*models.QueueJob, error) {
	cutoff := time.Now().Add(-lockTimeout)

	var stale []*models.QueueJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", models.JobStatusRunning, cutoff).
			Find(&stale).Error; err != nil {
			return fmt.Errorf("finding stale jobs: %w", err)
		}
		for _, job := range stale {
			update := map[string]interface{}{
				"locked_by": "",
				"locked_at": nil,
			}
			if job.AttemptCount >= job.MaxAttempts {
				update["status"] = models.JobStatusFailed
				now := models.Now()
				update["completed_at"] = &now
				update["last_error"] = "worker lock expired"
				job.Status = models.JobStatusFailed
			} else {
				update["status"] = models.JobStatusPending
				job.Status = models.JobStatusPending
			}
			if err := tx.Model(&models.QueueJob{}).Where("id = ?", job.ID).
				UpdateColumns(update).Error; err != nil {
				return fmt.Errorf("reclaiming job %s: %w", job.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}

// DeleteFinished removes completed and failed jobs older than before.
func (r *queueRepo) DeleteFinished(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN (?, ?) AND completed_at < ?",
			models.JobStatusCompleted, models.JobStatusFailed, before).
		Delete(&models.QueueJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting finished jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure queueRepo implements QueueRepository at compile time.
var _ QueueRepository = (*queueRepo)(nil)
