package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"gorm.io/gorm"
)

// taskRepo implements TaskRepository using GORM.
type taskRepo struct {
	db                *gorm.DB
	recordRetention   time.Duration
	artifactRetention time.Duration
}

// NewTaskRepository creates a new TaskRepository. Retention windows are
// stamped onto tasks when they reach a terminal state.
func NewTaskRepository(db *gorm.DB, recordRetention, artifactRetention time.Duration) *taskRepo {
	return &taskRepo{
		db:                db,
		recordRetention:   recordRetention,
		artifactRetention: artifactRetention,
	}
}

// Create persists a new task in the pending state.
func (r *taskRepo) Create(ctx context.Context, task *models.Task) error {
	if task.State == "" {
		task.State = models.TaskStatePending
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by ID.
func (r *taskRepo) GetByID(ctx context.Context, id models.ULID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting task by ID: %w", err)
	}
	return &task, nil
}

// MarkRunning transitions a pending task to progress. The state guard in the
// WHERE clause makes the transition a no-op if another writer got there first.
func (r *taskRepo) MarkRunning(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND state = ?", id, models.TaskStatePending).
		Update("state", models.TaskStateProgress)
	if result.Error != nil {
		return fmt.Errorf("marking task running: %w", result.Error)
	}
	return nil
}

// UpdateProgress replaces the progress envelope inside a transaction so the
// monotonicity clamp and terminal-state guard are race-free.
func (r *taskRepo) UpdateProgress(ctx context.Context, id models.ULID, progress models.TaskProgress) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("loading task for progress update: %w", err)
		}

		// Terminal rows are write-once; late progress reports are dropped.
		if task.IsTerminal() {
			return nil
		}

		// Overall percent never moves backwards for observers.
		if progress.OverallPercent < task.Progress.OverallPercent {
			progress.OverallPercent = task.Progress.OverallPercent
		}

		// Save goes through the JSON field serializer; a raw column update
		// would hand the struct straight to the driver.
		task.Progress = progress
		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("updating task progress: %w", err)
		}
		return nil
	})
}

// SetSourceMetadata records the probed media properties. Terminal rows are
// left alone.
func (r *taskRepo) SetSourceMetadata(ctx context.Context, id models.ULID, meta *models.SourceMetadata) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("loading task for source metadata: %w", err)
		}
		if task.IsTerminal() {
			return nil
		}

		task.SourceMetadata = meta
		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("setting source metadata: %w", err)
		}
		return nil
	})
}

// MarkSuccess transitions a task to success with its result.
func (r *taskRepo) MarkSuccess(ctx context.Context, id models.ULID, result *models.TaskResult) error {
	return r.markTerminal(ctx, id, func(task *models.Task) error {
		return task.MarkSuccess(result, r.recordRetention, r.artifactRetention)
	})
}

// MarkFailure transitions a task to failure, optionally with a partial result.
func (r *taskRepo) MarkFailure(ctx context.Context, id models.ULID, taskErr *models.TaskError, partial *models.TaskResult) error {
	return r.markTerminal(ctx, id, func(task *models.Task) error {
		return task.MarkFailure(taskErr, partial, r.recordRetention)
	})
}

// markTerminal loads, transitions, and saves a task atomically. The first
// terminal transition wins; later ones return ErrTerminalState.
func (r *taskRepo) markTerminal(ctx context.Context, id models.ULID, transition func(*models.Task) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			return fmt.Errorf("loading task for terminal transition: %w", err)
		}
		if task.IsTerminal() {
			return models.ErrTerminalState
		}
		if err := transition(&task); err != nil {
			return err
		}
		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("saving terminal task: %w", err)
		}
		return nil
	})
}

// SetChainedTaskID records the successor task on a successful download-only
// task. Set at most once.
func (r *taskRepo) SetChainedTaskID(ctx context.Context, id models.ULID, chainedID models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			return fmt.Errorf("loading task for chaining: %w", err)
		}
		if task.Result == nil || task.State != models.TaskStateSuccess {
			return fmt.Errorf("task %s is not a successful task", id)
		}
		if task.Result.ChainedTaskID != "" {
			return fmt.Errorf("task %s already has a chained task", id)
		}
		task.Result.ChainedTaskID = chainedID.String()
		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("setting chained task ID: %w", err)
		}
		return nil
	})
}

// ListArtifactExpired returns successful tasks whose published files have
// passed their expiry.
func (r *taskRepo) ListArtifactExpired(ctx context.Context, now time.Time) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := r.db.WithContext(ctx).
		Where("artifact_expires_at IS NOT NULL AND artifact_expires_at <= ?", now).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("listing artifact-expired tasks: %w", err)
	}
	return tasks, nil
}

// ClearArtifactExpiry marks a task's artifacts as swept.
func (r *taskRepo) ClearArtifactExpiry(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).
		Update("artifact_expires_at", nil).Error; err != nil {
		return fmt.Errorf("clearing artifact expiry: %w", err)
	}
	return nil
}

// DeleteExpiredRecords removes terminal task rows past their expiry. Rows
// whose artifacts have not been swept yet are kept so the artifact sweep can
// still find them.
func (r *taskRepo) DeleteExpiredRecords(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("state IN (?, ?)", models.TaskStateSuccess, models.TaskStateFailure).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Where("artifact_expires_at IS NULL OR artifact_expires_at <= ?", now).
		Delete(&models.Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired task records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountActive returns the number of tasks not yet terminal.
func (r *taskRepo) CountActive(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("state IN (?, ?)", models.TaskStatePending, models.TaskStateProgress).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting active tasks: %w", err)
	}
	return count, nil
}

// Ensure taskRepo implements TaskRepository at compile time.
var _ TaskRepository = (*taskRepo)(nil)
