// Package repository defines data access interfaces for voxsub entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/voxsub/voxsub/internal/models"
)

// TaskRepository defines operations for the task registry. It is the single
// writer for task rows: terminal states are write-once and overall progress
// never decreases.
type TaskRepository interface {
	// Create persists a new task in the pending state.
	Create(ctx context.Context, task *models.Task) error
	// GetByID retrieves a task by ID. Returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Task, error)
	// MarkRunning transitions a pending task to progress.
	MarkRunning(ctx context.Context, id models.ULID) error
	// UpdateProgress replaces the progress envelope. Updates to terminal
	// tasks are ignored, and a lower overall percent is clamped to the
	// stored value.
	UpdateProgress(ctx context.Context, id models.ULID, progress models.TaskProgress) error
	// SetSourceMetadata records the probed media properties.
	SetSourceMetadata(ctx context.Context, id models.ULID, meta *models.SourceMetadata) error
	// MarkSuccess transitions a task to success with its result.
	MarkSuccess(ctx context.Context, id models.ULID, result *models.TaskResult) error
	// MarkFailure transitions a task to failure. A partial result may
	// accompany the error when some artifacts were already published.
	MarkFailure(ctx context.Context, id models.ULID, taskErr *models.TaskError, partial *models.TaskResult) error
	// SetChainedTaskID records the successor task on a successful
	// download-only task.
	SetChainedTaskID(ctx context.Context, id models.ULID, chainedID models.ULID) error
	// ListArtifactExpired returns successful tasks whose published files
	// have passed their expiry.
	ListArtifactExpired(ctx context.Context, now time.Time) ([]*models.Task, error)
	// ClearArtifactExpiry marks a task's artifacts as swept.
	ClearArtifactExpiry(ctx context.Context, id models.ULID) error
	// DeleteExpiredRecords removes terminal task rows past their expiry.
	DeleteExpiredRecords(ctx context.Context, now time.Time) (int64, error)
	// CountActive returns the number of tasks not yet terminal.
	CountActive(ctx context.Context) (int64, error)
}

// QueueRepository defines operations for the durable FIFO job queue.
// Delivery is at-least-once: jobs locked past the lock timeout are reclaimed.
type QueueRepository interface {
	// Enqueue persists a new pending job.
	Enqueue(ctx context.Context, job *models.QueueJob) error
	// GetByID retrieves a job by ID. Returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.QueueJob, error)
	// Acquire atomically claims the oldest runnable job on a queue using
	// SELECT FOR UPDATE SKIP LOCKED. Returns nil when the queue is empty.
	Acquire(ctx context.Context, queue models.QueueName, workerID string) (*models.QueueJob, error)
	// Update persists job mutations (completion, failure, retry schedule).
	Update(ctx context.Context, job *models.QueueJob) error
	// Release clears a job's lock and returns it to pending.
	Release(ctx context.Context, id models.ULID) error
	// Depth returns the number of pending or scheduled jobs on a queue.
	Depth(ctx context.Context, queue models.QueueName) (int64, error)
	// ReclaimStale returns jobs locked longer than lockTimeout to pending
	// and reports which jobs were reclaimed.
	ReclaimStale(ctx context.Context, lockTimeout time.Duration) ([]*models.QueueJob, error)
	// DeleteFinished removes completed and failed jobs older than before.
	DeleteFinished(ctx context.Context, before time.Time) (int64, error)
}

// AssetRepository defines operations for the deduplicating logo store index.
type AssetRepository interface {
	// Create persists a new asset record.
	Create(ctx context.Context, asset *models.LogoAsset) error
	// GetByHash retrieves an asset by content hash. Returns nil when absent.
	GetByHash(ctx context.Context, contentHash string) (*models.LogoAsset, error)
	// Touch updates the asset's last-used timestamp.
	Touch(ctx context.Context, id models.ULID) error
	// ListUnusedSince returns assets not used since the cutoff.
	ListUnusedSince(ctx context.Context, cutoff time.Time) ([]*models.LogoAsset, error)
	// Delete removes an asset record.
	Delete(ctx context.Context, id models.ULID) error
}

// TokenRepository defines operations for single-use download token redemption.
type TokenRepository interface {
	// Redeem records a token hash as consumed. Returns
	// models.ErrTokenAlreadyRedeemed when the hash was seen before.
	Redeem(ctx context.Context, tokenHash, artifactKey string) error
	// DeleteOlderThan removes redemption records past their usefulness
	// (tokens that old fail signature expiry anyway).
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
