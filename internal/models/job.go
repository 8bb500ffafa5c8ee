package models

import (
	"time"

	"gorm.io/gorm"
)

// QueueName identifies a logical work queue.
type QueueName string

const (
	// QueueProcessing carries media-processing jobs.
	QueueProcessing QueueName = "processing"
	// QueueCleanup carries retention and reaping jobs.
	QueueCleanup QueueName = "cleanup"
)

// JobType represents the type of job to execute.
type JobType string

const (
	// JobTypeProcessTask runs the full processing pipeline for a task.
	JobTypeProcessTask JobType = "process_task"
	// JobTypeDownloadOnly runs the shortened acquire-and-publish pipeline.
	JobTypeDownloadOnly JobType = "download_only"
	// JobTypeArtifactSweep deletes expired published artifacts.
	JobTypeArtifactSweep JobType = "artifact_sweep"
	// JobTypeAssetSweep deletes unreferenced logo assets.
	JobTypeAssetSweep JobType = "asset_sweep"
	// JobTypeRecordSweep deletes expired task records.
	JobTypeRecordSweep JobType = "record_sweep"
	// JobTypeWorkspaceSweep reaps orphaned workspace directories.
	JobTypeWorkspaceSweep JobType = "workspace_sweep"
)

// JobStatus represents the current status of a queued job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be executed.
	JobStatusPending JobStatus = "pending"
	// JobStatusScheduled indicates the job is scheduled for future execution.
	JobStatusScheduled JobStatus = "scheduled"
	// JobStatusRunning indicates the job is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// QueueJob is a durable FIFO queue entry. Delivery is at-least-once: a job
// locked longer than the configured lock timeout is reclaimed and retried,
// so handlers must be idempotent with respect to their task inputs.
type QueueJob struct {
	BaseModel

	// Queue is the logical queue this job belongs to.
	Queue QueueName `gorm:"not null;size:20;index" json:"queue"`

	// Type indicates what kind of job this is.
	Type JobType `gorm:"not null;size:50;index" json:"type"`

	// TaskID is the task this job operates on, if any.
	TaskID ULID `gorm:"type:varchar(26);index" json:"task_id,omitempty"`

	// Payload carries the JSON-serialized task envelope.
	Payload string `gorm:"size:8192" json:"payload,omitempty"`

	// Status indicates the current status of the job.
	Status JobStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// NextRunAt is when a scheduled retry becomes runnable.
	NextRunAt *Time `gorm:"index" json:"next_run_at,omitempty"`

	// StartedAt is when the job started executing.
	StartedAt *Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (successfully or with error).
	CompletedAt *Time `json:"completed_at,omitempty"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// AttemptCount is the number of times this job has been attempted.
	AttemptCount int `gorm:"default:0" json:"attempt_count"`

	// MaxAttempts is the maximum number of attempts (0 = no retries).
	MaxAttempts int `gorm:"default:3" json:"max_attempts"`

	// BackoffSeconds is the initial backoff for retries; each retry doubles it.
	BackoffSeconds int `gorm:"default:60" json:"backoff_seconds"`

	// LastError contains the error message from the last failed attempt.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`

	// Priority determines execution order (higher = more important).
	Priority int `gorm:"default:0;index" json:"priority"`

	// LockedBy is the worker ID that has locked this job for execution.
	LockedBy string `gorm:"size:100;index" json:"locked_by,omitempty"`

	// LockedAt is the timestamp when the job was locked.
	LockedAt *Time `json:"locked_at,omitempty"`
}

// TableName returns the table name for QueueJob.
func (QueueJob) TableName() string {
	return "queue_jobs"
}

// IsPending returns true if the job is waiting for execution.
func (j *QueueJob) IsPending() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusScheduled
}

// IsFinished returns true once the job has a terminal status.
func (j *QueueJob) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// CanRetry returns true if the job has attempts remaining.
func (j *QueueJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.AttemptCount < j.MaxAttempts
}

// MarkCompleted marks the job as completed successfully.
func (j *QueueJob) MarkCompleted() {
	j.Status = JobStatusCompleted
	now := Now()
	j.CompletedAt = &now
	j.LastError = ""
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
	j.LockedBy = ""
	j.LockedAt = nil
}

// MarkFailed marks the job as failed with an error message.
func (j *QueueJob) MarkFailed(err error) {
	j.Status = JobStatusFailed
	now := Now()
	j.CompletedAt = &now
	if err != nil {
		j.LastError = err.Error()
	}
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
	j.LockedBy = ""
	j.LockedAt = nil
}

// CalculateNextBackoff returns the backoff duration for the next retry.
// Exponential: base * 2^(attemptCount-1), capped at 10 minutes.
func (j *QueueJob) CalculateNextBackoff() time.Duration {
	if j.BackoffSeconds <= 0 {
		j.BackoffSeconds = 60
	}

	attempts := j.AttemptCount
	if attempts < 1 {
		attempts = 1
	}

	multiplier := 1 << (attempts - 1)
	if multiplier < 1 {
		multiplier = 1
	}

	backoffSecs := j.BackoffSeconds * multiplier
	maxBackoff := 600
	if backoffSecs > maxBackoff {
		backoffSecs = maxBackoff
	}

	return time.Duration(backoffSecs) * time.Second
}

// ScheduleRetry schedules the job for retry with exponential backoff.
func (j *QueueJob) ScheduleRetry() {
	if !j.CanRetry() {
		return
	}

	nextRun := Now().Add(j.CalculateNextBackoff())
	j.NextRunAt = &nextRun
	j.Status = JobStatusScheduled
	j.LockedBy = ""
	j.LockedAt = nil
}

// Validate performs basic validation on the job.
func (j *QueueJob) Validate() error {
	if j.Type == "" {
		return ErrJobTypeRequired
	}
	if j.Queue == "" {
		return ErrJobQueueRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates its ULID.
func (j *QueueJob) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// NewProcessingJob creates a processing-queue job for a task.
func NewProcessingJob(taskID ULID, jobType JobType, payload string) *QueueJob {
	return &QueueJob{
		Queue:   QueueProcessing,
		Type:    jobType,
		TaskID:  taskID,
		Payload: payload,
	}
}

// NewCleanupJob creates a cleanup-queue job.
func NewCleanupJob(jobType JobType) *QueueJob {
	return &QueueJob{
		Queue: QueueCleanup,
		Type:  jobType,
	}
}
