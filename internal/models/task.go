package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	// TaskStatePending indicates the task is queued and no worker has picked it up.
	TaskStatePending TaskState = "pending"
	// TaskStateProgress indicates a worker is executing the task.
	TaskStateProgress TaskState = "progress"
	// TaskStateSuccess indicates the task completed and produced a result.
	TaskStateSuccess TaskState = "success"
	// TaskStateFailure indicates the task terminally failed.
	TaskStateFailure TaskState = "failure"
)

// IsTerminal returns true for success and failure.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSuccess || s == TaskStateFailure
}

// CanTransitionTo reports whether a state change is legal.
// Transitions follow pending -> progress -> {success, failure};
// pending may also fail directly (validation discovered at claim time).
func (s TaskState) CanTransitionTo(next TaskState) bool {
	if s == next {
		return true
	}
	switch s {
	case TaskStatePending:
		return next == TaskStateProgress || next == TaskStateFailure
	case TaskStateProgress:
		return next.IsTerminal()
	default:
		return false
	}
}

// RequestKind identifies how the source media enters the system.
type RequestKind string

const (
	// RequestKindUpload is a multipart file upload.
	RequestKindUpload RequestKind = "upload"
	// RequestKindRemoteURL is a remote media URL fetched by the downloader.
	RequestKindRemoteURL RequestKind = "remote_url"
	// RequestKindDownloadOnly is a remote fetch that stops after acquisition.
	RequestKindDownloadOnly RequestKind = "download_only"
)

// InitialRequest is the immutable submission envelope.
type InitialRequest struct {
	Kind      RequestKind `json:"kind"`
	URL       string      `json:"url,omitempty"`
	Filename  string      `json:"filename,omitempty"`
	StartTime string      `json:"start_time,omitempty"`
	EndTime   string      `json:"end_time,omitempty"`
	// ProcessAfter requests a chained processing task after a
	// download-only acquisition completes.
	ProcessAfter bool `json:"process_after,omitempty"`
}

// SourceMetadata holds probed media properties.
type SourceMetadata struct {
	DurationS  float64 `json:"duration_s"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	CodecVideo string  `json:"codec_v"`
	CodecAudio string  `json:"codec_a"`
	SizeBytes  int64   `json:"size_bytes"`
	BitRate    int64   `json:"bit_rate,omitempty"`
	MIME       string  `json:"mime,omitempty"`
	Ext        string  `json:"ext,omitempty"`
	Title      string  `json:"title,omitempty"`
}

// StepStatus is the status of a single pipeline step as seen by clients.
type StepStatus string

const (
	// StepWaiting means the step has not started.
	StepWaiting StepStatus = "waiting"
	// StepInProgress means the step is running.
	StepInProgress StepStatus = "in_progress"
	// StepCompleted means the step finished.
	StepCompleted StepStatus = "completed"
	// StepError means the step failed.
	StepError StepStatus = "error"
)

// Step is one weighted phase in the client-visible progress model.
type Step struct {
	Name          string     `json:"name"`
	Weight        float64    `json:"weight"`
	Status        StepStatus `json:"status"`
	Percent       float64    `json:"percent"`
	Indeterminate bool       `json:"indeterminate,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// TaskProgress is the client-visible progress envelope.
type TaskProgress struct {
	OverallPercent float64  `json:"overall_percent"`
	Steps          []Step   `json:"steps"`
	Logs           []string `json:"logs,omitempty"`
}

// ResultFiles names the published artifacts of a successful task.
type ResultFiles struct {
	OriginalSubs   string `json:"original_subs,omitempty"`
	TranslatedSubs string `json:"translated_subs,omitempty"`
	SubtitledVideo string `json:"subtitled_video,omitempty"`
	RawDownload    string `json:"raw_download,omitempty"`
}

// TaskResult is recorded when a task reaches success.
type TaskResult struct {
	Files ResultFiles `json:"files"`
	// TimingSummary maps stage id -> seconds spent, plus a "total" entry.
	TimingSummary map[string]float64 `json:"timing_summary,omitempty"`
	// ModelUsed records the transcription model actually used, which may be
	// smaller than requested after a downgrade.
	ModelUsed string `json:"model_used,omitempty"`
	// ServiceUsed records the translation service actually used.
	ServiceUsed string `json:"service_used,omitempty"`
	// DetectedLang records the source language detected during transcription.
	DetectedLang string `json:"detected_lang,omitempty"`
	// ChainedTaskID points at the successor task for download-then-process
	// submissions. Set at most once, after the successor is enqueued.
	ChainedTaskID string `json:"chained_task_id,omitempty"`
}

// TaskError is recorded when a task reaches failure.
type TaskError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	UserMessage string `json:"user_message"`
	Recoverable bool   `json:"recoverable"`
}

// Task is the durable record of one unit of client-submitted work.
// The task registry exclusively owns these rows; workers mutate them only
// through the progress reporter.
type Task struct {
	BaseModel

	State TaskState `gorm:"not null;default:'pending';size:20;index" json:"state"`

	InitialRequest InitialRequest  `gorm:"serializer:json" json:"initial_request"`
	UserChoices    UserChoices     `gorm:"serializer:json" json:"user_choices"`
	SourceMetadata *SourceMetadata `gorm:"serializer:json" json:"source_metadata,omitempty"`
	Progress       TaskProgress    `gorm:"serializer:json" json:"progress"`
	Result         *TaskResult     `gorm:"serializer:json" json:"result,omitempty"`
	Error          *TaskError      `gorm:"serializer:json" json:"error,omitempty"`

	// ExpiresAt is when the record becomes eligible for sweep.
	ExpiresAt *Time `gorm:"index" json:"expires_at,omitempty"`
	// ArtifactExpiresAt is when published files become eligible for deletion.
	ArtifactExpiresAt *Time `gorm:"index" json:"artifact_expires_at,omitempty"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// IsTerminal returns true if the task reached a terminal state.
func (t *Task) IsTerminal() bool {
	return t.State.IsTerminal()
}

// Validate performs basic validation on the task.
func (t *Task) Validate() error {
	if t.InitialRequest.Kind == "" {
		return ErrTaskKindRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the task and generates its ULID.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if err := t.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return t.Validate()
}

// MarkSuccess transitions the task to success with the given result.
func (t *Task) MarkSuccess(result *TaskResult, recordRetention, artifactRetention time.Duration) error {
	if !t.State.CanTransitionTo(TaskStateSuccess) {
		return ErrInvalidStateTransition
	}
	t.State = TaskStateSuccess
	t.Result = result
	t.Error = nil
	t.Progress.OverallPercent = 100
	expires := Now().Add(recordRetention)
	t.ExpiresAt = &expires
	artifactExpires := Now().Add(artifactRetention)
	t.ArtifactExpiresAt = &artifactExpires
	return nil
}

// MarkFailure transitions the task to failure with the given error.
// A partial result (e.g. subtitles published before the render stage failed)
// may accompany the error.
func (t *Task) MarkFailure(taskErr *TaskError, partial *TaskResult, recordRetention time.Duration) error {
	if !t.State.CanTransitionTo(TaskStateFailure) {
		return ErrInvalidStateTransition
	}
	t.State = TaskStateFailure
	t.Error = taskErr
	t.Result = partial
	expires := Now().Add(recordRetention)
	t.ExpiresAt = &expires
	return nil
}
