// Package core provides the pipeline orchestration framework.
package core

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/subtitle"
	"github.com/voxsub/voxsub/internal/util"
)

// Stage represents a single step in the media-processing pipeline.
// Each stage reads what earlier stages left in the shared State and adds
// its own outputs.
type Stage interface {
	// ID returns a unique identifier for the stage (e.g., "extract_audio").
	// It doubles as the progress step name.
	ID() string

	// Name returns a human-readable name for the stage (e.g., "Extract Audio").
	Name() string

	// Execute performs the stage's work.
	Execute(ctx context.Context, state *State) (*StageResult, error)

	// Cleanup performs any necessary cleanup after execution.
	// Called regardless of success or failure.
	Cleanup(ctx context.Context) error
}

// State holds all data shared between pipeline stages.
type State struct {
	// Task is the durable record being processed. Stages treat it as
	// read-only; mutations go through the task repository.
	Task *models.Task

	// Choices are the immutable user options for this run.
	Choices models.UserChoices

	// Request is the immutable submission envelope.
	Request models.InitialRequest

	// Workspace is the per-task scratch directory. Owned by the processor;
	// stages put intermediate files here.
	Workspace *storage.Workspace

	// Reporter publishes weighted step progress to the task registry.
	Reporter *progress.Reporter

	// SourcePath is the acquired media file inside the workspace. The
	// extract stage may replace it with a time-range cut.
	SourcePath string

	// AudioPath is the extracted mono 16 kHz WAV.
	AudioPath string

	// Metadata holds the probed media properties.
	Metadata *models.SourceMetadata

	// Range is the validated processing sub-range, nil for the whole file.
	Range *util.TimeRange

	// DetectedLang is the source language the transcriber detected (or was
	// told). Set by the transcribe stage.
	DetectedLang string

	// Cues are the transcribed segments, ordered by start time.
	Cues []subtitle.Cue

	// ModelUsed is the transcription model that actually ran.
	ModelUsed models.TranscribeModel

	// ServiceUsed is the translation service that produced the output.
	ServiceUsed models.TranslationService

	// TranslationSkipped is set when the target language is empty or equal
	// to the detected source.
	TranslationSkipped bool

	// Artifacts maps artifact kind to the finished file in the workspace,
	// awaiting publication.
	Artifacts map[ArtifactKind]Artifact

	// Published names the artifact-store keys after publication.
	Published models.ResultFiles

	// StartTime records when pipeline execution began.
	StartTime time.Time
}

// NewState creates a new pipeline state for the given task.
func NewState(task *models.Task, workspace *storage.Workspace, reporter *progress.Reporter) *State {
	return &State{
		Task:      task,
		Choices:   task.UserChoices,
		Request:   task.InitialRequest,
		Workspace: workspace,
		Reporter:  reporter,
		StartTime: time.Now(),
		Artifacts: make(map[ArtifactKind]Artifact),
	}
}

// AddArtifact records a finished workspace file for publication.
func (s *State) AddArtifact(a Artifact) {
	s.Artifacts[a.Kind] = a
}

// TaskID returns the task's identifier as a string.
func (s *State) TaskID() string {
	return s.Task.ID.String()
}

// Duration returns the elapsed time since pipeline start.
func (s *State) Duration() time.Duration {
	return time.Since(s.StartTime)
}

// EffectiveDurationS returns the duration actually being processed: the
// validated sub-range when one was requested, the probed duration otherwise.
func (s *State) EffectiveDurationS() float64 {
	if s.Range != nil {
		return s.Range.Duration().Seconds()
	}
	if s.Metadata != nil {
		return s.Metadata.DurationS
	}
	return 0
}

// OutputBase returns the stem used for published artifact names. Uploads keep
// their original (sanitized) name; remote submissions fall back to "media".
func (s *State) OutputBase() string {
	name := s.Request.Filename
	if name == "" {
		return "media"
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = util.SanitizeFilename(base)
	if base == "" {
		return "media"
	}
	return base
}

// SourceRTL reports whether the detected source language is right-to-left.
func (s *State) SourceRTL() bool {
	return models.IsRTL(s.DetectedLang)
}

// TargetRTL reports whether the target language is right-to-left.
func (s *State) TargetRTL() bool {
	return models.IsRTL(s.Choices.TargetLang)
}

// StageResult contains the outcome of a stage execution.
type StageResult struct {
	// Artifacts produced by this stage.
	Artifacts []Artifact

	// Duration is the execution time.
	Duration time.Duration

	// Message is an optional summary message.
	Message string
}

// Result represents the outcome of pipeline execution.
type Result struct {
	// Success indicates whether all stages completed.
	Success bool

	// Duration is the total execution time.
	Duration time.Duration

	// StageResults contains results from each executed stage.
	StageResults map[string]*StageResult
}
