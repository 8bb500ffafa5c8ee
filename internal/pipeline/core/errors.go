package core

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrNoSource indicates the acquire stage produced no media file.
	ErrNoSource = errors.New("no source media acquired")

	// ErrNoSegments indicates transcription produced no usable segments.
	ErrNoSegments = errors.New("transcription produced no segments")

	// ErrStageNotFound indicates a requested stage was not found.
	ErrStageNotFound = errors.New("stage not found")
)

// StageError wraps an error with stage context.
type StageError struct {
	StageID   string
	StageName string
	Err       error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.StageName, e.StageID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stageID, stageName string, err error) *StageError {
	return &StageError{
		StageID:   stageID,
		StageName: stageName,
		Err:       err,
	}
}
