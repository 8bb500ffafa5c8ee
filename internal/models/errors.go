package models

import "errors"

// Validation errors returned by model hooks.
var (
	// ErrTaskKindRequired indicates a task was created without a request kind.
	ErrTaskKindRequired = errors.New("task request kind is required")
	// ErrJobTypeRequired indicates a queue job was created without a type.
	ErrJobTypeRequired = errors.New("job type is required")
	// ErrJobQueueRequired indicates a queue job was created without a queue name.
	ErrJobQueueRequired = errors.New("job queue is required")
	// ErrInvalidStateTransition indicates an illegal task state change.
	ErrInvalidStateTransition = errors.New("invalid task state transition")
	// ErrTerminalState indicates an update was attempted on a terminal task.
	ErrTerminalState = errors.New("task is in a terminal state")
	// ErrTokenAlreadyRedeemed indicates a download token was presented twice.
	ErrTokenAlreadyRedeemed = errors.New("token already redeemed")
)
