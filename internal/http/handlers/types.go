// Package handlers implements the voxsub API operations.
package handlers

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/service"
	"github.com/voxsub/voxsub/internal/taskerr"
)

// TaskEnvelope is the task record as clients see it, returned from every
// submission (202) and status poll (200). The envelope for a terminal task
// is stable across polls.
type TaskEnvelope struct {
	TaskID         string                 `json:"task_id"`
	State          models.TaskState       `json:"state"`
	Progress       models.TaskProgress    `json:"progress"`
	UserChoices    models.UserChoices     `json:"user_choices"`
	InitialRequest models.InitialRequest  `json:"initial_request"`
	SourceMetadata *models.SourceMetadata `json:"source_metadata,omitempty"`
	Result         *models.TaskResult     `json:"result,omitempty"`
	Error          *models.TaskError      `json:"error,omitempty"`
}

// envelopeFrom converts a task record to its client envelope. The error's
// user message is re-localized for the negotiated locale; the stored message
// uses the default locale.
func envelopeFrom(task *models.Task, locale string) TaskEnvelope {
	env := TaskEnvelope{
		TaskID:         task.ID.String(),
		State:          task.State,
		Progress:       task.Progress,
		UserChoices:    task.UserChoices,
		InitialRequest: task.InitialRequest,
		SourceMetadata: task.SourceMetadata,
		Result:         task.Result,
	}
	if task.Error != nil {
		localized := *task.Error
		localized.UserMessage = taskerr.UserMessage(taskerr.Code(localized.Code), locale)
		env.Error = &localized
	}
	return env
}

// apiError maps service errors onto HTTP responses. Validation failures keep
// their taskerr code in the response body so clients can branch on it.
func apiError(err error) error {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return huma.Error404NotFound("task not found")
	case errors.Is(err, service.ErrQueueFull):
		return huma.ErrorWithHeaders(
			huma.Error503ServiceUnavailable("queue is full, try again later"),
			http.Header{"Retry-After": []string{"30"}},
		)
	}

	te := taskerr.From(err)
	switch te.Code {
	case taskerr.CodeBadRequest, taskerr.CodeUnsupportedMedia, taskerr.CodeProbeFailed:
		return &huma.ErrorModel{
			Status: http.StatusBadRequest,
			Title:  string(te.Code),
			Detail: te.Message,
		}
	case taskerr.CodePayloadTooLarge:
		return &huma.ErrorModel{
			Status: http.StatusRequestEntityTooLarge,
			Title:  string(te.Code),
			Detail: te.Message,
		}
	case taskerr.CodeRateLimited:
		return huma.Error429TooManyRequests(te.Message)
	default:
		return huma.Error500InternalServerError("internal error")
	}
}
