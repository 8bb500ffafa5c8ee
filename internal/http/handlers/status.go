package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/service"
	"github.com/voxsub/voxsub/internal/taskerr"
)

// StatusHandler handles status polling and download-token issuance.
type StatusHandler struct {
	tasks  *service.TaskService
	tokens *service.TokenService
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(tasks *service.TaskService, tokens *service.TokenService) *StatusHandler {
	return &StatusHandler{tasks: tasks, tokens: tokens}
}

// Register registers the status routes with the API.
func (h *StatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      "GET",
		Path:        "/api/v1/status/{task_id}",
		Summary:     "Get task status",
		Description: "Returns the task envelope. The envelope of a terminal task never changes between polls.",
		Tags:        []string{"Tasks"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getDownloadToken",
		Method:      "GET",
		Path:        "/api/v1/download-token/{task_id}/{kind}",
		Summary:     "Issue a download token",
		Description: "Issues a short-lived single-use token for one published artifact of the task.",
		Tags:        []string{"Downloads"},
	}, h.GetDownloadToken)
}

// GetStatusInput identifies the task and carries the client's locale.
type GetStatusInput struct {
	TaskID         string `path:"task_id" doc:"Task identifier"`
	AcceptLanguage string `header:"Accept-Language"`
}

// GetStatusOutput is the status envelope.
type GetStatusOutput struct {
	Body TaskEnvelope
}

// GetStatus handles GET /api/v1/status/{task_id}.
func (h *StatusHandler) GetStatus(ctx context.Context, input *GetStatusInput) (*GetStatusOutput, error) {
	task, err := h.tasks.Status(ctx, input.TaskID)
	if err != nil {
		return nil, apiError(err)
	}
	locale := taskerr.NegotiateLocale(input.AcceptLanguage)
	return &GetStatusOutput{Body: envelopeFrom(task, locale)}, nil
}

// GetDownloadTokenInput identifies one published artifact of a task.
type GetDownloadTokenInput struct {
	TaskID string `path:"task_id" doc:"Task identifier"`
	Kind   string `path:"kind" enum:"original_subs,translated_subs,subtitled_video,raw_download" doc:"Artifact kind"`
}

// GetDownloadTokenOutput carries the issued token and its redemption URL.
type GetDownloadTokenOutput struct {
	Body struct {
		Token     string `json:"token"`
		URL       string `json:"url" doc:"Redemption URL for the token"`
		ExpiresIn int    `json:"expires_in_s" doc:"Token lifetime in seconds"`
	}
}

// GetDownloadToken handles GET /api/v1/download-token/{task_id}/{kind}.
// Tokens are single use; each download needs a fresh one.
func (h *StatusHandler) GetDownloadToken(ctx context.Context, input *GetDownloadTokenInput) (*GetDownloadTokenOutput, error) {
	task, err := h.tasks.Status(ctx, input.TaskID)
	if err != nil {
		return nil, apiError(err)
	}
	if task.Result == nil {
		return nil, huma.Error404NotFound("task has no published artifacts")
	}

	key := artifactKey(task.Result.Files, input.Kind)
	if key == "" {
		return nil, huma.Error404NotFound("no artifact of kind " + input.Kind)
	}

	token, err := h.tokens.Issue(task.ID.String(), key)
	if err != nil {
		return nil, apiError(err)
	}

	out := &GetDownloadTokenOutput{}
	out.Body.Token = token
	out.Body.URL = "/api/v1/download-with-token/" + token
	out.Body.ExpiresIn = int(h.tokens.TTL().Seconds())
	return out, nil
}

// artifactKey maps a kind tag to the artifact key recorded in the result.
func artifactKey(files models.ResultFiles, kind string) string {
	switch kind {
	case "original_subs":
		return files.OriginalSubs
	case "translated_subs":
		return files.TranslatedSubs
	case "subtitled_video":
		return files.SubtitledVideo
	case "raw_download":
		return files.RawDownload
	default:
		return ""
	}
}
