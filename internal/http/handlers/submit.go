package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/service"
	"github.com/voxsub/voxsub/internal/taskerr"
)

// allowedUploadExts is the upload container allow-list. The probe is the
// real gate; this rejects the obviously wrong before reading the payload.
var allowedUploadExts = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".webm": true,
	".avi": true, ".m4v": true, ".mpg": true, ".mpeg": true,
	".mp3": true, ".wav": true, ".m4a": true, ".flac": true, ".ogg": true,
}

// SubmitHandler handles the task submission endpoints.
type SubmitHandler struct {
	tasks       *service.TaskService
	assets      *service.AssetService
	maxFileSize int64
}

// NewSubmitHandler creates a new submission handler.
func NewSubmitHandler(tasks *service.TaskService, assets *service.AssetService, maxFileSize int64) *SubmitHandler {
	return &SubmitHandler{
		tasks:       tasks,
		assets:      assets,
		maxFileSize: maxFileSize,
	}
}

// Register registers the submission routes with the API.
func (h *SubmitHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submitRemote",
		Method:        "POST",
		Path:          "/api/v1/remote",
		Summary:       "Submit a remote media URL",
		Description:   "Creates a processing task that downloads and processes the given URL.",
		Tags:          []string{"Tasks"},
		DefaultStatus: 202,
	}, h.SubmitRemote)

	huma.Register(api, huma.Operation{
		OperationID:   "submitDownloadOnly",
		Method:        "POST",
		Path:          "/api/v1/download-only",
		Summary:       "Submit a download-only task",
		Description:   "Creates a task that stops after acquiring the remote media. With process_after set, a processing task is chained once the download finishes.",
		Tags:          []string{"Tasks"},
		DefaultStatus: 202,
	}, h.SubmitDownloadOnly)

	huma.Register(api, huma.Operation{
		OperationID:      "submitUpload",
		Method:           "POST",
		Path:             "/api/v1/upload",
		Summary:          "Submit an uploaded media file",
		Description:      "Creates a processing task for an uploaded file. The file is probed synchronously; unsupported media is rejected immediately.",
		Tags:             []string{"Tasks"},
		DefaultStatus:    202,
		RequestBody:      &huma.RequestBody{Content: map[string]*huma.MediaType{"multipart/form-data": {}}},
		SkipValidateBody: true,
	}, h.SubmitUpload)
}

// SubmitParams is the parameter set shared by all submission kinds.
type SubmitParams struct {
	SourceLang         string                 `json:"source_lang,omitempty" doc:"Source language code or 'auto'"`
	TargetLang         string                 `json:"target_lang,omitempty" doc:"Target language code; empty means transcription only"`
	TranscribeModel    string                 `json:"transcribe_model,omitempty" doc:"Transcription model tag"`
	TranslationService string                 `json:"translation_service,omitempty" doc:"Translation backend tag"`
	BurnIn             bool                   `json:"burn_in,omitempty" doc:"Render subtitles into the video"`
	Watermark          models.WatermarkChoices `json:"watermark,omitzero"`
	StartTime          string                 `json:"start_time,omitempty" doc:"Optional range start as hh:mm:ss"`
	EndTime            string                 `json:"end_time,omitempty" doc:"Optional range end as hh:mm:ss"`
}

func (p *SubmitParams) options() service.SubmitOptions {
	return service.SubmitOptions{
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Choices: models.UserChoices{
			SourceLang:         p.SourceLang,
			TargetLang:         p.TargetLang,
			TranscribeModel:    models.TranscribeModel(p.TranscribeModel),
			TranslationService: models.TranslationService(p.TranslationService),
			BurnIn:             p.BurnIn,
			Watermark:          p.Watermark,
		},
	}
}

// SubmitRemoteInput is the request for a remote URL submission.
type SubmitRemoteInput struct {
	Body struct {
		URL string `json:"url" minLength:"1" doc:"Remote media URL"`
		SubmitParams
	}
}

// SubmitOutput is the 202 envelope returned from all submissions.
type SubmitOutput struct {
	Body TaskEnvelope
}

// SubmitRemote handles POST /api/v1/remote.
func (h *SubmitHandler) SubmitRemote(ctx context.Context, input *SubmitRemoteInput) (*SubmitOutput, error) {
	task, err := h.tasks.SubmitRemote(ctx, input.Body.URL, input.Body.options())
	if err != nil {
		return nil, apiError(err)
	}
	return &SubmitOutput{Body: envelopeFrom(task, "")}, nil
}

// SubmitDownloadOnlyInput is the request for a download-only submission.
type SubmitDownloadOnlyInput struct {
	Body struct {
		URL          string `json:"url" minLength:"1" doc:"Remote media URL"`
		ProcessAfter bool   `json:"process_after,omitempty" doc:"Chain a processing task after the download"`
		SubmitParams
	}
}

// SubmitDownloadOnly handles POST /api/v1/download-only.
func (h *SubmitHandler) SubmitDownloadOnly(ctx context.Context, input *SubmitDownloadOnlyInput) (*SubmitOutput, error) {
	task, err := h.tasks.SubmitDownloadOnly(ctx, input.Body.URL, input.Body.ProcessAfter, input.Body.options())
	if err != nil {
		return nil, apiError(err)
	}
	return &SubmitOutput{Body: envelopeFrom(task, "")}, nil
}

// SubmitUploadInput is the multipart request for an upload submission.
type SubmitUploadInput struct {
	RawBody multipart.Form
}

// SubmitUpload handles POST /api/v1/upload.
func (h *SubmitHandler) SubmitUpload(ctx context.Context, input *SubmitUploadInput) (*SubmitOutput, error) {
	files := input.RawBody.File["file"]
	if len(files) == 0 {
		return nil, huma.Error400BadRequest("no file provided")
	}
	fileHeader := files[0]

	if fileHeader.Size == 0 {
		return nil, huma.Error400BadRequest("empty upload")
	}
	if h.maxFileSize > 0 && fileHeader.Size > h.maxFileSize {
		return nil, apiError(taskerr.Newf(taskerr.CodePayloadTooLarge,
			"file exceeds the %d byte limit", h.maxFileSize))
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedUploadExts[ext] {
		return nil, huma.Error400BadRequest("unsupported file extension " + ext)
	}

	opts, err := h.formOptions(ctx, &input.RawBody)
	if err != nil {
		return nil, err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, huma.Error400BadRequest("failed to open uploaded file")
	}
	defer file.Close()

	task, err := h.tasks.SubmitUpload(ctx, fileHeader.Filename, file, opts)
	if err != nil {
		return nil, apiError(err)
	}
	return &SubmitOutput{Body: envelopeFrom(task, "")}, nil
}

// formOptions builds submission options from multipart form values. An
// uploaded logo file takes precedence over a logo_ref value.
func (h *SubmitHandler) formOptions(ctx context.Context, form *multipart.Form) (service.SubmitOptions, error) {
	value := func(name string) string {
		if vs := form.Value[name]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}
	boolValue := func(name string) bool {
		v, _ := strconv.ParseBool(value(name))
		return v
	}

	params := SubmitParams{
		SourceLang:         value("source_lang"),
		TargetLang:         value("target_lang"),
		TranscribeModel:    value("transcribe_model"),
		TranslationService: value("translation_service"),
		BurnIn:             boolValue("burn_in"),
		StartTime:          value("start_time"),
		EndTime:            value("end_time"),
		Watermark: models.WatermarkChoices{
			Enabled:  boolValue("watermark_enabled"),
			Position: models.WatermarkPosition(value("watermark_position")),
			Size:     models.WatermarkSize(value("watermark_size")),
			LogoRef:  value("logo_ref"),
		},
	}
	if opacity := value("watermark_opacity"); opacity != "" {
		n, err := strconv.Atoi(opacity)
		if err != nil {
			return service.SubmitOptions{}, huma.Error400BadRequest("watermark_opacity must be an integer")
		}
		params.Watermark.Opacity = n
	}

	if logos := form.File["logo"]; len(logos) > 0 {
		ref, err := h.saveLogo(ctx, logos[0])
		if err != nil {
			return service.SubmitOptions{}, err
		}
		params.Watermark.LogoRef = ref
	}

	return params.options(), nil
}

// saveLogo stores an uploaded logo through the deduplicating asset store and
// returns its content-hash reference.
func (h *SubmitHandler) saveLogo(ctx context.Context, header *multipart.FileHeader) (string, error) {
	logo, err := header.Open()
	if err != nil {
		return "", huma.Error400BadRequest("failed to open logo file")
	}
	defer logo.Close()

	data, err := io.ReadAll(logo)
	if err != nil {
		return "", huma.Error400BadRequest("failed to read logo file")
	}

	asset, _, err := h.assets.SaveLogo(ctx, data)
	if err != nil {
		return "", apiError(err)
	}
	return asset.ContentHash, nil
}
