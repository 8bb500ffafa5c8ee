package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/taskerr"
)

// MetaHandler serves the static enumerations clients build their submission
// forms from.
type MetaHandler struct {
	remoteDownload bool
	defaultModel   models.TranscribeModel
	remoteAPI      bool
	paidTranslate  bool
}

// NewMetaHandler creates a new metadata handler. The flags mirror the
// effective configuration: what is disabled is not advertised.
func NewMetaHandler(remoteDownload bool, defaultModel models.TranscribeModel, remoteAPI, paidTranslate bool) *MetaHandler {
	return &MetaHandler{
		remoteDownload: remoteDownload,
		defaultModel:   defaultModel,
		remoteAPI:      remoteAPI,
		paidTranslate:  paidTranslate,
	}
}

// Register registers the metadata routes with the API.
func (h *MetaHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listLanguages",
		Method:      "GET",
		Path:        "/api/v1/languages",
		Summary:     "List supported languages",
		Tags:        []string{"Metadata"},
	}, h.ListLanguages)

	huma.Register(api, huma.Operation{
		OperationID: "listModels",
		Method:      "GET",
		Path:        "/api/v1/models",
		Summary:     "List transcription models",
		Tags:        []string{"Metadata"},
	}, h.ListModels)

	huma.Register(api, huma.Operation{
		OperationID: "listTranslationServices",
		Method:      "GET",
		Path:        "/api/v1/translation-services",
		Summary:     "List translation services",
		Tags:        []string{"Metadata"},
	}, h.ListTranslationServices)

	huma.Register(api, huma.Operation{
		OperationID: "getFeatures",
		Method:      "GET",
		Path:        "/api/v1/features",
		Summary:     "Get enabled features",
		Tags:        []string{"Metadata"},
	}, h.GetFeatures)
}

// ListLanguagesOutput carries the closed language table.
type ListLanguagesOutput struct {
	Body struct {
		Languages []models.Language `json:"languages"`
	}
}

// ListLanguages handles GET /api/v1/languages.
func (h *MetaHandler) ListLanguages(ctx context.Context, _ *struct{}) (*ListLanguagesOutput, error) {
	out := &ListLanguagesOutput{}
	out.Body.Languages = models.Languages
	return out, nil
}

// ModelInfo describes one transcription model choice.
type ModelInfo struct {
	Tag     string `json:"tag"`
	Local   bool   `json:"local"`
	Default bool   `json:"default,omitempty"`
}

// ListModelsOutput carries the transcription model enumeration.
type ListModelsOutput struct {
	Body struct {
		Models []ModelInfo `json:"models"`
	}
}

// ListModels handles GET /api/v1/models.
func (h *MetaHandler) ListModels(ctx context.Context, _ *struct{}) (*ListModelsOutput, error) {
	tags := []models.TranscribeModel{
		models.ModelTiny, models.ModelBase, models.ModelSmall,
		models.ModelMedium, models.ModelLarge,
	}
	if h.remoteAPI {
		tags = append(tags, models.ModelRemoteAPI)
	}

	out := &ListModelsOutput{}
	for _, tag := range tags {
		out.Body.Models = append(out.Body.Models, ModelInfo{
			Tag:     string(tag),
			Local:   tag.IsLocal(),
			Default: tag == h.defaultModel,
		})
	}
	return out, nil
}

// ListTranslationServicesOutput carries the translation service enumeration.
type ListTranslationServicesOutput struct {
	Body struct {
		Services []string `json:"services"`
	}
}

// ListTranslationServices handles GET /api/v1/translation-services.
func (h *MetaHandler) ListTranslationServices(ctx context.Context, _ *struct{}) (*ListTranslationServicesOutput, error) {
	out := &ListTranslationServicesOutput{}
	out.Body.Services = []string{string(models.ServiceFree)}
	if h.paidTranslate {
		out.Body.Services = append(out.Body.Services, string(models.ServicePaid))
	}
	return out, nil
}

// GetFeaturesOutput carries the feature flags.
type GetFeaturesOutput struct {
	Body struct {
		RemoteDownload bool     `json:"remote_download"`
		BurnIn         bool     `json:"burn_in"`
		Watermark      bool     `json:"watermark"`
		EditOperations bool     `json:"edit_operations"`
		MessageLocales []string `json:"message_locales"`
	}
}

// GetFeatures handles GET /api/v1/features.
func (h *MetaHandler) GetFeatures(ctx context.Context, _ *struct{}) (*GetFeaturesOutput, error) {
	out := &GetFeaturesOutput{}
	out.Body.RemoteDownload = h.remoteDownload
	out.Body.BurnIn = true
	out.Body.Watermark = true
	out.Body.EditOperations = true
	out.Body.MessageLocales = taskerr.SupportedLocales()
	return out, nil
}
