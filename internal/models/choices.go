package models

import "fmt"

// TranscribeModel identifies the transcription back-end requested by the user.
type TranscribeModel string

// Recognized transcription model tags.
const (
	ModelTiny      TranscribeModel = "tiny"
	ModelBase      TranscribeModel = "base"
	ModelSmall     TranscribeModel = "small"
	ModelMedium    TranscribeModel = "medium"
	ModelLarge     TranscribeModel = "large"
	ModelRemoteAPI TranscribeModel = "remote-api"
)

// LocalModelSizes lists local model sizes from smallest to largest.
// The downgrade ladder walks this slice right to left.
var LocalModelSizes = []TranscribeModel{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge}

// IsLocal returns true for local model sizes.
func (m TranscribeModel) IsLocal() bool {
	for _, s := range LocalModelSizes {
		if m == s {
			return true
		}
	}
	return false
}

// Valid returns true if the tag is a recognized model.
func (m TranscribeModel) Valid() bool {
	return m.IsLocal() || m == ModelRemoteAPI
}

// Smaller returns the next smaller local model size, or "" if none exists.
func (m TranscribeModel) Smaller() TranscribeModel {
	for i, s := range LocalModelSizes {
		if m == s && i > 0 {
			return LocalModelSizes[i-1]
		}
	}
	return ""
}

// TranslationService identifies the translation back-end requested by the user.
type TranslationService string

// Recognized translation service tags.
const (
	ServiceFree TranslationService = "free"
	ServicePaid TranslationService = "paid"
)

// Valid returns true if the tag is a recognized service.
func (s TranslationService) Valid() bool {
	return s == ServiceFree || s == ServicePaid
}

// WatermarkPosition identifies where the watermark overlay is anchored.
type WatermarkPosition string

// Recognized watermark positions.
const (
	PositionTopLeft     WatermarkPosition = "top-left"
	PositionTopRight    WatermarkPosition = "top-right"
	PositionBottomLeft  WatermarkPosition = "bottom-left"
	PositionBottomRight WatermarkPosition = "bottom-right"
	PositionCenter      WatermarkPosition = "center"
)

// Valid returns true if the position is recognized.
func (p WatermarkPosition) Valid() bool {
	switch p {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight, PositionCenter:
		return true
	}
	return false
}

// WatermarkSize identifies the watermark scale relative to the video width.
type WatermarkSize string

// Recognized watermark sizes.
const (
	SizeSmall  WatermarkSize = "small"
	SizeMedium WatermarkSize = "medium"
	SizeLarge  WatermarkSize = "large"
)

// Valid returns true if the size is recognized.
func (s WatermarkSize) Valid() bool {
	return s == SizeSmall || s == SizeMedium || s == SizeLarge
}

// WatermarkChoices holds the user's watermark options.
type WatermarkChoices struct {
	Enabled  bool              `json:"enabled"`
	Position WatermarkPosition `json:"position,omitempty"`
	Size     WatermarkSize     `json:"size,omitempty"`
	Opacity  int               `json:"opacity,omitempty"`
	LogoRef  string            `json:"logo_ref,omitempty"`
}

// Validate checks watermark options when enabled.
func (w *WatermarkChoices) Validate() error {
	if !w.Enabled {
		return nil
	}
	if !w.Position.Valid() {
		return fmt.Errorf("invalid watermark position: %q", w.Position)
	}
	if !w.Size.Valid() {
		return fmt.Errorf("invalid watermark size: %q", w.Size)
	}
	if w.Opacity < 0 || w.Opacity > 100 {
		return fmt.Errorf("watermark opacity must be 0..100, got %d", w.Opacity)
	}
	return nil
}

// UserChoices holds the immutable per-task processing options.
type UserChoices struct {
	SourceLang         string             `json:"source_lang"`
	TargetLang         string             `json:"target_lang"`
	TranscribeModel    TranscribeModel    `json:"transcribe_model"`
	TranslationService TranslationService `json:"translation_service"`
	BurnIn             bool               `json:"burn_in"`
	Watermark          WatermarkChoices   `json:"watermark"`
}

// TranslationRequested returns true when a translated subtitle file is wanted.
// An empty target language means transcription-only.
func (c *UserChoices) TranslationRequested() bool {
	return c.TargetLang != ""
}

// Validate checks the user choices against the closed enumerations.
func (c *UserChoices) Validate() error {
	if c.SourceLang != "auto" && !IsKnownLanguage(c.SourceLang) {
		return fmt.Errorf("unknown source language: %q", c.SourceLang)
	}
	if c.TargetLang != "" && !IsKnownLanguage(c.TargetLang) {
		return fmt.Errorf("unknown target language: %q", c.TargetLang)
	}
	if !c.TranscribeModel.Valid() {
		return fmt.Errorf("unknown transcription model: %q", c.TranscribeModel)
	}
	if c.TranslationRequested() && !c.TranslationService.Valid() {
		return fmt.Errorf("unknown translation service: %q", c.TranslationService)
	}
	return c.Watermark.Validate()
}
