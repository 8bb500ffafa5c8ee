// Package transcribe turns extracted audio into timed text segments. Local
// transcription shells out to whisper-cli; the remote variant calls a hosted
// transcription API.
package transcribe

import (
	"context"
	"errors"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/subtitle"
)

// Request describes one transcription run.
type Request struct {
	AudioPath string
	// SourceLang is the ISO code of the spoken language, or "auto" for
	// detection.
	SourceLang string
	Model      models.TranscribeModel
}

// Result is the transcription output.
type Result struct {
	Segments []subtitle.Cue
	// DetectedLang is the language the backend detected (or was told).
	DetectedLang string
	// ModelUsed records the model that actually ran, which may be smaller
	// than requested when the downgrade ladder applied.
	ModelUsed models.TranscribeModel
}

// Backend is a transcription engine variant.
type Backend interface {
	// Transcribe runs the engine over the request's audio. OnProgress
	// receives percentages when the backend can estimate them.
	Transcribe(ctx context.Context, req Request, onProgress func(percent float64)) (*Result, error)
}

// ErrModelUnavailable is returned when no usable model file exists for the
// request.
var ErrModelUnavailable = errors.New("transcription model unavailable")

// Engine dispatches transcription requests to the backend matching the
// requested model.
type Engine struct {
	local  Backend
	remote Backend
}

// NewEngine creates an Engine over the two backend variants. Either may be
// nil when not configured.
func NewEngine(local, remote Backend) *Engine {
	return &Engine{local: local, remote: remote}
}

// Transcribe routes the request to the local or remote backend.
func (e *Engine) Transcribe(ctx context.Context, req Request, onProgress func(percent float64)) (*Result, error) {
	if req.Model == models.ModelRemoteAPI {
		if e.remote == nil {
			return nil, errors.New("remote transcription backend not configured")
		}
		return e.remote.Transcribe(ctx, req, onProgress)
	}
	if e.local == nil {
		return nil, errors.New("local transcription backend not configured")
	}
	return e.local.Transcribe(ctx, req, onProgress)
}
