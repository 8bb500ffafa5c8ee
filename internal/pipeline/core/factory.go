package core

import (
	"log/slog"

	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/transcribe"
	"github.com/voxsub/voxsub/internal/translate"
)

// Dependencies bundles all dependencies needed by pipeline stages.
// This reduces parameter count and makes dependency injection cleaner.
type Dependencies struct {
	Tasks  repository.TaskRepository
	Assets repository.AssetRepository

	Intake    *storage.IntakeStore
	Artifacts *storage.ArtifactStore
	AssetDir  *storage.AssetStore

	Downloader  *media.Downloader
	Prober      *media.Prober
	FFmpeg      *media.FFmpeg
	Transcriber *transcribe.Engine
	// Translator is the free-first translation engine. PaidTranslator is
	// the paid-first variant for tasks that chose the paid service; nil
	// when no paid backend is configured.
	Translator     *translate.Engine
	PaidTranslator *translate.Engine

	Logger *slog.Logger
}

// StageConstructor is a function that creates a stage given dependencies.
type StageConstructor func(deps *Dependencies) Stage
