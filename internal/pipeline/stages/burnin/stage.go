// Package burnin implements the subtitle burn-in render stage.
package burnin

import (
	"context"
	"fmt"
	"os"

	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/shared"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/taskerr"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = progress.StepBurnIn
	// StageName is the human-readable name for this stage.
	StageName = "Burn In"
)

// Stage renders subtitles (and the optional watermark logo) into the video in
// one ffmpeg pass. The translated subtitles are burned when they exist, the
// originals otherwise.
type Stage struct {
	shared.BaseStage
	ffmpeg *media.FFmpeg
	assets repository.AssetRepository
	store  *storage.AssetStore
}

// New creates a new burn-in stage.
func New(ffmpeg *media.FFmpeg, assets repository.AssetRepository, store *storage.AssetStore) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		ffmpeg:    ffmpeg,
		assets:    assets,
		store:     store,
	}
}

// NewConstructor returns a stage constructor for use with the pipeline builder.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps.FFmpeg, deps.Assets, deps.AssetDir)
	}
}

// Execute renders the subtitled (and optionally watermarked) video.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if state.SourcePath == "" {
		return result, core.ErrNoSource
	}

	subs, rtl, ok := s.pickSubtitles(state)
	if !ok {
		return result, taskerr.New(taskerr.CodeRenderError, "no subtitle artifact to burn in")
	}

	var logoPath string
	if state.Choices.Watermark.Enabled {
		var err error
		logoPath, err = s.resolveLogo(ctx, state.Choices.Watermark)
		if err != nil {
			return result, err
		}
	}

	filename := state.OutputBase() + ".subtitled.mp4"
	output := state.Workspace.Path(filename)

	err := s.ffmpeg.BurnIn(ctx, media.BurnInOptions{
		Input:        state.SourcePath,
		SubtitlePath: subs,
		Output:       output,
		DurationS:    state.EffectiveDurationS(),
		RTL:          rtl,
		Watermark:    state.Choices.Watermark,
		LogoPath:     logoPath,
	}, func(percent float64) {
		state.Reporter.UpdateStep(ctx, StageID, percent)
	})
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeRenderError, "rendering subtitled video", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeRenderError, "inspecting rendered video", err)
	}
	result.Artifacts = append(result.Artifacts, core.Artifact{
		Kind:      core.ArtifactSubtitledVideo,
		Path:      output,
		Filename:  filename,
		CreatedBy: StageID,
		SizeBytes: info.Size(),
	})

	result.Message = filename
	return result, nil
}

// pickSubtitles prefers the translated subtitle file over the original.
func (s *Stage) pickSubtitles(state *core.State) (path string, rtl bool, ok bool) {
	if a, found := state.Artifacts[core.ArtifactTranslatedSubs]; found {
		return a.Path, state.TargetRTL(), true
	}
	if a, found := state.Artifacts[core.ArtifactOriginalSubs]; found {
		return a.Path, state.SourceRTL(), true
	}
	return "", false, false
}

// resolveLogo looks the referenced logo up in the asset index and returns its
// absolute path for the filtergraph. Use bumps the asset's last-used stamp so
// the retention sweep keeps it.
func (s *Stage) resolveLogo(ctx context.Context, wm models.WatermarkChoices) (string, error) {
	if wm.LogoRef == "" {
		return "", taskerr.New(taskerr.CodeRenderError, "watermark enabled without logo reference")
	}

	asset, err := s.assets.GetByHash(ctx, wm.LogoRef)
	if err != nil {
		return "", taskerr.Wrap(taskerr.CodeInfrastructure, "looking up logo asset", err)
	}
	if asset == nil {
		return "", taskerr.Newf(taskerr.CodeRenderError, "logo asset %s not found", wm.LogoRef)
	}

	exists, err := s.store.Exists(asset.Path)
	if err != nil {
		return "", taskerr.Wrap(taskerr.CodeInfrastructure, "checking logo asset file", err)
	}
	if !exists {
		return "", taskerr.Newf(taskerr.CodeRenderError, "logo asset file missing for %s", wm.LogoRef)
	}

	if err := s.assets.Touch(ctx, asset.ID); err != nil {
		return "", fmt.Errorf("touching logo asset: %w", err)
	}
	return s.store.AbsolutePath(asset.Path)
}
