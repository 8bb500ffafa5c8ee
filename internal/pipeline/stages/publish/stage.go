// Package publish implements the artifact publication pipeline stage.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/shared"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/taskerr"
	"github.com/voxsub/voxsub/internal/util"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = progress.StepPublish
	// StageName is the human-readable name for this stage.
	StageName = "Publish"
)

// publishOrder fixes the order artifacts move to the store so partially
// published results are always a prefix of the full set.
var publishOrder = []core.ArtifactKind{
	core.ArtifactOriginalSubs,
	core.ArtifactTranslatedSubs,
	core.ArtifactSubtitledVideo,
	core.ArtifactRawDownload,
}

// Stage moves finished workspace files into the durable artifact store and
// records their keys on the state.
type Stage struct {
	shared.BaseStage
	store *storage.ArtifactStore
}

// New creates a new publish stage.
func New(store *storage.ArtifactStore) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		store:     store,
	}
}

// NewConstructor returns a stage constructor for use with the pipeline builder.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps.Artifacts)
	}
}

// Execute publishes every artifact the earlier stages produced.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	s.addRawDownload(state)
	if len(state.Artifacts) == 0 {
		return result, taskerr.New(taskerr.CodeInfrastructure, "nothing to publish")
	}

	published := 0
	for _, kind := range publishOrder {
		artifact, ok := state.Artifacts[kind]
		if !ok {
			continue
		}
		key, err := s.store.Publish(state.TaskID(), artifact.Filename, artifact.Path)
		if err != nil {
			return result, taskerr.Wrap(taskerr.CodeInfrastructure,
				fmt.Sprintf("publishing %s", kind), err)
		}
		setResultFile(&state.Published, kind, key)
		published++
		state.Reporter.UpdateStep(ctx, StageID, float64(published)/float64(len(state.Artifacts))*100)
	}

	result.Message = fmt.Sprintf("%d artifacts", published)
	return result, nil
}

// addRawDownload turns the acquired source file into the published artifact
// of a download-only run.
func (s *Stage) addRawDownload(state *core.State) {
	if state.Request.Kind != models.RequestKindDownloadOnly || state.SourcePath == "" {
		return
	}
	if _, ok := state.Artifacts[core.ArtifactRawDownload]; ok {
		return
	}

	filename := state.Request.Filename
	if filename == "" {
		filename = filepath.Base(state.SourcePath)
	}
	filename = util.SanitizeFilename(filename)

	var size int64
	if info, err := os.Stat(state.SourcePath); err == nil {
		size = info.Size()
	}
	state.AddArtifact(core.Artifact{
		Kind:      core.ArtifactRawDownload,
		Path:      state.SourcePath,
		Filename:  filename,
		CreatedBy: StageID,
		SizeBytes: size,
	})
}

func setResultFile(files *models.ResultFiles, kind core.ArtifactKind, key string) {
	switch kind {
	case core.ArtifactOriginalSubs:
		files.OriginalSubs = key
	case core.ArtifactTranslatedSubs:
		files.TranslatedSubs = key
	case core.ArtifactSubtitledVideo:
		files.SubtitledVideo = key
	case core.ArtifactRawDownload:
		files.RawDownload = key
	}
}
