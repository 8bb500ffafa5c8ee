// Package acquire implements the source acquisition pipeline stage.
package acquire

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/shared"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/taskerr"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = progress.StepAcquire
	// StageName is the human-readable name for this stage.
	StageName = "Acquire Source"
)

// Stage brings the source media into the task workspace: a remote download
// for URL submissions, a copy out of the intake directory for uploads.
type Stage struct {
	shared.BaseStage
	downloader *media.Downloader
	intake     *storage.IntakeStore
}

// New creates a new acquire stage.
func New(downloader *media.Downloader, intake *storage.IntakeStore) *Stage {
	return &Stage{
		BaseStage:  shared.NewBaseStage(StageID, StageName),
		downloader: downloader,
		intake:     intake,
	}
}

// NewConstructor returns a stage constructor for use with the pipeline builder.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps.Downloader, deps.Intake)
	}
}

// Execute acquires the source file and records it in the state.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	var (
		sourcePath string
		err        error
	)
	switch state.Request.Kind {
	case models.RequestKindUpload:
		sourcePath, err = s.moveUpload(state)
	case models.RequestKindRemoteURL, models.RequestKindDownloadOnly:
		sourcePath, err = s.download(ctx, state)
	default:
		return result, fmt.Errorf("unknown request kind %q", state.Request.Kind)
	}
	if err != nil {
		return result, err
	}
	if sourcePath == "" {
		return result, core.ErrNoSource
	}

	state.SourcePath = sourcePath
	result.Message = filepath.Base(sourcePath)
	return result, nil
}

// moveUpload copies the intake file into the workspace. The intake copy is
// left in place so a redelivered job can re-run; the intake sweep removes it.
func (s *Stage) moveUpload(state *core.State) (string, error) {
	src, err := s.intake.AbsolutePath(filepath.Join(state.TaskID(), state.Request.Filename))
	if err != nil {
		return "", taskerr.Wrap(taskerr.CodeDownloadFailed, "locating uploaded file", err)
	}

	dest := state.Workspace.SourcePath(filepath.Ext(state.Request.Filename))
	if err := copyFile(src, dest); err != nil {
		return "", taskerr.Wrap(taskerr.CodeDownloadFailed, "staging uploaded file", err)
	}
	return dest, nil
}

// download fetches the remote URL into the workspace. The downloader retries
// transient failures itself; what escapes here is terminal.
func (s *Stage) download(ctx context.Context, state *core.State) (string, error) {
	path, err := s.downloader.Download(ctx, state.Request.URL, state.Workspace.Dir(), func(percent float64) {
		state.Reporter.UpdateStep(ctx, StageID, percent)
	})
	if err != nil {
		return "", taskerr.Wrap(taskerr.CodeDownloadFailed, "downloading remote media", err)
	}
	return path, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
