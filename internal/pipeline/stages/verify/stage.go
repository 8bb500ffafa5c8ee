// Package verify implements the output verification pipeline stage.
package verify

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/pipeline/shared"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/taskerr"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = progress.StepVerify
	// StageName is the human-readable name for this stage.
	StageName = "Verify Output"
)

// Codecs the published video must carry for broad playback support.
const (
	wantVideoCodec = "h264"
	wantAudioCodec = "aac"
)

// Stage probes the rendered video and re-encodes it when the render produced
// something players choke on.
type Stage struct {
	shared.BaseStage
	prober *media.Prober
	ffmpeg *media.FFmpeg
}

// New creates a new verify stage.
func New(prober *media.Prober, ffmpeg *media.FFmpeg) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		prober:    prober,
		ffmpeg:    ffmpeg,
	}
}

// NewConstructor returns a stage constructor for use with the pipeline builder.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps.Prober, deps.FFmpeg)
	}
}

// Execute checks the subtitled video artifact and normalizes it if needed.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	artifact, ok := state.Artifacts[core.ArtifactSubtitledVideo]
	if !ok {
		result.Message = "no rendered video to verify"
		return result, nil
	}

	meta, err := s.prober.Probe(ctx, artifact.Path)
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeFormatError, "probing rendered video", err)
	}
	if meta.DurationS <= 0 {
		return result, taskerr.New(taskerr.CodeFormatError, "rendered video has zero duration")
	}

	if codecOK(meta.CodecVideo, wantVideoCodec) && codecOK(meta.CodecAudio, wantAudioCodec) {
		result.Message = fmt.Sprintf("%s/%s ok", meta.CodecVideo, meta.CodecAudio)
		return result, nil
	}

	state.Reporter.Log(ctx, fmt.Sprintf("re-encoding output: got %s/%s, want %s/%s",
		meta.CodecVideo, meta.CodecAudio, wantVideoCodec, wantAudioCodec))

	fixed := artifact.Path + ".norm.mp4"
	err = s.ffmpeg.Reencode(ctx, artifact.Path, fixed, meta.DurationS, func(percent float64) {
		state.Reporter.UpdateStep(ctx, StageID, percent)
	})
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeFormatError, "normalizing rendered video", err)
	}
	if err := os.Rename(fixed, artifact.Path); err != nil {
		return result, taskerr.Wrap(taskerr.CodeFormatError, "replacing rendered video", err)
	}

	info, err := os.Stat(artifact.Path)
	if err != nil {
		return result, taskerr.Wrap(taskerr.CodeFormatError, "inspecting normalized video", err)
	}
	artifact.SizeBytes = info.Size()
	state.AddArtifact(artifact)

	result.Message = "re-encoded to h264/aac"
	return result, nil
}

func codecOK(got, want string) bool {
	return strings.EqualFold(got, want)
}
