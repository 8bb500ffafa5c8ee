package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/subtitle"
	"github.com/voxsub/voxsub/internal/taskerr"
	"github.com/voxsub/voxsub/internal/transcribe"
)

type nullSink struct{}

func (nullSink) UpdateProgress(context.Context, models.ULID, models.TaskProgress) error {
	return nil
}

// fakeBackend returns a canned result and records the request it saw.
type fakeBackend struct {
	result *transcribe.Result
	err    error
	got    transcribe.Request
}

func (f *fakeBackend) Transcribe(_ context.Context, req transcribe.Request, onProgress func(float64)) (*transcribe.Result, error) {
	f.got = req
	if onProgress != nil {
		onProgress(50)
	}
	return f.result, f.err
}

func newTestState(t *testing.T, task *models.Task) *core.State {
	t.Helper()
	manager, err := storage.NewWorkspaces("", 0, t.TempDir(), nil)
	require.NoError(t, err)
	ws, err := manager.Acquire(task.ID.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Release() })

	reporter := progress.NewReporter(task.ID, nullSink{}, progress.DefaultSteps, nil)
	return core.NewState(task, ws, reporter)
}

func TestTranscribeStage_RecordsResult(t *testing.T) {
	backend := &fakeBackend{result: &transcribe.Result{
		Segments: []subtitle.Cue{
			{Start: 0, End: time.Second, Text: "hello"},
		},
		DetectedLang: "en",
		ModelUsed:    models.ModelSmall,
	}}

	task := &models.Task{
		BaseModel:   models.BaseModel{ID: models.NewULID()},
		UserChoices: models.UserChoices{SourceLang: "auto", TranscribeModel: models.ModelSmall},
	}
	state := newTestState(t, task)
	state.AudioPath = "/tmp/audio.wav"

	stage := New(transcribe.NewEngine(backend, nil))
	_, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, "en", state.DetectedLang)
	assert.Equal(t, models.ModelSmall, state.ModelUsed)
	assert.Len(t, state.Cues, 1)
	assert.Equal(t, "auto", backend.got.SourceLang)
	assert.Equal(t, "/tmp/audio.wav", backend.got.AudioPath)
}

func TestTranscribeStage_EmptySourceLangDefaultsToAuto(t *testing.T) {
	backend := &fakeBackend{result: &transcribe.Result{
		Segments:     []subtitle.Cue{{Start: 0, End: time.Second, Text: "x"}},
		DetectedLang: "en",
		ModelUsed:    models.ModelBase,
	}}

	task := &models.Task{
		BaseModel:   models.BaseModel{ID: models.NewULID()},
		UserChoices: models.UserChoices{TranscribeModel: models.ModelBase},
	}
	state := newTestState(t, task)
	state.AudioPath = "/tmp/audio.wav"

	stage := New(transcribe.NewEngine(backend, nil))
	_, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "auto", backend.got.SourceLang)
}

func TestTranscribeStage_NoSpeech(t *testing.T) {
	backend := &fakeBackend{result: &transcribe.Result{DetectedLang: "en", ModelUsed: models.ModelBase}}

	task := &models.Task{
		BaseModel:   models.BaseModel{ID: models.NewULID()},
		UserChoices: models.UserChoices{TranscribeModel: models.ModelBase},
	}
	state := newTestState(t, task)
	state.AudioPath = "/tmp/audio.wav"

	stage := New(transcribe.NewEngine(backend, nil))
	_, err := stage.Execute(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, taskerr.CodeTranscriptionError, taskerr.CodeOf(err))
	assert.ErrorIs(t, err, core.ErrNoSegments)
}

func TestTranscribeStage_ModelUnavailable(t *testing.T) {
	backend := &fakeBackend{err: transcribe.ErrModelUnavailable}

	task := &models.Task{
		BaseModel:   models.BaseModel{ID: models.NewULID()},
		UserChoices: models.UserChoices{TranscribeModel: models.ModelLarge},
	}
	state := newTestState(t, task)
	state.AudioPath = "/tmp/audio.wav"

	stage := New(transcribe.NewEngine(backend, nil))
	_, err := stage.Execute(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, taskerr.CodeTranscriptionError, taskerr.CodeOf(err))
	assert.ErrorIs(t, err, transcribe.ErrModelUnavailable)
}

func TestTranscribeStage_MissingAudio(t *testing.T) {
	task := &models.Task{BaseModel: models.BaseModel{ID: models.NewULID()}}
	state := newTestState(t, task)

	stage := New(transcribe.NewEngine(&fakeBackend{err: errors.New("unused")}, nil))
	_, err := stage.Execute(context.Background(), state)
	assert.ErrorIs(t, err, core.ErrNoSource)
}
