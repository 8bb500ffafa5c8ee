package translate

import (
	"context"
	"errors"
	"os"
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
	"github.com/voxsub/voxsub/internal/translate"
)

type nullSink struct{}

func (nullSink) UpdateProgress(context.Context, models.ULID, models.TaskProgress) error {
	return nil
}

// fakeBackend prefixes every text with the target language so tests can see
// which service translated what.
type fakeBackend struct {
	svc  models.TranslationService
	fail bool
}

func (f *fakeBackend) TranslateBatch(_ context.Context, texts []string, _, tgt string) ([]string, error) {
	if f.fail {
		return nil, errors.New("service down")
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = tgt + ":" + t
	}
	return out, nil
}

func (f *fakeBackend) Service() models.TranslationService { return f.svc }

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

func newTask(choices models.UserChoices) *models.Task {
	return &models.Task{
		BaseModel:      models.BaseModel{ID: models.NewULID()},
		UserChoices:    choices,
		InitialRequest: models.InitialRequest{Kind: models.RequestKindUpload, Filename: "talk.mp4"},
	}
}

func testEngine(primary, fallback translate.Backend) *translate.Engine {
	return translate.NewEngine(primary, fallback, translate.EngineOptions{
		BatchSize:     2,
		RetryAttempts: 0,
		RetryBase:     time.Millisecond,
	}, nil)
}

func TestTranslateStage_WritesTranslatedArtifact(t *testing.T) {
	task := newTask(models.UserChoices{TargetLang: "es", TranslationService: models.ServiceFree})
	state := newTestState(t, task)
	state.DetectedLang = "en"
	state.Cues = []subtitle.Cue{
		{Start: 0, End: time.Second, Text: "one"},
		{Start: time.Second, End: 2 * time.Second, Text: "two"},
		{Start: 2 * time.Second, End: 3 * time.Second, Text: "three"},
	}

	stage := New(testEngine(&fakeBackend{svc: models.ServiceFree}, nil))
	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 1)

	artifact := result.Artifacts[0]
	assert.Equal(t, core.ArtifactTranslatedSubs, artifact.Kind)
	assert.Equal(t, "talk.es.srt", artifact.Filename)
	assert.Equal(t, models.ServiceFree, state.ServiceUsed)
	assert.False(t, state.TranslationSkipped)

	f, err := os.Open(artifact.Path)
	require.NoError(t, err)
	defer f.Close()
	cues, err := subtitle.ParseSRT(f)
	require.NoError(t, err)
	require.Len(t, cues, 3)
	assert.Equal(t, "es:one", cues[0].Text)
	assert.Equal(t, "es:three", cues[2].Text)
}

func TestTranslateStage_SkipsWithoutTarget(t *testing.T) {
	task := newTask(models.UserChoices{})
	state := newTestState(t, task)
	state.DetectedLang = "en"
	state.Cues = []subtitle.Cue{{Start: 0, End: time.Second, Text: "one"}}

	stage := New(testEngine(&fakeBackend{svc: models.ServiceFree}, nil))
	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, state.TranslationSkipped)
	assert.Empty(t, result.Artifacts)
}

func TestTranslateStage_SkipsWhenTargetMatchesDetected(t *testing.T) {
	task := newTask(models.UserChoices{TargetLang: "en", TranslationService: models.ServiceFree})
	state := newTestState(t, task)
	state.DetectedLang = "en"
	state.Cues = []subtitle.Cue{{Start: 0, End: time.Second, Text: "one"}}

	stage := New(testEngine(&fakeBackend{svc: models.ServiceFree}, nil))
	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, state.TranslationSkipped)
	assert.Empty(t, result.Artifacts)
}

func TestTranslateStage_FallbackService(t *testing.T) {
	task := newTask(models.UserChoices{TargetLang: "es", TranslationService: models.ServicePaid})
	state := newTestState(t, task)
	state.DetectedLang = "en"
	state.Cues = []subtitle.Cue{{Start: 0, End: time.Second, Text: "one"}}

	primary := &fakeBackend{svc: models.ServicePaid, fail: true}
	fallback := &fakeBackend{svc: models.ServiceFree}
	stage := New(testEngine(primary, fallback))

	_, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, models.ServiceFree, state.ServiceUsed)
}

func TestTranslateStage_FailureCode(t *testing.T) {
	task := newTask(models.UserChoices{TargetLang: "es", TranslationService: models.ServiceFree})
	state := newTestState(t, task)
	state.DetectedLang = "en"
	state.Cues = []subtitle.Cue{{Start: 0, End: time.Second, Text: "one"}}

	stage := New(testEngine(&fakeBackend{svc: models.ServiceFree, fail: true}, nil))
	_, err := stage.Execute(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, taskerr.CodeTranslationError, taskerr.CodeOf(err))

	// A failed translation leaves no partial file behind.
	_, statErr := os.Stat(state.Workspace.Path("talk.es.srt"))
	assert.True(t, os.IsNotExist(statErr))
}
