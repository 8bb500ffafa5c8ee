package burnin

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/taskerr"
)

type nullSink struct{}

func (nullSink) UpdateProgress(context.Context, models.ULID, models.TaskProgress) error {
	return nil
}

// fakeAssets is an in-memory asset index.
type fakeAssets struct {
	byHash  map[string]*models.LogoAsset
	touched []models.ULID
}

func (f *fakeAssets) Create(_ context.Context, asset *models.LogoAsset) error {
	f.byHash[asset.ContentHash] = asset
	return nil
}

func (f *fakeAssets) GetByHash(_ context.Context, hash string) (*models.LogoAsset, error) {
	return f.byHash[hash], nil
}

func (f *fakeAssets) Touch(_ context.Context, id models.ULID) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeAssets) ListUnusedSince(context.Context, time.Time) ([]*models.LogoAsset, error) {
	return nil, nil
}

func (f *fakeAssets) Delete(context.Context, models.ULID) error { return nil }

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

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func storedLogo(t *testing.T, store *storage.AssetStore, assets *fakeAssets) *models.LogoAsset {
	t.Helper()
	data := pngBytes(t)
	info, err := store.Inspect(data)
	require.NoError(t, err)
	path, err := store.Put(info, data)
	require.NoError(t, err)

	asset := &models.LogoAsset{
		BaseModel:   models.BaseModel{ID: models.NewULID()},
		ContentHash: info.ContentHash,
		Path:        path,
		Ext:         info.Ext,
	}
	require.NoError(t, assets.Create(context.Background(), asset))
	return asset
}

func TestBurnIn_NoSubtitleArtifact(t *testing.T) {
	task := &models.Task{
		BaseModel:   models.BaseModel{ID: models.NewULID()},
		UserChoices: models.UserChoices{BurnIn: true},
	}
	state := newTestState(t, task)
	state.SourcePath = state.Workspace.SourcePath(".mp4")

	stage := New(nil, &fakeAssets{byHash: map[string]*models.LogoAsset{}}, nil)
	_, err := stage.Execute(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, taskerr.CodeRenderError, taskerr.CodeOf(err))
}

func TestBurnIn_PrefersTranslatedSubs(t *testing.T) {
	task := &models.Task{
		BaseModel:   models.BaseModel{ID: models.NewULID()},
		UserChoices: models.UserChoices{TargetLang: "ar"},
	}
	state := newTestState(t, task)
	state.DetectedLang = "en"
	state.AddArtifact(core.Artifact{Kind: core.ArtifactOriginalSubs, Path: "/ws/talk.en.srt"})
	state.AddArtifact(core.Artifact{Kind: core.ArtifactTranslatedSubs, Path: "/ws/talk.ar.srt"})

	stage := New(nil, nil, nil)
	path, rtl, ok := stage.pickSubtitles(state)
	require.True(t, ok)
	assert.Equal(t, "/ws/talk.ar.srt", path)
	assert.True(t, rtl, "arabic target selects the RTL font")
}

func TestBurnIn_FallsBackToOriginalSubs(t *testing.T) {
	task := &models.Task{BaseModel: models.BaseModel{ID: models.NewULID()}}
	state := newTestState(t, task)
	state.DetectedLang = "en"
	state.AddArtifact(core.Artifact{Kind: core.ArtifactOriginalSubs, Path: "/ws/talk.en.srt"})

	stage := New(nil, nil, nil)
	path, rtl, ok := stage.pickSubtitles(state)
	require.True(t, ok)
	assert.Equal(t, "/ws/talk.en.srt", path)
	assert.False(t, rtl)
}

func TestBurnIn_ResolveLogo(t *testing.T) {
	store, err := storage.NewAssetStore(t.TempDir())
	require.NoError(t, err)
	assets := &fakeAssets{byHash: map[string]*models.LogoAsset{}}
	asset := storedLogo(t, store, assets)

	stage := New(nil, assets, store)
	path, err := stage.resolveLogo(context.Background(), models.WatermarkChoices{
		Enabled: true,
		LogoRef: asset.ContentHash,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, path)
	require.Len(t, assets.touched, 1)
	assert.Equal(t, asset.ID, assets.touched[0])
}

func TestBurnIn_ResolveLogoUnknownRef(t *testing.T) {
	store, err := storage.NewAssetStore(t.TempDir())
	require.NoError(t, err)
	assets := &fakeAssets{byHash: map[string]*models.LogoAsset{}}

	stage := New(nil, assets, store)
	_, err = stage.resolveLogo(context.Background(), models.WatermarkChoices{
		Enabled: true,
		LogoRef: "deadbeef",
	})
	require.Error(t, err)
	assert.Equal(t, taskerr.CodeRenderError, taskerr.CodeOf(err))
}

func TestBurnIn_ResolveLogoMissingRef(t *testing.T) {
	stage := New(nil, &fakeAssets{byHash: map[string]*models.LogoAsset{}}, nil)
	_, err := stage.resolveLogo(context.Background(), models.WatermarkChoices{Enabled: true})
	require.Error(t, err)
	assert.Equal(t, taskerr.CodeRenderError, taskerr.CodeOf(err))
}
