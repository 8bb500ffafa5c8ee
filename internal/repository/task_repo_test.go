package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTaskTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Task{})
	require.NoError(t, err)

	return db
}

func newTaskRepoForTest(t *testing.T) (*taskRepo, context.Context) {
	t.Helper()
	db := setupTaskTestDB(t)
	return NewTaskRepository(db, 24*time.Hour, 24*time.Hour), context.Background()
}

func newTestTask() *models.Task {
	return &models.Task{
		InitialRequest: models.InitialRequest{
			Kind:     models.RequestKindUpload,
			Filename: "talk.mp4",
		},
		UserChoices: models.UserChoices{
			SourceLang:      "auto",
			TargetLang:      "es",
			TranscribeModel: models.ModelBase,
		},
	}
}

func TestTaskRepo_CreateAndGet(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	assert.False(t, task.ID.IsZero())
	assert.Equal(t, models.TaskStatePending, task.State)

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.RequestKindUpload, found.InitialRequest.Kind)
	assert.Equal(t, "es", found.UserChoices.TargetLang)
}

func TestTaskRepo_GetByID_NotFound(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	found, err := repo.GetByID(ctx, models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestTaskRepo_MarkRunning(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))

	require.NoError(t, repo.MarkRunning(ctx, task.ID))

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateProgress, found.State)
}

func TestTaskRepo_UpdateProgress_Monotonic(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))

	require.NoError(t, repo.UpdateProgress(ctx, task.ID, models.TaskProgress{OverallPercent: 40}))

	// A lower report never moves the observed percent backwards.
	require.NoError(t, repo.UpdateProgress(ctx, task.ID, models.TaskProgress{OverallPercent: 25}))

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(40), found.Progress.OverallPercent)

	require.NoError(t, repo.UpdateProgress(ctx, task.ID, models.TaskProgress{OverallPercent: 60}))
	found, err = repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(60), found.Progress.OverallPercent)
}

func TestTaskRepo_UpdateProgress_IgnoredAfterTerminal(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))
	require.NoError(t, repo.MarkSuccess(ctx, task.ID, &models.TaskResult{}))

	// Late progress reports from a finishing worker are dropped.
	require.NoError(t, repo.UpdateProgress(ctx, task.ID, models.TaskProgress{OverallPercent: 50}))

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateSuccess, found.State)
	assert.Equal(t, float64(100), found.Progress.OverallPercent)
}

func TestTaskRepo_SetSourceMetadata(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))

	meta := &models.SourceMetadata{
		DurationS:  93.5,
		Width:      1920,
		Height:     1080,
		FPS:        25,
		CodecVideo: "h264",
		CodecAudio: "aac",
		SizeBytes:  123456,
	}
	require.NoError(t, repo.SetSourceMetadata(ctx, task.ID, meta))

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, found.SourceMetadata)
	assert.Equal(t, 93.5, found.SourceMetadata.DurationS)
	assert.Equal(t, "h264", found.SourceMetadata.CodecVideo)
	assert.Equal(t, int64(123456), found.SourceMetadata.SizeBytes)
}

func TestTaskRepo_SetSourceMetadata_IgnoredAfterTerminal(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))
	require.NoError(t, repo.MarkSuccess(ctx, task.ID, &models.TaskResult{}))

	require.NoError(t, repo.SetSourceMetadata(ctx, task.ID, &models.SourceMetadata{DurationS: 10}))

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, found.SourceMetadata)
}

func TestTaskRepo_MarkSuccess(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))

	result := &models.TaskResult{
		Files:        models.ResultFiles{OriginalSubs: "abc/original.srt"},
		DetectedLang: "en",
		ModelUsed:    "base",
	}
	require.NoError(t, repo.MarkSuccess(ctx, task.ID, result))

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateSuccess, found.State)
	require.NotNil(t, found.Result)
	assert.Equal(t, "abc/original.srt", found.Result.Files.OriginalSubs)
	assert.NotNil(t, found.ExpiresAt)
	assert.NotNil(t, found.ArtifactExpiresAt)
}

func TestTaskRepo_TerminalIsWriteOnce(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))
	require.NoError(t, repo.MarkSuccess(ctx, task.ID, &models.TaskResult{}))

	err := repo.MarkFailure(ctx, task.ID, &models.TaskError{Code: "Infrastructure"}, nil)
	assert.ErrorIs(t, err, models.ErrTerminalState)

	err = repo.MarkSuccess(ctx, task.ID, &models.TaskResult{})
	assert.ErrorIs(t, err, models.ErrTerminalState)
}

func TestTaskRepo_MarkFailure_WithPartialResult(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))

	// Render failed after subtitles were already published.
	partial := &models.TaskResult{
		Files: models.ResultFiles{
			OriginalSubs:   "abc/original.srt",
			TranslatedSubs: "abc/translated.srt",
		},
	}
	taskErr := &models.TaskError{Code: "RenderError", Message: "filtergraph failed"}
	require.NoError(t, repo.MarkFailure(ctx, task.ID, taskErr, partial))

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateFailure, found.State)
	require.NotNil(t, found.Error)
	assert.Equal(t, "RenderError", found.Error.Code)
	require.NotNil(t, found.Result)
	assert.Equal(t, "abc/translated.srt", found.Result.Files.TranslatedSubs)
}

func TestTaskRepo_SetChainedTaskID(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	task.InitialRequest.Kind = models.RequestKindDownloadOnly
	task.InitialRequest.ProcessAfter = true
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))
	require.NoError(t, repo.MarkSuccess(ctx, task.ID, &models.TaskResult{}))

	chained := models.NewULID()
	require.NoError(t, repo.SetChainedTaskID(ctx, task.ID, chained))

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, chained.String(), found.Result.ChainedTaskID)

	// Set at most once.
	err = repo.SetChainedTaskID(ctx, task.ID, models.NewULID())
	assert.Error(t, err)
}

func TestTaskRepo_ArtifactExpirySweep(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))
	require.NoError(t, repo.MarkSuccess(ctx, task.ID, &models.TaskResult{}))

	// Nothing expired yet.
	expired, err := repo.ListArtifactExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, expired)

	// Everything is expired from tomorrow's point of view.
	expired, err = repo.ListArtifactExpired(ctx, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, task.ID, expired[0].ID)

	require.NoError(t, repo.ClearArtifactExpiry(ctx, task.ID))
	expired, err = repo.ListArtifactExpired(ctx, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestTaskRepo_DeleteExpiredRecords(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	task := newTestTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkRunning(ctx, task.ID))
	require.NoError(t, repo.MarkSuccess(ctx, task.ID, &models.TaskResult{}))

	// Not yet expired.
	deleted, err := repo.DeleteExpiredRecords(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	deleted, err = repo.DeleteExpiredRecords(ctx, time.Now().Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestTaskRepo_CountActive(t *testing.T) {
	repo, ctx := newTaskRepoForTest(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newTestTask()))
	}
	done := newTestTask()
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.MarkRunning(ctx, done.ID))
	require.NoError(t, repo.MarkSuccess(ctx, done.ID, &models.TaskResult{}))

	count, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
