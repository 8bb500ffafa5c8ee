package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/storage"
)

func TestRunner_ProcessesQueuedJobs(t *testing.T) {
	db := newSchedulerDB(t)
	queue := repository.NewQueueRepository(db)
	ctx := context.Background()

	handler := &mockJobHandler{executeResult: "done"}
	executor := NewExecutor(queue)
	executor.RegisterHandler(models.JobTypeArtifactSweep, handler)

	job := models.NewCleanupJob(models.JobTypeArtifactSweep)
	require.NoError(t, queue.Enqueue(ctx, job))

	runner := NewRunner(queue, executor).WithConfig(RunnerConfig{
		WorkerCount:  1,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop()

	require.Eventually(t, func() bool {
		stored, err := queue.GetByID(ctx, job.ID)
		return err == nil && stored.Status == models.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, handler.executeCalled)
}

func TestRunner_ProcessingQueueHasPriority(t *testing.T) {
	db := newSchedulerDB(t)
	queue := repository.NewQueueRepository(db)
	tasks := repository.NewTaskRepository(db, 0, 0)
	ctx := context.Background()

	task := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindRemoteURL, URL: "https://example.com/talk"},
	}
	require.NoError(t, tasks.Create(ctx, task))

	seen := make(chan models.QueueName, 2)
	record := jobHandlerFunc(func(ctx context.Context, job *models.QueueJob) (string, error) {
		seen <- job.Queue
		return "", nil
	})
	executor := NewExecutor(queue)
	executor.RegisterHandler(models.JobTypeProcessTask, record)
	executor.RegisterHandler(models.JobTypeRecordSweep, record)

	// Cleanup enqueued first, processing second. A single worker must still
	// pick the processing job first.
	require.NoError(t, queue.Enqueue(ctx, models.NewCleanupJob(models.JobTypeRecordSweep)))
	require.NoError(t, queue.Enqueue(ctx, models.NewProcessingJob(task.ID, models.JobTypeProcessTask, "")))

	runner := NewRunner(queue, executor).WithConfig(RunnerConfig{
		WorkerCount:  1,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop()

	var order []models.QueueName
	for i := 0; i < 2; i++ {
		select {
		case q := <-seen:
			order = append(order, q)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs to run")
		}
	}
	assert.Equal(t, []models.QueueName{models.QueueProcessing, models.QueueCleanup}, order)
}

// jobHandlerFunc adapts a function to the JobHandler interface.
type jobHandlerFunc func(ctx context.Context, job *models.QueueJob) (string, error)

func (f jobHandlerFunc) Execute(ctx context.Context, job *models.QueueJob) (string, error) {
	return f(ctx, job)
}

func TestRunner_ReclaimSettlesAbandonedTask(t *testing.T) {
	db := newSchedulerDB(t)
	queue := repository.NewQueueRepository(db)
	tasks := repository.NewTaskRepository(db, 0, 0)
	ctx := context.Background()

	task := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindRemoteURL, URL: "https://example.com/talk"},
	}
	require.NoError(t, tasks.Create(ctx, task))
	require.NoError(t, tasks.MarkRunning(ctx, task.ID))

	// Simulate a worker that died holding its last attempt.
	job := models.NewProcessingJob(task.ID, models.JobTypeProcessTask, "")
	job.MaxAttempts = 1
	require.NoError(t, queue.Enqueue(ctx, job))
	claimed, err := queue.Acquire(ctx, models.QueueProcessing, "dead-worker")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	stale := models.Now().Add(-time.Hour)
	require.NoError(t, db.Model(claimed).Update("locked_at", stale).Error)

	runner := NewRunner(queue, NewExecutor(queue)).
		WithTaskRepository(tasks).
		WithConfig(RunnerConfig{LockTimeout: time.Minute})
	runner.ctx = ctx
	runner.reclaimStale()

	storedJob, err := queue.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, storedJob.Status)

	storedTask, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateFailure, storedTask.State)
	require.NotNil(t, storedTask.Error)
	assert.Equal(t, "Infrastructure", storedTask.Error.Code)
}

func TestScheduler_EnqueuesSweepRound(t *testing.T) {
	db := newSchedulerDB(t)
	queue := repository.NewQueueRepository(db)
	ctx := context.Background()

	s := NewScheduler(queue, time.Hour)
	s.enqueueSweeps(ctx)

	depth, err := queue.Depth(ctx, models.QueueCleanup)
	require.NoError(t, err)
	assert.Equal(t, int64(len(sweepJobTypes)), depth)

	// A second round is skipped while the first is still queued.
	s.enqueueSweeps(ctx)
	depth, err = queue.Depth(ctx, models.QueueCleanup)
	require.NoError(t, err)
	assert.Equal(t, int64(len(sweepJobTypes)), depth)
}

func TestArtifactSweepHandler(t *testing.T) {
	db := newSchedulerDB(t)
	tasks := repository.NewTaskRepository(db, 0, 0)
	ctx := context.Background()

	store, err := storage.NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	task := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindRemoteURL, URL: "https://example.com/talk"},
	}
	require.NoError(t, tasks.Create(ctx, task))
	require.NoError(t, tasks.MarkRunning(ctx, task.ID))
	// Zero artifact retention means the files expire immediately.
	require.NoError(t, tasks.MarkSuccess(ctx, task.ID, &models.TaskResult{}))

	key, err := store.PublishReader(task.ID.String(), "talk.en.srt", strings.NewReader("1\n"))
	require.NoError(t, err)

	handler := NewArtifactSweepHandler(tasks, store, nil)
	result, err := handler.Execute(ctx, models.NewCleanupJob(models.JobTypeArtifactSweep))
	require.NoError(t, err)
	assert.Contains(t, result, "1 tasks")

	exists, err := store.Exists(key)
	require.NoError(t, err)
	assert.False(t, exists)

	// The expiry is cleared so the next sweep does not retouch the task.
	expired, err := tasks.ListArtifactExpired(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestAssetSweepHandler(t *testing.T) {
	handler := NewAssetSweepHandler(assetSweeperFunc(func(ctx context.Context, cutoff time.Time) (int, error) {
		assert.True(t, cutoff.Before(time.Now()))
		return 3, nil
	}), 24*time.Hour)

	result, err := handler.Execute(context.Background(), models.NewCleanupJob(models.JobTypeAssetSweep))
	require.NoError(t, err)
	assert.Contains(t, result, "3 unused assets")
}

// assetSweeperFunc adapts a function to the AssetSweeper interface.
type assetSweeperFunc func(ctx context.Context, cutoff time.Time) (int, error)

func (f assetSweeperFunc) SweepUnused(ctx context.Context, cutoff time.Time) (int, error) {
	return f(ctx, cutoff)
}

func TestRecordSweepHandler(t *testing.T) {
	db := newSchedulerDB(t)
	require.NoError(t, db.AutoMigrate(&models.TokenRedemption{}))
	tasks := repository.NewTaskRepository(db, 0, 0)
	tokens := repository.NewTokenRepository(db)
	ctx := context.Background()

	task := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindRemoteURL, URL: "https://example.com/talk"},
	}
	require.NoError(t, tasks.Create(ctx, task))
	require.NoError(t, tasks.MarkRunning(ctx, task.ID))
	// Zero record retention means the row expires immediately.
	require.NoError(t, tasks.MarkSuccess(ctx, task.ID, &models.TaskResult{}))

	handler := NewRecordSweepHandler(tasks, tokens)
	result, err := handler.Execute(ctx, models.NewCleanupJob(models.JobTypeRecordSweep))
	require.NoError(t, err)
	assert.Contains(t, result, "1 task records")

	stored, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestWorkspaceSweepHandler(t *testing.T) {
	db := newSchedulerDB(t)
	tasks := repository.NewTaskRepository(db, 0, 0)
	ctx := context.Background()

	workspaces, err := storage.NewWorkspaces("", 0, t.TempDir(), nil)
	require.NoError(t, err)
	intake, err := storage.NewIntakeStore(t.TempDir())
	require.NoError(t, err)

	active := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindRemoteURL, URL: "https://example.com/a"},
	}
	require.NoError(t, tasks.Create(ctx, active))
	finished := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindRemoteURL, URL: "https://example.com/b"},
	}
	require.NoError(t, tasks.Create(ctx, finished))
	require.NoError(t, tasks.MarkRunning(ctx, finished.ID))
	require.NoError(t, tasks.MarkSuccess(ctx, finished.ID, &models.TaskResult{}))

	activeWS, err := workspaces.Acquire(active.ID.String())
	require.NoError(t, err)
	finishedWS, err := workspaces.Acquire(finished.ID.String())
	require.NoError(t, err)

	_, err = intake.Store(active.ID.String(), "a.mp4", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = intake.Store(finished.ID.String(), "b.mp4", strings.NewReader("x"))
	require.NoError(t, err)

	handler := NewWorkspaceSweepHandler(tasks, workspaces, intake)
	result, err := handler.Execute(ctx, models.NewCleanupJob(models.JobTypeWorkspaceSweep))
	require.NoError(t, err)
	assert.Contains(t, result, "1 workspaces, 1 intake dirs")

	_, err = os.Stat(activeWS.Dir())
	assert.NoError(t, err, "active task keeps its workspace")
	_, err = os.Stat(finishedWS.Dir())
	assert.True(t, os.IsNotExist(err), "finished task workspace is reaped")

	activeIntake, err := intake.AbsolutePath(filepath.Join(active.ID.String(), "a.mp4"))
	require.NoError(t, err)
	_, err = os.Stat(activeIntake)
	assert.NoError(t, err, "active task keeps its intake file")
}
