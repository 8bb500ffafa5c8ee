package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSchedulerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Task{}, &models.QueueJob{}))
	return db
}

// mockJobHandler implements JobHandler for testing.
type mockJobHandler struct {
	executeResult string
	executeErr    error
	executeCalled bool
}

func (m *mockJobHandler) Execute(ctx context.Context, job *models.QueueJob) (string, error) {
	m.executeCalled = true
	return m.executeResult, m.executeErr
}

// mockPipeline implements TaskPipeline for testing. settle simulates the
// real processor settling the task record before returning.
type mockPipeline struct {
	processErr    error
	processCalled bool
	settle        func(ctx context.Context, task *models.Task)
}

func (m *mockPipeline) Process(ctx context.Context, task *models.Task) error {
	m.processCalled = true
	if m.settle != nil {
		m.settle(ctx, task)
	}
	return m.processErr
}

// mockChainer implements TaskChainer for testing.
type mockChainer struct {
	chained *models.Task
	err     error
	called  bool
}

func (m *mockChainer) EnqueueChained(ctx context.Context, parent *models.Task) (*models.Task, error) {
	m.called = true
	return m.chained, m.err
}

func acquireJob(t *testing.T, queue repository.QueueRepository, name models.QueueName) *models.QueueJob {
	t.Helper()
	job, err := queue.Acquire(context.Background(), name, "test-worker")
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestExecutor_DispatchesToHandler(t *testing.T) {
	db := newSchedulerDB(t)
	queue := repository.NewQueueRepository(db)
	ctx := context.Background()

	handler := &mockJobHandler{executeResult: "done"}
	executor := NewExecutor(queue)
	executor.RegisterHandler(models.JobTypeArtifactSweep, handler)

	require.NoError(t, queue.Enqueue(ctx, models.NewCleanupJob(models.JobTypeArtifactSweep)))
	job := acquireJob(t, queue, models.QueueCleanup)

	require.NoError(t, executor.Execute(ctx, job))
	assert.True(t, handler.executeCalled)

	stored, err := queue.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Empty(t, stored.LockedBy)
}

func TestExecutor_FailureSchedulesRetry(t *testing.T) {
	db := newSchedulerDB(t)
	queue := repository.NewQueueRepository(db)
	ctx := context.Background()

	handler := &mockJobHandler{executeErr: errors.New("transient")}
	executor := NewExecutor(queue)
	executor.RegisterHandler(models.JobTypeAssetSweep, handler)

	require.NoError(t, queue.Enqueue(ctx, models.NewCleanupJob(models.JobTypeAssetSweep)))
	job := acquireJob(t, queue, models.QueueCleanup)

	require.NoError(t, executor.Execute(ctx, job))

	stored, err := queue.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusScheduled, stored.Status)
	assert.Equal(t, "transient", stored.LastError)
	require.NotNil(t, stored.NextRunAt)
}

func TestExecutor_ExhaustedAttemptsStayFailed(t *testing.T) {
	db := newSchedulerDB(t)
	queue := repository.NewQueueRepository(db)
	ctx := context.Background()

	handler := &mockJobHandler{executeErr: errors.New("permanent")}
	executor := NewExecutor(queue)
	executor.RegisterHandler(models.JobTypeAssetSweep, handler)

	job := models.NewCleanupJob(models.JobTypeAssetSweep)
	job.MaxAttempts = 1
	require.NoError(t, queue.Enqueue(ctx, job))

	claimed := acquireJob(t, queue, models.QueueCleanup)
	require.NoError(t, executor.Execute(ctx, claimed))

	stored, err := queue.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
}

func TestExecutor_UnknownJobType(t *testing.T) {
	db := newSchedulerDB(t)
	queue := repository.NewQueueRepository(db)
	ctx := context.Background()

	executor := NewExecutor(queue)

	require.NoError(t, queue.Enqueue(ctx, models.NewCleanupJob(models.JobTypeRecordSweep)))
	job := acquireJob(t, queue, models.QueueCleanup)

	err := executor.Execute(ctx, job)
	require.Error(t, err)

	stored, getErr := queue.GetByID(ctx, job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
}

func TestProcessTaskHandler_RunsPipeline(t *testing.T) {
	db := newSchedulerDB(t)
	tasks := repository.NewTaskRepository(db, 0, 0)
	ctx := context.Background()

	task := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindRemoteURL, URL: "https://example.com/talk"},
	}
	require.NoError(t, tasks.Create(ctx, task))

	pipeline := &mockPipeline{
		settle: func(ctx context.Context, task *models.Task) {
			_ = tasks.MarkSuccess(ctx, task.ID, &models.TaskResult{})
		},
	}
	handler := NewProcessTaskHandler(tasks, pipeline)

	job := models.NewProcessingJob(task.ID, models.JobTypeProcessTask, "")
	result, err := handler.Execute(ctx, job)
	require.NoError(t, err)
	assert.Contains(t, result, task.ID.String())
	assert.True(t, pipeline.processCalled)

	stored, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateSuccess, stored.State)
}

func TestProcessTaskHandler_SettledTaskIsNoOp(t *testing.T) {
	db := newSchedulerDB(t)
	tasks := repository.NewTaskRepository(db, 0, 0)
	ctx := context.Background()

	task := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindRemoteURL, URL: "https://example.com/talk"},
	}
	require.NoError(t, tasks.Create(ctx, task))
	require.NoError(t, tasks.MarkRunning(ctx, task.ID))
	require.NoError(t, tasks.MarkSuccess(ctx, task.ID, &models.TaskResult{}))

	pipeline := &mockPipeline{}
	handler := NewProcessTaskHandler(tasks, pipeline)

	result, err := handler.Execute(ctx, models.NewProcessingJob(task.ID, models.JobTypeProcessTask, ""))
	require.NoError(t, err)
	assert.Equal(t, "task already settled", result)
	assert.False(t, pipeline.processCalled, "redelivered jobs must not rerun the pipeline")
}

func TestProcessTaskHandler_TaskNotFound(t *testing.T) {
	db := newSchedulerDB(t)
	tasks := repository.NewTaskRepository(db, 0, 0)

	handler := NewProcessTaskHandler(tasks, &mockPipeline{})

	_, err := handler.Execute(context.Background(), models.NewProcessingJob(models.NewULID(), models.JobTypeProcessTask, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProcessTaskHandler_FailureReturnsCause(t *testing.T) {
	db := newSchedulerDB(t)
	tasks := repository.NewTaskRepository(db, 0, 0)
	ctx := context.Background()

	task := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindRemoteURL, URL: "https://example.com/talk"},
	}
	require.NoError(t, tasks.Create(ctx, task))

	cause := errors.New("download failed")
	handler := NewProcessTaskHandler(tasks, &mockPipeline{processErr: cause})

	_, err := handler.Execute(ctx, models.NewProcessingJob(task.ID, models.JobTypeProcessTask, ""))
	assert.ErrorIs(t, err, cause)
}

func TestProcessTaskHandler_ChainsDownloadOnly(t *testing.T) {
	db := newSchedulerDB(t)
	tasks := repository.NewTaskRepository(db, 0, 0)
	ctx := context.Background()

	task := &models.Task{
		InitialRequest: models.InitialRequest{
			Kind:         models.RequestKindDownloadOnly,
			URL:          "https://example.com/talk",
			ProcessAfter: true,
		},
	}
	require.NoError(t, tasks.Create(ctx, task))

	pipeline := &mockPipeline{
		settle: func(ctx context.Context, task *models.Task) {
			_ = tasks.MarkSuccess(ctx, task.ID, &models.TaskResult{})
		},
	}
	chained := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindUpload, Filename: "talk.mp4"},
	}
	chained.ID = models.NewULID()
	chainer := &mockChainer{chained: chained}

	handler := NewProcessTaskHandler(tasks, pipeline).WithChainer(chainer)

	result, err := handler.Execute(ctx, models.NewProcessingJob(task.ID, models.JobTypeDownloadOnly, ""))
	require.NoError(t, err)
	assert.True(t, chainer.called)
	assert.Contains(t, result, chained.ID.String())
}

func TestProcessTaskHandler_NoChainWithoutProcessAfter(t *testing.T) {
	db := newSchedulerDB(t)
	tasks := repository.NewTaskRepository(db, 0, 0)
	ctx := context.Background()

	task := &models.Task{
		InitialRequest: models.InitialRequest{Kind: models.RequestKindDownloadOnly, URL: "https://example.com/talk"},
	}
	require.NoError(t, tasks.Create(ctx, task))

	pipeline := &mockPipeline{
		settle: func(ctx context.Context, task *models.Task) {
			_ = tasks.MarkSuccess(ctx, task.ID, &models.TaskResult{})
		},
	}
	chainer := &mockChainer{}
	handler := NewProcessTaskHandler(tasks, pipeline).WithChainer(chainer)

	_, err := handler.Execute(ctx, models.NewProcessingJob(task.ID, models.JobTypeDownloadOnly, ""))
	require.NoError(t, err)
	assert.False(t, chainer.called)
}
