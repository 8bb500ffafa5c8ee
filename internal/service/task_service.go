package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/voxsub/voxsub/internal/config"
	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/taskerr"
	"github.com/voxsub/voxsub/internal/util"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	// ErrQueueFull signals backpressure: the processing queue is at its
	// configured depth limit and the submission is rejected, not queued.
	ErrQueueFull = errors.New("processing queue is full")
	// ErrTaskNotFound is returned for unknown or already-swept task IDs.
	ErrTaskNotFound = errors.New("task not found")
)

// TaskService validates submissions, creates task records and feeds the
// durable queue. It is the only component that creates tasks.
type TaskService struct {
	cfg       *config.Config
	tasks     repository.TaskRepository
	queue     repository.QueueRepository
	assets    repository.AssetRepository
	intake    *storage.IntakeStore
	artifacts *storage.ArtifactStore
	prober    *media.Prober
	events    *storage.EventLog
	logger    *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(
	cfg *config.Config,
	tasks repository.TaskRepository,
	queue repository.QueueRepository,
	assets repository.AssetRepository,
	intake *storage.IntakeStore,
	artifacts *storage.ArtifactStore,
	prober *media.Prober,
	events *storage.EventLog,
	logger *slog.Logger,
) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		cfg:       cfg,
		tasks:     tasks,
		queue:     queue,
		assets:    assets,
		intake:    intake,
		artifacts: artifacts,
		prober:    prober,
		events:    events,
		logger:    logger,
	}
}

// SubmitOptions carries the optional parts of a submission.
type SubmitOptions struct {
	StartTime string
	EndTime   string
	Choices   models.UserChoices
}

// SubmitUpload accepts an uploaded media file. The file is probed
// synchronously so an unusable upload is rejected at submission time rather
// than minutes later by a worker.
func (s *TaskService) SubmitUpload(ctx context.Context, filename string, file io.Reader, opts SubmitOptions) (*models.Task, error) {
	if err := s.prepare(ctx, &opts); err != nil {
		return nil, err
	}

	safeName := util.SanitizeFilename(filename)
	if safeName == "" {
		return nil, taskerr.New(taskerr.CodeBadRequest, "upload filename is required")
	}

	task := &models.Task{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		State:     models.TaskStatePending,
		InitialRequest: models.InitialRequest{
			Kind:      models.RequestKindUpload,
			Filename:  safeName,
			StartTime: opts.StartTime,
			EndTime:   opts.EndTime,
		},
		UserChoices: opts.Choices,
	}

	relPath, err := s.intake.Store(task.ID.String(), safeName, file)
	if err != nil {
		return nil, taskerr.Wrap(taskerr.CodeInfrastructure, "storing upload", err)
	}

	meta, err := s.probeIntake(ctx, relPath)
	if err != nil {
		if removeErr := s.intake.Remove(task.ID.String()); removeErr != nil {
			s.logger.Warn("removing rejected upload failed",
				slog.String("task_id", task.ID.String()),
				slog.String("error", removeErr.Error()),
			)
		}
		return nil, err
	}
	task.SourceMetadata = meta

	return s.enqueue(ctx, task, models.JobTypeProcessTask)
}

// SubmitRemote accepts a URL submission for the full pipeline.
func (s *TaskService) SubmitRemote(ctx context.Context, rawURL string, opts SubmitOptions) (*models.Task, error) {
	if err := s.prepare(ctx, &opts); err != nil {
		return nil, err
	}
	if err := s.validateRemoteURL(rawURL); err != nil {
		return nil, err
	}

	task := &models.Task{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		State:     models.TaskStatePending,
		InitialRequest: models.InitialRequest{
			Kind:      models.RequestKindRemoteURL,
			URL:       rawURL,
			StartTime: opts.StartTime,
			EndTime:   opts.EndTime,
		},
		UserChoices: opts.Choices,
	}
	return s.enqueue(ctx, task, models.JobTypeProcessTask)
}

// SubmitDownloadOnly accepts a URL whose media is fetched and published
// without processing. processAfter chains a full processing task onto the
// downloaded file once acquisition succeeds.
func (s *TaskService) SubmitDownloadOnly(ctx context.Context, rawURL string, processAfter bool, opts SubmitOptions) (*models.Task, error) {
	if processAfter {
		if err := s.prepare(ctx, &opts); err != nil {
			return nil, err
		}
	} else if err := s.checkBackpressure(ctx); err != nil {
		return nil, err
	}
	if err := s.validateRemoteURL(rawURL); err != nil {
		return nil, err
	}

	task := &models.Task{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		State:     models.TaskStatePending,
		InitialRequest: models.InitialRequest{
			Kind:         models.RequestKindDownloadOnly,
			URL:          rawURL,
			ProcessAfter: processAfter,
		},
		UserChoices: opts.Choices,
	}
	return s.enqueue(ctx, task, models.JobTypeDownloadOnly)
}

// EnqueueChained creates the processing successor of a finished download-only
// task. The published download is staged into intake so the successor runs
// the normal upload pipeline.
func (s *TaskService) EnqueueChained(ctx context.Context, parent *models.Task) (*models.Task, error) {
	if parent.Result == nil || parent.Result.Files.RawDownload == "" {
		return nil, fmt.Errorf("parent task %s has no published download", parent.ID)
	}

	rawKey := parent.Result.Files.RawDownload
	src, err := s.artifacts.Open(rawKey)
	if err != nil {
		return nil, fmt.Errorf("opening downloaded artifact: %w", err)
	}
	defer src.Close()

	task := &models.Task{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		State:     models.TaskStatePending,
		InitialRequest: models.InitialRequest{
			Kind:     models.RequestKindUpload,
			Filename: filepath.Base(rawKey),
		},
		UserChoices: parent.UserChoices,
	}

	if _, err := s.intake.Store(task.ID.String(), task.InitialRequest.Filename, src); err != nil {
		return nil, fmt.Errorf("staging downloaded artifact: %w", err)
	}

	created, err := s.enqueue(ctx, task, models.JobTypeProcessTask)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.SetChainedTaskID(ctx, parent.ID, created.ID); err != nil {
		return nil, fmt.Errorf("recording chained task: %w", err)
	}
	return created, nil
}

// Status returns the task for a string ID.
func (s *TaskService) Status(ctx context.Context, id string) (*models.Task, error) {
	taskID, err := models.ParseULID(id)
	if err != nil {
		return nil, ErrTaskNotFound
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading task: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// QueueDepth returns the number of waiting processing jobs.
func (s *TaskService) QueueDepth(ctx context.Context) (int64, error) {
	return s.queue.Depth(ctx, models.QueueProcessing)
}

// prepare runs the shared submission checks: backpressure, defaults and
// choice validation.
func (s *TaskService) prepare(ctx context.Context, opts *SubmitOptions) error {
	if err := s.checkBackpressure(ctx); err != nil {
		return err
	}
	s.applyDefaults(&opts.Choices)
	if err := opts.Choices.Validate(); err != nil {
		return taskerr.Wrap(taskerr.CodeBadRequest, "invalid processing options", err)
	}
	if _, err := util.ParseTimeRange(opts.StartTime, opts.EndTime); err != nil {
		return taskerr.Wrap(taskerr.CodeBadRequest, "invalid time range", err)
	}
	return s.validateLogoRef(ctx, opts.Choices.Watermark)
}

// applyDefaults fills unset choices with configured defaults.
func (s *TaskService) applyDefaults(choices *models.UserChoices) {
	if choices.SourceLang == "" {
		choices.SourceLang = "auto"
	}
	if choices.TranscribeModel == "" {
		choices.TranscribeModel = models.TranscribeModel(s.cfg.Transcribe.DefaultModel)
	}
	if choices.TranslationRequested() && choices.TranslationService == "" {
		choices.TranslationService = models.ServiceFree
	}
}

// validateLogoRef rejects watermark submissions whose logo was never uploaded.
func (s *TaskService) validateLogoRef(ctx context.Context, wm models.WatermarkChoices) error {
	if !wm.Enabled {
		return nil
	}
	if wm.LogoRef == "" {
		return taskerr.New(taskerr.CodeBadRequest, "watermark requires a logo_ref")
	}
	asset, err := s.assets.GetByHash(ctx, wm.LogoRef)
	if err != nil {
		return fmt.Errorf("looking up logo asset: %w", err)
	}
	if asset == nil {
		return taskerr.Newf(taskerr.CodeBadRequest, "unknown logo_ref %q", wm.LogoRef)
	}
	return nil
}

// checkBackpressure rejects submissions once the queue is at its limit.
func (s *TaskService) checkBackpressure(ctx context.Context) error {
	limit := int64(s.cfg.Server.QueueDepthLimit)
	if limit <= 0 {
		return nil
	}
	depth, err := s.queue.Depth(ctx, models.QueueProcessing)
	if err != nil {
		return fmt.Errorf("reading queue depth: %w", err)
	}
	if depth >= limit {
		return ErrQueueFull
	}
	return nil
}

// validateRemoteURL enforces the remote-download policy.
func (s *TaskService) validateRemoteURL(rawURL string) error {
	if !s.cfg.Server.EnableRemoteDownload {
		return taskerr.New(taskerr.CodeBadRequest, "remote downloads are disabled")
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return taskerr.New(taskerr.CodeBadRequest, "invalid media URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return taskerr.Newf(taskerr.CodeBadRequest, "unsupported URL scheme %q", u.Scheme)
	}

	if len(s.cfg.Server.AllowedHosts) == 0 {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range s.cfg.Server.AllowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return taskerr.Newf(taskerr.CodeBadRequest, "host %q is not in the allow-list", host)
}

// probeIntake validates an uploaded file by probing it.
func (s *TaskService) probeIntake(ctx context.Context, relPath string) (*models.SourceMetadata, error) {
	absPath, err := s.intake.AbsolutePath(relPath)
	if err != nil {
		return nil, taskerr.Wrap(taskerr.CodeInfrastructure, "resolving upload", err)
	}
	meta, err := s.prober.Probe(ctx, absPath)
	if err != nil {
		if errors.Is(err, media.ErrNoAudio) || errors.Is(err, media.ErrZeroDuration) {
			return nil, taskerr.Wrap(taskerr.CodeUnsupportedMedia, "upload is not processable media", err)
		}
		return nil, taskerr.Wrap(taskerr.CodeProbeFailed, "probing upload", err)
	}
	return meta, nil
}

// enqueue persists the task and its queue job and records the submission.
func (s *TaskService) enqueue(ctx context.Context, task *models.Task, jobType models.JobType) (*models.Task, error) {
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	if err := s.queue.Enqueue(ctx, models.NewProcessingJob(task.ID, jobType, "")); err != nil {
		return nil, fmt.Errorf("enqueueing job: %w", err)
	}

	if s.events != nil {
		err := s.events.Append(storage.Event{
			Type:   storage.EventTaskSubmitted,
			TaskID: task.ID.String(),
			Fields: map[string]any{"kind": string(task.InitialRequest.Kind)},
		})
		if err != nil {
			s.logger.Warn("appending submission event failed", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("task submitted",
		slog.String("task_id", task.ID.String()),
		slog.String("kind", string(task.InitialRequest.Kind)),
	)
	return task, nil
}
