package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/storage"
)

// AssetSweeper removes logo assets unused since a cutoff.
type AssetSweeper interface {
	SweepUnused(ctx context.Context, cutoff time.Time) (int, error)
}

// ArtifactSweepHandler deletes the published files of tasks whose artifact
// retention has passed. The task record itself survives until the record
// sweep so late status polls still see the outcome.
type ArtifactSweepHandler struct {
	tasks     repository.TaskRepository
	artifacts *storage.ArtifactStore
	events    *storage.EventLog
	logger    *slog.Logger
}

// NewArtifactSweepHandler creates the artifact retention sweep.
func NewArtifactSweepHandler(tasks repository.TaskRepository, artifacts *storage.ArtifactStore, events *storage.EventLog) *ArtifactSweepHandler {
	return &ArtifactSweepHandler{
		tasks:     tasks,
		artifacts: artifacts,
		events:    events,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *ArtifactSweepHandler) WithLogger(logger *slog.Logger) *ArtifactSweepHandler {
	h.logger = logger
	return h
}

// Execute removes expired artifacts. Files go first so a crash between the
// two steps re-runs the file removal, which is idempotent.
func (h *ArtifactSweepHandler) Execute(ctx context.Context, job *models.QueueJob) (string, error) {
	expired, err := h.tasks.ListArtifactExpired(ctx, time.Now())
	if err != nil {
		return "", fmt.Errorf("listing expired artifacts: %w", err)
	}

	swept := 0
	for _, task := range expired {
		if err := h.artifacts.RemoveTask(task.ID.String()); err != nil {
			h.logger.Error("failed to remove expired artifacts",
				slog.String("task_id", task.ID.String()),
				slog.Any("error", err))
			continue
		}
		if err := h.tasks.ClearArtifactExpiry(ctx, task.ID); err != nil {
			h.logger.Error("failed to clear artifact expiry",
				slog.String("task_id", task.ID.String()),
				slog.Any("error", err))
			continue
		}
		swept++
	}

	if swept > 0 && h.events != nil {
		if err := h.events.Append(storage.Event{
			Time:   time.Now(),
			Type:   storage.EventSweep,
			Fields: map[string]any{"kind": "artifact", "tasks_swept": swept},
		}); err != nil {
			h.logger.Warn("failed to record sweep event", slog.Any("error", err))
		}
	}

	return fmt.Sprintf("swept artifacts of %d tasks", swept), nil
}

// AssetSweepHandler deletes logo assets no task has referenced within the
// retention window.
type AssetSweepHandler struct {
	assets    AssetSweeper
	retention time.Duration
	logger    *slog.Logger
}

// NewAssetSweepHandler creates the asset retention sweep.
func NewAssetSweepHandler(assets AssetSweeper, retention time.Duration) *AssetSweepHandler {
	return &AssetSweepHandler{
		assets:    assets,
		retention: retention,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *AssetSweepHandler) WithLogger(logger *slog.Logger) *AssetSweepHandler {
	h.logger = logger
	return h
}

// Execute removes unused logo assets.
func (h *AssetSweepHandler) Execute(ctx context.Context, job *models.QueueJob) (string, error) {
	removed, err := h.assets.SweepUnused(ctx, time.Now().Add(-h.retention))
	if err != nil {
		return "", fmt.Errorf("sweeping unused assets: %w", err)
	}
	return fmt.Sprintf("removed %d unused assets", removed), nil
}

// RecordSweepHandler deletes terminal task records past their retention,
// along with the token redemptions that could only ever reference them.
type RecordSweepHandler struct {
	tasks  repository.TaskRepository
	tokens repository.TokenRepository
	logger *slog.Logger
}

// NewRecordSweepHandler creates the record retention sweep.
func NewRecordSweepHandler(tasks repository.TaskRepository, tokens repository.TokenRepository) *RecordSweepHandler {
	return &RecordSweepHandler{
		tasks:  tasks,
		tokens: tokens,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *RecordSweepHandler) WithLogger(logger *slog.Logger) *RecordSweepHandler {
	h.logger = logger
	return h
}

// Execute removes expired task rows and stale redemption rows. Redemptions
// older than a day are useless: any token that old fails signature expiry
// long before it reaches the redemption check.
func (h *RecordSweepHandler) Execute(ctx context.Context, job *models.QueueJob) (string, error) {
	records, err := h.tasks.DeleteExpiredRecords(ctx, time.Now())
	if err != nil {
		return "", fmt.Errorf("deleting expired records: %w", err)
	}

	tokens, err := h.tokens.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return "", fmt.Errorf("deleting stale redemptions: %w", err)
	}

	return fmt.Sprintf("deleted %d task records, %d redemptions", records, tokens), nil
}

// WorkspaceSweepHandler reaps scratch directories and intake files left
// behind by crashed workers.
type WorkspaceSweepHandler struct {
	tasks      repository.TaskRepository
	workspaces *storage.Workspaces
	intake     *storage.IntakeStore
	logger     *slog.Logger
}

// NewWorkspaceSweepHandler creates the workspace orphan sweep.
func NewWorkspaceSweepHandler(tasks repository.TaskRepository, workspaces *storage.Workspaces, intake *storage.IntakeStore) *WorkspaceSweepHandler {
	return &WorkspaceSweepHandler{
		tasks:      tasks,
		workspaces: workspaces,
		intake:     intake,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *WorkspaceSweepHandler) WithLogger(logger *slog.Logger) *WorkspaceSweepHandler {
	h.logger = logger
	return h
}

// Execute removes workspaces and intake directories of inactive tasks.
// Unparseable directory names count as inactive so edit workspaces that
// leaked past their request also get reaped.
func (h *WorkspaceSweepHandler) Execute(ctx context.Context, job *models.QueueJob) (string, error) {
	isActive := func(taskID string) bool {
		id, err := models.ParseULID(taskID)
		if err != nil {
			return false
		}
		task, err := h.tasks.GetByID(ctx, id)
		if err != nil {
			// Keep the directory when we cannot tell; the next sweep retries.
			return true
		}
		return task != nil && !task.IsTerminal()
	}

	workspaces, err := h.workspaces.SweepOrphans(isActive)
	if err != nil {
		return "", fmt.Errorf("sweeping workspaces: %w", err)
	}

	intake := 0
	if h.intake != nil {
		intake, err = h.intake.SweepOrphans(isActive)
		if err != nil {
			return "", fmt.Errorf("sweeping intake: %w", err)
		}
	}

	return fmt.Sprintf("reaped %d workspaces, %d intake dirs", workspaces, intake), nil
}
