package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

// Workspaces hands out per-task scratch directories. It prefers the fast
// scratch area (tmpfs such as /dev/shm) and falls back to the durable
// workspace directory when the scratch filesystem is missing or does not
// have enough free space for the job.
type Workspaces struct {
	scratchDir     string
	scratchMinFree uint64
	fallbackDir    string
	logger         *slog.Logger
}

// Workspace is one task's private working directory. All intermediate files
// of a pipeline run live here and are removed on Release.
type Workspace struct {
	taskID string
	dir    string
}

// NewWorkspaces creates a workspace manager. fallbackDir is created eagerly;
// scratchDir is probed per acquisition because tmpfs capacity fluctuates.
func NewWorkspaces(scratchDir string, scratchMinFree uint64, fallbackDir string, logger *slog.Logger) (*Workspaces, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absFallback, err := filepath.Abs(fallbackDir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace directory: %w", err)
	}
	if err := os.MkdirAll(absFallback, 0750); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}
	return &Workspaces{
		scratchDir:     scratchDir,
		scratchMinFree: scratchMinFree,
		fallbackDir:    absFallback,
		logger:         logger,
	}, nil
}

// Acquire creates a fresh working directory for a task.
func (w *Workspaces) Acquire(taskID string) (*Workspace, error) {
	root := w.fallbackDir
	if w.scratchUsable() {
		root = w.scratchDir
	}

	dir := filepath.Join(root, "voxsub-task-"+taskID)
	// A leftover directory from a reclaimed attempt is discarded; handlers
	// are idempotent and rebuild from the task inputs.
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clearing stale workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	w.logger.Debug("workspace acquired",
		slog.String("task_id", taskID),
		slog.String("dir", dir),
	)
	return &Workspace{taskID: taskID, dir: dir}, nil
}

// scratchUsable reports whether the scratch area exists and has headroom.
func (w *Workspaces) scratchUsable() bool {
	if w.scratchDir == "" {
		return false
	}
	info, err := os.Stat(w.scratchDir)
	if err != nil || !info.IsDir() {
		return false
	}
	usage, err := disk.Usage(w.scratchDir)
	if err != nil {
		w.logger.Warn("probing scratch filesystem failed",
			slog.String("dir", w.scratchDir),
			slog.String("error", err.Error()),
		)
		return false
	}
	if usage.Free < w.scratchMinFree {
		w.logger.Debug("scratch filesystem too full, using fallback",
			slog.String("dir", w.scratchDir),
			slog.Uint64("free_bytes", usage.Free),
			slog.Uint64("min_free_bytes", w.scratchMinFree),
		)
		return false
	}
	return true
}

// SweepOrphans removes workspace directories whose task is no longer active.
// Crashed workers leave these behind; the workspace sweep job calls this.
func (w *Workspaces) SweepOrphans(isActive func(taskID string) bool) (int, error) {
	removed := 0
	for _, root := range []string{w.scratchDir, w.fallbackDir} {
		if root == "" {
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			taskID, ok := taskIDFromWorkspaceName(entry.Name())
			if !ok || isActive(taskID) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
				w.logger.Warn("removing orphaned workspace failed",
					slog.String("dir", entry.Name()),
					slog.String("error", err.Error()),
				)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

const workspacePrefix = "voxsub-task-"

func taskIDFromWorkspaceName(name string) (string, bool) {
	if len(name) <= len(workspacePrefix) || name[:len(workspacePrefix)] != workspacePrefix {
		return "", false
	}
	return name[len(workspacePrefix):], true
}

// Dir returns the workspace root directory.
func (ws *Workspace) Dir() string {
	return ws.dir
}

// TaskID returns the owning task's ID.
func (ws *Workspace) TaskID() string {
	return ws.taskID
}

// Path joins name onto the workspace root.
func (ws *Workspace) Path(name string) string {
	return filepath.Join(ws.dir, name)
}

// SourcePath is where the acquired media file lands.
func (ws *Workspace) SourcePath(ext string) string {
	return filepath.Join(ws.dir, "source"+ext)
}

// AudioPath is where the extracted mono 16 kHz audio lands.
func (ws *Workspace) AudioPath() string {
	return filepath.Join(ws.dir, "audio.wav")
}

// Release removes the workspace and everything in it.
func (ws *Workspace) Release() error {
	if err := os.RemoveAll(ws.dir); err != nil {
		return fmt.Errorf("removing workspace: %w", err)
	}
	return nil
}
