package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaces_AcquireAndRelease(t *testing.T) {
	fallback := t.TempDir()
	// No scratch dir: everything lands in the fallback.
	ws, err := NewWorkspaces("", 0, fallback, nil)
	require.NoError(t, err)

	w, err := ws.Acquire("01HTASK")
	require.NoError(t, err)
	assert.Equal(t, "01HTASK", w.TaskID())
	assert.DirExists(t, w.Dir())
	assert.True(t, strings.HasPrefix(w.Dir(), fallback))

	// Path helpers stay inside the workspace.
	assert.Equal(t, filepath.Join(w.Dir(), "audio.wav"), w.AudioPath())
	assert.Equal(t, filepath.Join(w.Dir(), "source.mp4"), w.SourcePath(".mp4"))
	assert.Equal(t, filepath.Join(w.Dir(), "subs.srt"), w.Path("subs.srt"))

	require.NoError(t, os.WriteFile(w.AudioPath(), []byte("pcm"), 0o640))
	require.NoError(t, w.Release())
	assert.NoDirExists(t, w.Dir())
}

func TestWorkspaces_Acquire_ClearsStaleDir(t *testing.T) {
	fallback := t.TempDir()
	ws, err := NewWorkspaces("", 0, fallback, nil)
	require.NoError(t, err)

	// A previous attempt left files behind.
	stale := filepath.Join(fallback, "voxsub-task-01HTASK")
	require.NoError(t, os.MkdirAll(stale, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "leftover.bin"), []byte("x"), 0o640))

	w, err := ws.Acquire("01HTASK")
	require.NoError(t, err)

	entries, err := os.ReadDir(w.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorkspaces_ScratchFallback(t *testing.T) {
	fallback := t.TempDir()
	scratch := t.TempDir()

	// An absurd free-space floor forces the fallback path.
	ws, err := NewWorkspaces(scratch, 1<<62, fallback, nil)
	require.NoError(t, err)

	w, err := ws.Acquire("01HTASK")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(w.Dir(), fallback))

	// A reachable floor lets scratch win.
	ws, err = NewWorkspaces(scratch, 1, fallback, nil)
	require.NoError(t, err)
	w, err = ws.Acquire("01HTASK2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(w.Dir(), scratch))
}

func TestWorkspaces_ScratchMissing(t *testing.T) {
	fallback := t.TempDir()
	ws, err := NewWorkspaces(filepath.Join(fallback, "does-not-exist"), 1, fallback, nil)
	require.NoError(t, err)

	w, err := ws.Acquire("01HTASK")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(w.Dir(), fallback))
}

func TestWorkspaces_SweepOrphans(t *testing.T) {
	fallback := t.TempDir()
	ws, err := NewWorkspaces("", 0, fallback, nil)
	require.NoError(t, err)

	live, err := ws.Acquire("01HLIVE")
	require.NoError(t, err)
	_, err = ws.Acquire("01HDEAD")
	require.NoError(t, err)

	// Unrelated directories are never touched.
	other := filepath.Join(fallback, "not-a-workspace")
	require.NoError(t, os.MkdirAll(other, 0o750))

	removed, err := ws.SweepOrphans(func(taskID string) bool {
		return taskID == "01HLIVE"
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.DirExists(t, live.Dir())
	assert.NoDirExists(t, filepath.Join(fallback, "voxsub-task-01HDEAD"))
	assert.DirExists(t, other)
}
