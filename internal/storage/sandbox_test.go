package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)
	return sb
}

func TestNewSandbox_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "sandbox")

	sb, err := NewSandbox(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(sb.BaseDir()))
}

func TestSandbox_ResolvePath(t *testing.T) {
	sb := newSandbox(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple file", "video.mp4", false},
		{"nested path", "task1/video.mp4", false},
		{"deep nesting", "a/b/c/d/file.srt", false},
		{"root itself", ".", false},
		{"hidden file", ".hidden", false},
		{"dot dot in name", "..config", false},
		{"parent escape", "../escape.txt", true},
		{"nested parent escape", "task1/../../escape.txt", true},
		{"deep traversal", "../../../etc/passwd", true},
		{"traversal via dot", "task1/./../../etc/passwd", true},
		{"absolute path", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := sb.ResolvePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "escapes sandbox")
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(resolved, sb.BaseDir()))
		})
	}
}

func TestSandbox_FileLifecycle(t *testing.T) {
	sb := newSandbox(t)
	content := []byte("subtitle data")

	exists, err := sb.Exists("cues.srt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, sb.WriteFile("cues.srt", content))

	exists, err = sb.Exists("cues.srt")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := sb.ReadFile("cues.srt")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	size, err := sb.Size("cues.srt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	require.NoError(t, sb.Remove("cues.srt"))

	exists, err = sb.Exists("cues.srt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSandbox_WriteFileCreatesParents(t *testing.T) {
	sb := newSandbox(t)

	require.NoError(t, sb.WriteFile("a/b/c/file.txt", []byte("x")))

	exists, err := sb.Exists("a/b/c/file.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSandbox_RemoveAll(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.WriteFile("task1/sub/file.txt", []byte("x")))

	require.NoError(t, sb.RemoveAll("task1"))

	exists, err := sb.Exists("task1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSandbox_RemoveAllProtectsRoot(t *testing.T) {
	sb := newSandbox(t)

	err := sb.RemoveAll(".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot remove sandbox base directory")
}

func TestSandbox_AtomicWrites(t *testing.T) {
	sb := newSandbox(t)

	t.Run("bytes", func(t *testing.T) {
		require.NoError(t, sb.AtomicWrite("out.vtt", []byte("WEBVTT")))

		data, err := sb.ReadFile("out.vtt")
		require.NoError(t, err)
		assert.Equal(t, []byte("WEBVTT"), data)
	})

	t.Run("reader", func(t *testing.T) {
		require.NoError(t, sb.AtomicWriteReader("out.srt", bytes.NewReader([]byte("1\n"))))

		data, err := sb.ReadFile("out.srt")
		require.NoError(t, err)
		assert.Equal(t, []byte("1\n"), data)
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := sb.List(".")
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".tmp")
		}
	})
}

func TestSandbox_AtomicPublish(t *testing.T) {
	sb := newSandbox(t)

	// Simulate a workspace file outside the sandbox.
	srcPath := filepath.Join(t.TempDir(), "video.mp4")
	content := []byte("rendered output")
	require.NoError(t, os.WriteFile(srcPath, content, 0o640))

	require.NoError(t, sb.AtomicPublish(srcPath, "task1/video.mp4"))

	data, err := sb.ReadFile("task1/video.mp4")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// The source was moved, not copied.
	_, err = os.Stat(srcPath)
	assert.True(t, os.IsNotExist(err))
}

func TestSandbox_ListAndStat(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.WriteFile("one.txt", []byte("1")))
	require.NoError(t, sb.WriteFile("two.txt", []byte("22")))
	require.NoError(t, sb.MkdirAll("sub"))

	entries, err := sb.List(".")
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	info, err := sb.Stat("two.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size())
	assert.False(t, info.IsDir())
}

func TestSandbox_OpenFile(t *testing.T) {
	sb := newSandbox(t)

	f, err := sb.OpenFile("logs/run.log", os.O_CREATE|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("started")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := sb.ReadFile("logs/run.log")
	require.NoError(t, err)
	assert.Equal(t, "started", string(data))
}
