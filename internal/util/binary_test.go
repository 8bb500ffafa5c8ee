package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool creates an executable file and returns its path.
func fakeTool(t *testing.T, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), mode))
	return path
}

func TestFindBinary_EnvOverride(t *testing.T) {
	tool := fakeTool(t, 0o755)
	t.Setenv("VOXSUB_TEST_TOOL", tool)

	path, err := FindBinary("no-such-tool", "VOXSUB_TEST_TOOL")
	require.NoError(t, err)
	assert.Equal(t, tool, path)
}

func TestFindBinary_EnvBeatsPath(t *testing.T) {
	tool := fakeTool(t, 0o755)
	t.Setenv("VOXSUB_TEST_TOOL", tool)

	// "ls" is on PATH everywhere, but the override must win.
	path, err := FindBinary("ls", "VOXSUB_TEST_TOOL")
	require.NoError(t, err)
	assert.Equal(t, tool, path)
}

func TestFindBinary_PathLookup(t *testing.T) {
	path, err := FindBinary("ls", "")
	require.NoError(t, err)
	assert.Contains(t, path, "ls")
}

func TestFindBinary_NotFound(t *testing.T) {
	path, err := FindBinary("voxsub-no-such-binary", "")
	assert.Error(t, err)
	assert.Empty(t, path)
	assert.Contains(t, err.Error(), "not found")
}

func TestFindBinary_SkipsBadOverrides(t *testing.T) {
	tests := []struct {
		name     string
		override func(t *testing.T) string
	}{
		{
			name:     "missing file",
			override: func(t *testing.T) string { return "/no/such/path" },
		},
		{
			name:     "not executable",
			override: func(t *testing.T) string { return fakeTool(t, 0o644) },
		},
		{
			name:     "directory",
			override: func(t *testing.T) string { return t.TempDir() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := tt.override(t)
			t.Setenv("VOXSUB_TEST_TOOL", bad)

			path, err := FindBinary("ls", "VOXSUB_TEST_TOOL")
			require.NoError(t, err)
			assert.NotEqual(t, bad, path)
			assert.Contains(t, path, "ls")
		})
	}
}
