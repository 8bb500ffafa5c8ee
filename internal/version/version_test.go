package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBuildInfo overrides the ldflags variables for a test and restores them
// on cleanup.
func setBuildInfo(t *testing.T, version, commit, date, branch, treeState string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	origBranch, origTreeState := Branch, TreeState
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
		Branch, TreeState = origBranch, origTreeState
	})
	Version, Commit, Date = version, commit, date
	Branch, TreeState = branch, treeState
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Contains(t, info.Platform, runtime.GOOS)
	assert.Contains(t, info.Platform, runtime.GOARCH)
}

func TestString_DevBuild(t *testing.T) {
	s := String()

	assert.Contains(t, s, ApplicationName)
	assert.Contains(t, s, "version")
}

func TestString_TaggedBuild(t *testing.T) {
	setBuildInfo(t, "1.0.0", "abc123def456789", "2024-01-15T10:30:00Z", "main", "clean")

	s := String()

	assert.Contains(t, s, "commit: abc123de")
	assert.Contains(t, s, "branch: main")
	assert.Contains(t, s, "2024-01-15")
}

func TestString_DirtyTree(t *testing.T) {
	setBuildInfo(t, "1.0.0", "abc123def456789", "unknown", "unknown", "dirty")

	assert.Contains(t, String(), "abc123de*")
	assert.Contains(t, Short(), "(abc123de*)")
}

func TestShort_OmitsApplicationName(t *testing.T) {
	// Cobra prepends the command name to --version output.
	setBuildInfo(t, "1.0.0", "unknown", "unknown", "unknown", "unknown")

	assert.Equal(t, "1.0.0", Short())
}

func TestUserAgent(t *testing.T) {
	assert.Contains(t, UserAgent(), ApplicationName+"/")
}

func TestJSON(t *testing.T) {
	setBuildInfo(t, "1.2.3", "abc123def456789", "2024-01-15T10:30:00Z", "feature-branch", "clean")

	var info Info
	require.NoError(t, json.Unmarshal([]byte(JSON()), &info))

	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123def456789", info.Commit)
	assert.Equal(t, "abc123de", info.CommitSHA)
	assert.Equal(t, "2024-01-15T10:30:00Z", info.Date)
	assert.Equal(t, "feature-branch", info.Branch)
	assert.Equal(t, "clean", info.TreeState)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestSnapshotDetection(t *testing.T) {
	tests := []struct {
		version  string
		snapshot bool
		release  bool
	}{
		{"dev", true, false},
		{"1.0.0", false, true},
		{"0.1.0", false, true},
		{"1.0.1-SNAPSHOT.abc1234", true, false},
		{"1.2.3-alpha.1", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			setBuildInfo(t, tt.version, "unknown", "unknown", "unknown", "unknown")
			assert.Equal(t, tt.snapshot, IsSnapshot())
			assert.Equal(t, tt.release, IsRelease())
		})
	}
}
