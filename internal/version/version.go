// Package version provides build-time version information for voxsub.
//
// Version, Commit, and Date are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/voxsub/voxsub/internal/version.Version=x.y.z \
//	                   -X github.com/voxsub/voxsub/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/voxsub/voxsub/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Build-time variables injected via ldflags.
var (
	// Version is the semantic version following SemVer 2.0.0.
	// Release format: "1.2.3"
	// Prerelease format: "1.2.3-SNAPSHOT.abc1234" (next patch + SNAPSHOT + short SHA)
	Version = "dev"

	// Commit is the full git commit SHA.
	Commit = "unknown"

	// Date is the build timestamp in RFC3339 format.
	Date = "unknown"

	// Branch is the git branch the build was made from.
	Branch = "unknown"

	// TreeState is "clean" or "dirty" depending on uncommitted changes.
	TreeState = "unknown"
)

// Runtime constants.
var (
	// GoVersion is the Go runtime version.
	GoVersion = runtime.Version()
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "voxsub"

// Info contains structured version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	CommitSHA string `json:"commit_sha"`
	Date      string `json:"date"`
	Branch    string `json:"branch"`
	TreeState string `json:"tree_state"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns all version information as a structured type.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		CommitSHA: shortCommit(),
		Date:      Date,
		Branch:    Branch,
		TreeState: TreeState,
		GoVersion: GoVersion,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// shortCommit returns the 8-character commit SHA, with a trailing "*" when
// the tree was dirty at build time.
func shortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	sha := Commit[:8]
	if TreeState == "dirty" {
		sha += "*"
	}
	return sha
}

// String returns a human-readable version string.
func String() string {
	info := GetInfo()
	if sha := shortCommit(); sha != "" {
		parts := []string{fmt.Sprintf("commit: %s", sha)}
		if Branch != "unknown" && Branch != "" {
			parts = append(parts, fmt.Sprintf("branch: %s", Branch))
		}
		if Date != "unknown" {
			parts = append(parts, fmt.Sprintf("built: %s", Date))
		}
		parts = append(parts, info.GoVersion, info.Platform)
		return fmt.Sprintf("%s version %s (%s)", ApplicationName, info.Version, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// Short returns a short version string suitable for CLI --version output.
// The application name is omitted; Cobra prepends it.
func Short() string {
	if sha := shortCommit(); sha != "" {
		return fmt.Sprintf("%s (%s)", Version, sha)
	}
	return Version
}

// JSON returns the version information as a JSON document.
func JSON() string {
	data, err := json.MarshalIndent(GetInfo(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// UserAgent returns a User-Agent string for HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", ApplicationName, Version)
}

// IsSnapshot returns true if this is a snapshot/prerelease build.
// Snapshots use SemVer prerelease format: X.Y.Z-SNAPSHOT.commitsha
func IsSnapshot() bool {
	return Version == "dev" || strings.Contains(Version, "-SNAPSHOT")
}

// IsRelease returns true if this is a tagged release build.
func IsRelease() bool {
	return !IsSnapshot() && Version != "dev"
}
