// Package util provides shared helpers for external tools and user input.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FindBinary locates an external executable by name. The env var override
// wins, then a sibling in the working directory, then PATH. The first two
// candidates are stat-checked so a stale override falls through instead of
// failing later at exec time.
func FindBinary(name string, envVar string) (string, error) {
	var candidates []string
	if envVar != "" {
		if p := os.Getenv(envVar); p != "" {
			candidates = append(candidates, p)
		}
	}
	candidates = append(candidates, "./"+name)

	for _, candidate := range candidates {
		if executableFile(candidate) {
			return candidate, nil
		}
	}

	// LookPath does its own executability check.
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// executableFile reports whether path is a regular file with any execute
// bit set.
func executableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
