package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArtifactStore holds the published outputs of finished tasks, one directory
// per task, keyed as "{taskID}/{filename}". Publication is atomic so a
// download can never observe a half-written file.
type ArtifactStore struct {
	sandbox *Sandbox
}

// NewArtifactStore creates a new ArtifactStore in the given base directory.
func NewArtifactStore(baseDir string) (*ArtifactStore, error) {
	sandbox, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	return &ArtifactStore{sandbox: sandbox}, nil
}

// Key builds the artifact key for a task file.
func (s *ArtifactStore) Key(taskID, filename string) string {
	return filepath.Join(taskID, filename)
}

// Publish atomically moves a finished file from the workspace into the
// artifact tree and returns its key.
func (s *ArtifactStore) Publish(taskID, filename, srcAbsPath string) (string, error) {
	key := s.Key(taskID, filename)
	if err := s.sandbox.AtomicPublish(srcAbsPath, key); err != nil {
		return "", fmt.Errorf("publishing artifact %s: %w", key, err)
	}
	return key, nil
}

// PublishReader atomically writes artifact content from a reader.
func (s *ArtifactStore) PublishReader(taskID, filename string, r io.Reader) (string, error) {
	key := s.Key(taskID, filename)
	if err := s.sandbox.AtomicWriteReader(key, r); err != nil {
		return "", fmt.Errorf("publishing artifact %s: %w", key, err)
	}
	return key, nil
}

// Exists checks whether an artifact is present.
func (s *ArtifactStore) Exists(key string) (bool, error) {
	return s.sandbox.Exists(key)
}

// Open opens an artifact for reading.
func (s *ArtifactStore) Open(key string) (*os.File, error) {
	return s.sandbox.OpenFile(key, os.O_RDONLY, 0)
}

// Stat returns file info for an artifact.
func (s *ArtifactStore) Stat(key string) (os.FileInfo, error) {
	return s.sandbox.Stat(key)
}

// AbsolutePath returns the absolute filesystem path for an artifact key.
func (s *ArtifactStore) AbsolutePath(key string) (string, error) {
	return s.sandbox.ResolvePath(key)
}

// RemoveTask deletes a task's entire artifact directory.
func (s *ArtifactStore) RemoveTask(taskID string) error {
	exists, err := s.sandbox.Exists(taskID)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return s.sandbox.RemoveAll(taskID)
}

// BaseDir returns the absolute path to the artifact store base directory.
func (s *ArtifactStore) BaseDir() string {
	return s.sandbox.BaseDir()
}

// IntakeStore stages uploaded source files between HTTP intake and worker
// pickup, one file per task.
type IntakeStore struct {
	sandbox *Sandbox
}

// NewIntakeStore creates a new IntakeStore in the given base directory.
func NewIntakeStore(baseDir string) (*IntakeStore, error) {
	sandbox, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	return &IntakeStore{sandbox: sandbox}, nil
}

// Store writes an uploaded file for a task and returns its relative path.
// The sanitized original filename is preserved so the probe stage can use
// its extension as a container hint.
func (s *IntakeStore) Store(taskID, filename string, r io.Reader) (string, error) {
	path := filepath.Join(taskID, filename)
	if err := s.sandbox.AtomicWriteReader(path, r); err != nil {
		return "", fmt.Errorf("storing intake file: %w", err)
	}
	return path, nil
}

// AbsolutePath returns the absolute filesystem path for an intake file.
func (s *IntakeStore) AbsolutePath(relativePath string) (string, error) {
	return s.sandbox.ResolvePath(relativePath)
}

// Remove deletes a task's intake directory.
func (s *IntakeStore) Remove(taskID string) error {
	exists, err := s.sandbox.Exists(taskID)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return s.sandbox.RemoveAll(taskID)
}

// SweepOrphans removes intake directories whose task is no longer active.
// Uploads whose task failed probing are removed synchronously; this catches
// the rest (worker crashes, tasks that finished without cleanup).
func (s *IntakeStore) SweepOrphans(isActive func(taskID string) bool) (int, error) {
	entries, err := s.sandbox.List(".")
	if err != nil {
		return 0, fmt.Errorf("listing intake dir: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || isActive(entry.Name()) {
			continue
		}
		if err := s.sandbox.RemoveAll(entry.Name()); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}
