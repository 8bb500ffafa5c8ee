// Package storage provides sandboxed file operations for voxsub. Every path
// is resolved against a fixed root so request-derived names cannot traverse
// out of the configured directories.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sandbox roots all file operations at a single directory. Relative paths
// that resolve outside the root are rejected.
type Sandbox struct {
	root string
}

// NewSandbox creates the root directory if needed and returns a Sandbox
// over it.
func NewSandbox(baseDir string) (*Sandbox, error) {
	root, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	return &Sandbox{root: root}, nil
}

// BaseDir returns the absolute sandbox root.
func (s *Sandbox) BaseDir() string {
	return s.root
}

// ResolvePath maps a relative path to an absolute path inside the sandbox.
// Absolute inputs and paths that escape the root are errors.
func (s *Sandbox) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("path escapes sandbox: %s (absolute paths not allowed)", relativePath)
	}

	abs, err := filepath.Abs(filepath.Join(s.root, filepath.Clean(relativePath)))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox: %s", relativePath)
	}
	return abs, nil
}

// Exists reports whether a path exists within the sandbox.
func (s *Sandbox) Exists(relativePath string) (bool, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking path: %w", err)
	}
	return true, nil
}

// MkdirAll creates a directory tree within the sandbox.
func (s *Sandbox) MkdirAll(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

// WriteFile writes data to a file within the sandbox, creating parent
// directories as needed.
func (s *Sandbox) WriteFile(relativePath string, data []byte) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// ReadFile reads a file from within the sandbox.
func (s *Sandbox) ReadFile(relativePath string) ([]byte, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// OpenFile opens a file within the sandbox. Parent directories are created
// when the flags imply writing.
func (s *Sandbox) OpenFile(relativePath string, flag int, perm os.FileMode) (*os.File, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	if flag&(os.O_CREATE|os.O_WRONLY|os.O_RDWR) != 0 {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("creating parent directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return file, nil
}

// Remove removes a file or empty directory within the sandbox.
func (s *Sandbox) Remove(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing path: %w", err)
	}
	return nil
}

// RemoveAll removes a path and its contents. The root itself cannot be
// removed.
func (s *Sandbox) RemoveAll(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if path == s.root {
		return fmt.Errorf("cannot remove sandbox base directory")
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing path: %w", err)
	}
	return nil
}

// stageTemp writes into a hidden temp file next to target and renames it
// into place, so readers never observe a partial file. fill receives the
// open temp file.
func stageTemp(target string, fill func(f *os.File) error) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tempPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(target), randomHex(8)))
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	fillErr := fill(f)
	closeErr := f.Close()
	if fillErr == nil {
		fillErr = closeErr
	}
	if fillErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("writing temporary file: %w", fillErr)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}
	return nil
}

// AtomicWrite writes data so the target is either fully written or absent.
func (s *Sandbox) AtomicWrite(relativePath string, data []byte) error {
	target, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	return stageTemp(target, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// AtomicWriteReader is AtomicWrite for streamed content.
func (s *Sandbox) AtomicWriteReader(relativePath string, r io.Reader) error {
	target, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	return stageTemp(target, func(f *os.File) error {
		_, err := io.Copy(f, r)
		return err
	})
}

// AtomicPublish moves a file from an absolute external path into the
// sandbox. Rename is tried first; a cross-filesystem source falls back to
// copy-then-rename. This is how pipeline outputs leave the scratch
// workspace for the published artifact tree.
func (s *Sandbox) AtomicPublish(srcAbsPath, destRelativePath string) error {
	target, err := s.ResolvePath(destRelativePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.Rename(srcAbsPath, target); err == nil {
		return nil
	}

	src, err := os.Open(srcAbsPath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	return stageTemp(target, func(f *os.File) error {
		_, err := io.Copy(f, src)
		return err
	})
}

// List returns the entries of a directory within the sandbox.
func (s *Sandbox) List(relativePath string) ([]os.DirEntry, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	return entries, nil
}

// Stat returns file info for a path within the sandbox.
func (s *Sandbox) Stat(relativePath string) (os.FileInfo, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("getting file info: %w", err)
	}
	return info, nil
}

// Size returns the size of a file within the sandbox.
func (s *Sandbox) Size(relativePath string) (int64, error) {
	info, err := s.Stat(relativePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func randomHex(n int) string {
	buf := make([]byte, n/2+1)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(buf)[:n]
}
