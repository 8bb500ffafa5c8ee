package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"os"
	"strings"

	// Decoders for the accepted logo formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// AssetStore stores uploaded watermark logos deduplicated by content hash.
// Files are named custom_logo_<first8-of-hash>.<ext> directly under the
// logos directory so operators can match a file to its hash reference at a
// glance.
type AssetStore struct {
	sandbox *Sandbox
}

// ImageInfo describes a validated logo image.
type ImageInfo struct {
	ContentHash string
	Ext         string
	Width       int
	Height      int
	SizeBytes   int64
}

// NewAssetStore creates a new AssetStore in the given base directory.
func NewAssetStore(baseDir string) (*AssetStore, error) {
	sandbox, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	return &AssetStore{sandbox: sandbox}, nil
}

// Inspect validates logo bytes by decoding the image header and returns the
// content hash and dimensions. Only PNG, JPEG, GIF, and WebP are accepted;
// validation is by decode, never by the client-declared content type.
func (s *AssetStore) Inspect(data []byte) (*ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	ext, ok := formatExtensions[format]
	if !ok {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	sum := sha256.Sum256(data)
	return &ImageInfo{
		ContentHash: hex.EncodeToString(sum[:]),
		Ext:         ext,
		Width:       cfg.Width,
		Height:      cfg.Height,
		SizeBytes:   int64(len(data)),
	}, nil
}

// formatExtensions maps image.DecodeConfig format names to file extensions.
var formatExtensions = map[string]string{
	"png":  ".png",
	"jpeg": ".jpg",
	"gif":  ".gif",
	"webp": ".webp",
}

// PathFor returns the stable file name for a content hash.
func (s *AssetStore) PathFor(contentHash, ext string) string {
	prefix := contentHash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("custom_logo_%s%s", prefix, ext)
}

// Put writes logo bytes under their content hash. Writing the same content
// twice lands on the same path, which is what makes the store deduplicating.
func (s *AssetStore) Put(info *ImageInfo, data []byte) (string, error) {
	path := s.PathFor(info.ContentHash, info.Ext)
	if err := s.sandbox.AtomicWrite(path, data); err != nil {
		return "", fmt.Errorf("writing asset file: %w", err)
	}
	return path, nil
}

// Exists checks whether the file for a stored asset is present.
func (s *AssetStore) Exists(relativePath string) (bool, error) {
	return s.sandbox.Exists(relativePath)
}

// Open opens a stored asset for reading.
func (s *AssetStore) Open(relativePath string) (*os.File, error) {
	return s.sandbox.OpenFile(relativePath, os.O_RDONLY, 0)
}

// AbsolutePath returns the absolute filesystem path for a stored asset,
// for handing to the render filtergraph.
func (s *AssetStore) AbsolutePath(relativePath string) (string, error) {
	return s.sandbox.ResolvePath(relativePath)
}

// Delete removes a stored asset file.
func (s *AssetStore) Delete(relativePath string) error {
	if err := s.sandbox.Remove(relativePath); err != nil {
		if strings.Contains(err.Error(), "no such file") {
			return nil
		}
		return err
	}
	return nil
}

// BaseDir returns the absolute path to the asset store base directory.
func (s *AssetStore) BaseDir() string {
	return s.sandbox.BaseDir()
}
