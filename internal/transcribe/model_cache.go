package transcribe

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/voxsub/voxsub/internal/models"
)

// ModelCache resolves model tags to ggml files on disk. Resolution results
// are cached process-wide so repeated tasks skip the filesystem checks.
type ModelCache struct {
	dir            string
	allowDowngrade bool
	logger         *slog.Logger

	mu       sync.Mutex
	resolved map[models.TranscribeModel]models.TranscribeModel
}

// NewModelCache creates a ModelCache over the given model directory.
func NewModelCache(dir string, allowDowngrade bool, logger *slog.Logger) *ModelCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelCache{
		dir:            dir,
		allowDowngrade: allowDowngrade,
		logger:         logger,
		resolved:       make(map[models.TranscribeModel]models.TranscribeModel),
	}
}

// PathFor returns the on-disk path for a model size.
func (c *ModelCache) PathFor(model models.TranscribeModel) string {
	return filepath.Join(c.dir, fmt.Sprintf("ggml-%s.bin", model))
}

// Resolve picks the model that will actually run for the requested size.
// The request is a ceiling: when the exact model file is missing and
// downgrading is enabled, the ladder walks down to the largest available
// smaller model. It never upgrades past the request.
func (c *ModelCache) Resolve(requested models.TranscribeModel) (models.TranscribeModel, string, error) {
	if !requested.IsLocal() {
		return "", "", fmt.Errorf("%w: %q is not a local model", ErrModelUnavailable, requested)
	}

	c.mu.Lock()
	if cached, ok := c.resolved[requested]; ok {
		c.mu.Unlock()
		return cached, c.PathFor(cached), nil
	}
	c.mu.Unlock()

	for m := requested; m != ""; m = m.Smaller() {
		path := c.PathFor(m)
		if _, err := os.Stat(path); err == nil {
			if m != requested {
				c.logger.Warn("transcription model downgraded",
					slog.String("requested", string(requested)),
					slog.String("using", string(m)),
				)
			}
			c.mu.Lock()
			c.resolved[requested] = m
			c.mu.Unlock()
			return m, path, nil
		}
		if !c.allowDowngrade {
			break
		}
	}
	return "", "", fmt.Errorf("%w: no model file for %q under %s", ErrModelUnavailable, requested, c.dir)
}
