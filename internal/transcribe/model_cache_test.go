package transcribe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
)

func writeModel(t *testing.T, dir string, model models.TranscribeModel) {
	t.Helper()
	path := filepath.Join(dir, "ggml-"+string(model)+".bin")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o640))
}

func TestModelCache_ResolveExact(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, models.ModelBase)

	cache := NewModelCache(dir, false, nil)
	used, path, err := cache.Resolve(models.ModelBase)
	require.NoError(t, err)
	assert.Equal(t, models.ModelBase, used)
	assert.Equal(t, cache.PathFor(models.ModelBase), path)
}

func TestModelCache_DowngradeLadder(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, models.ModelTiny)
	writeModel(t, dir, models.ModelSmall)

	cache := NewModelCache(dir, true, nil)

	// large -> medium missing -> small present.
	used, _, err := cache.Resolve(models.ModelLarge)
	require.NoError(t, err)
	assert.Equal(t, models.ModelSmall, used)

	// The request is a ceiling: asking for base never picks small.
	used, _, err = cache.Resolve(models.ModelBase)
	require.NoError(t, err)
	assert.Equal(t, models.ModelTiny, used)
}

func TestModelCache_NoDowngradeWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, models.ModelTiny)

	cache := NewModelCache(dir, false, nil)
	_, _, err := cache.Resolve(models.ModelLarge)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestModelCache_NothingAvailable(t *testing.T) {
	cache := NewModelCache(t.TempDir(), true, nil)
	_, _, err := cache.Resolve(models.ModelLarge)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestModelCache_RejectsRemoteTag(t *testing.T) {
	cache := NewModelCache(t.TempDir(), true, nil)
	_, _, err := cache.Resolve(models.ModelRemoteAPI)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestModelCache_CachesResolution(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, models.ModelBase)

	cache := NewModelCache(dir, true, nil)
	used, _, err := cache.Resolve(models.ModelBase)
	require.NoError(t, err)
	require.Equal(t, models.ModelBase, used)

	// Deleting the file does not invalidate the in-process cache.
	require.NoError(t, os.Remove(cache.PathFor(models.ModelBase)))
	used, _, err = cache.Resolve(models.ModelBase)
	require.NoError(t, err)
	assert.Equal(t, models.ModelBase, used)
}
