package storage

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestAssetStore_Inspect(t *testing.T) {
	store, err := NewAssetStore(t.TempDir())
	require.NoError(t, err)

	data := pngBytes(t, 64, 32)
	info, err := store.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, ".png", info.Ext)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 32, info.Height)
	assert.Equal(t, int64(len(data)), info.SizeBytes)
	assert.Len(t, info.ContentHash, 64)

	jpg, err := store.Inspect(jpegBytes(t, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, ".jpg", jpg.Ext)
}

func TestAssetStore_Inspect_RejectsNonImage(t *testing.T) {
	store, err := NewAssetStore(t.TempDir())
	require.NoError(t, err)

	// A content-type header cannot make arbitrary bytes an image.
	_, err = store.Inspect([]byte("#!/bin/sh\nrm -rf /\n"))
	assert.Error(t, err)

	_, err = store.Inspect([]byte{})
	assert.Error(t, err)
}

func TestAssetStore_Put_Deduplicates(t *testing.T) {
	store, err := NewAssetStore(t.TempDir())
	require.NoError(t, err)

	data := pngBytes(t, 16, 16)
	info, err := store.Inspect(data)
	require.NoError(t, err)

	path1, err := store.Put(info, data)
	require.NoError(t, err)
	path2, err := store.Put(info, data)
	require.NoError(t, err)

	// Identical content lands on the identical path.
	assert.Equal(t, path1, path2)
	assert.Equal(t, store.PathFor(info.ContentHash, info.Ext), path1)

	exists, err := store.Exists(path1)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAssetStore_PathFor_StableName(t *testing.T) {
	store, err := NewAssetStore(t.TempDir())
	require.NoError(t, err)

	path := store.PathFor("abcdef0123456789", ".png")
	assert.Equal(t, "custom_logo_abcdef01.png", path)
}

func TestAssetStore_Delete(t *testing.T) {
	store, err := NewAssetStore(t.TempDir())
	require.NoError(t, err)

	data := pngBytes(t, 8, 8)
	info, err := store.Inspect(data)
	require.NoError(t, err)
	path, err := store.Put(info, data)
	require.NoError(t, err)

	require.NoError(t, store.Delete(path))

	exists, err := store.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)
}
