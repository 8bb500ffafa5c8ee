package subtitle

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamCues() []Cue {
	return []Cue{
		{Start: 0, End: 2 * time.Second, Text: "first"},
		{Start: 2 * time.Second, End: 4 * time.Second, Text: "second"},
		{Start: 4 * time.Second, End: 6 * time.Second, Text: "third"},
	}
}

func TestStreamWriterMatchesWriteSRT(t *testing.T) {
	cues := streamCues()
	path := filepath.Join(t.TempDir(), "out.srt")

	w, err := NewStreamWriter(path, WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Emit(cues[:2]))
	require.NoError(t, w.Emit(cues[2:]))
	require.NoError(t, w.Close())

	var want bytes.Buffer
	require.NoError(t, WriteSRT(&want, cues, WriteOptions{}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(got))
}

func TestStreamWriterReset(t *testing.T) {
	cues := streamCues()
	path := filepath.Join(t.TempDir(), "out.srt")

	w, err := NewStreamWriter(path, WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Emit(cues[:2]))
	assert.Equal(t, 2, w.Count())

	// A fallback replay starts the numbering and the file over.
	require.NoError(t, w.Reset())
	assert.Equal(t, 0, w.Count())
	require.NoError(t, w.Emit(cues))
	require.NoError(t, w.Close())

	parsed, err := ParseSRT(mustOpen(t, path))
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	assert.Equal(t, 1, parsed[0].Index)
	assert.Equal(t, "third", parsed[2].Text)
}

func TestStreamWriterRTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")

	w, err := NewStreamWriter(path, WriteOptions{RTL: true})
	require.NoError(t, err)
	require.NoError(t, w.Emit([]Cue{{Start: 0, End: time.Second, Text: "שלום"}}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ShapeRTL("שלום"))
	// The timing line is never wrapped.
	assert.Contains(t, string(data), "00:00:00,000 --> 00:00:01,000\n")
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}
