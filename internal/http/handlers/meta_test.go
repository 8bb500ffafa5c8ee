package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
)

func TestMetaHandler_ListLanguages(t *testing.T) {
	h := NewMetaHandler(true, models.ModelBase, false, false)

	out, err := h.ListLanguages(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, out.Body.Languages)

	var sawRTL bool
	for _, lang := range out.Body.Languages {
		if lang.RTL {
			sawRTL = true
		}
	}
	assert.True(t, sawRTL, "closed table should carry RTL languages")
}

func TestMetaHandler_ListModels(t *testing.T) {
	t.Run("local only", func(t *testing.T) {
		h := NewMetaHandler(true, models.ModelBase, false, false)

		out, err := h.ListModels(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, out.Body.Models, 5)

		for _, m := range out.Body.Models {
			assert.True(t, m.Local)
			assert.Equal(t, m.Tag == "base", m.Default)
		}
	})

	t.Run("remote api enabled", func(t *testing.T) {
		h := NewMetaHandler(true, models.ModelBase, true, false)

		out, err := h.ListModels(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, out.Body.Models, 6)

		last := out.Body.Models[len(out.Body.Models)-1]
		assert.Equal(t, string(models.ModelRemoteAPI), last.Tag)
		assert.False(t, last.Local)
	})
}

func TestMetaHandler_ListTranslationServices(t *testing.T) {
	h := NewMetaHandler(true, models.ModelBase, false, false)
	out, err := h.ListTranslationServices(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"free"}, out.Body.Services)

	h = NewMetaHandler(true, models.ModelBase, false, true)
	out, err = h.ListTranslationServices(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"free", "paid"}, out.Body.Services)
}

func TestMetaHandler_GetFeatures(t *testing.T) {
	h := NewMetaHandler(false, models.ModelBase, false, false)

	out, err := h.GetFeatures(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, out.Body.RemoteDownload)
	assert.True(t, out.Body.BurnIn)
	assert.Contains(t, out.Body.MessageLocales, "en")
	assert.Contains(t, out.Body.MessageLocales, "ar")
}
