package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
)

func TestPaidService_TranslateBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DeepL-Auth-Key test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, []string{"hello", "world"}, r.PostForm["text"])
		assert.Equal(t, "ES", r.PostForm.Get("target_lang"))
		assert.Equal(t, "EN", r.PostForm.Get("source_lang"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"translations":[
			{"text":"hola","detected_source_language":"EN"},
			{"text":"mundo","detected_source_language":"EN"}
		]}`))
	}))
	defer srv.Close()

	s := NewPaidService(srv.Client(), srv.URL, "test-key")
	assert.Equal(t, models.ServicePaid, s.Service())

	out, err := s.TranslateBatch(context.Background(), []string{"hello", "world"}, "en", "es")
	require.NoError(t, err)
	assert.Equal(t, []string{"hola", "mundo"}, out)
}

func TestPaidService_AutoSourceOmitsSourceLang(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Empty(t, r.PostForm.Get("source_lang"))
		w.Write([]byte(`{"translations":[{"text":"hola"}]}`))
	}))
	defer srv.Close()

	s := NewPaidService(srv.Client(), srv.URL, "k")
	_, err := s.TranslateBatch(context.Background(), []string{"hello"}, "auto", "es")
	require.NoError(t, err)
}

func TestPaidService_RequiresAuthKey(t *testing.T) {
	s := NewPaidService(nil, "http://example.invalid", "")
	_, err := s.TranslateBatch(context.Background(), []string{"x"}, "en", "es")
	assert.Error(t, err)
}

func TestPaidService_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", 456)
	}))
	defer srv.Close()

	s := NewPaidService(srv.Client(), srv.URL, "k")
	_, err := s.TranslateBatch(context.Background(), []string{"x"}, "en", "es")
	require.Error(t, err)

	statusErr, ok := err.(*StatusError)
	require.True(t, ok)
	assert.Equal(t, 456, statusErr.Code)
}

func TestPaidService_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"translations":[{"text":"solo uno"}]}`))
	}))
	defer srv.Close()

	s := NewPaidService(srv.Client(), srv.URL, "k")
	_, err := s.TranslateBatch(context.Background(), []string{"a", "b"}, "en", "es")
	assert.Error(t, err)
}
