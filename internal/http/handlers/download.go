package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/service"
	"github.com/voxsub/voxsub/internal/storage"
)

// DownloadHandler redeems download tokens and hands artifact bytes to the
// front proxy. These are raw chi routes: the response is either a bare
// header for the proxy or a file stream, neither of which fits a typed
// operation.
type DownloadHandler struct {
	tokens    *service.TokenService
	artifacts *storage.ArtifactStore
	events    *storage.EventLog
	// accelPrefix is the internal location the front proxy serves
	// artifacts from. Empty means no proxy: stream directly.
	accelPrefix string
	logger      *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(tokens *service.TokenService, artifacts *storage.ArtifactStore, events *storage.EventLog, accelPrefix string, logger *slog.Logger) *DownloadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadHandler{
		tokens:      tokens,
		artifacts:   artifacts,
		events:      events,
		accelPrefix: accelPrefix,
		logger:      logger,
	}
}

// Register registers the download route with the router.
func (h *DownloadHandler) Register(router chi.Router) {
	router.Get("/api/v1/download-with-token/{token}", h.DownloadWithToken)
}

// DownloadWithToken handles GET /api/v1/download-with-token/{token}.
func (h *DownloadHandler) DownloadWithToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}

	key, err := h.tokens.Redeem(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenAlreadyRedeemed):
			http.Error(w, "token already used", http.StatusGone)
		case errors.Is(err, service.ErrTokenInvalid):
			http.Error(w, "invalid or expired token", http.StatusForbidden)
		default:
			h.logger.Error("token redemption failed", slog.Any("error", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	info, err := h.artifacts.Stat(key)
	if err != nil {
		// The token outlived the artifact; the sweep won this race.
		http.Error(w, "artifact no longer available", http.StatusNotFound)
		return
	}

	filename := path.Base(key)
	contentType := mime.TypeByExtension(path.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if h.accelPrefix != "" {
		// Delegate the byte stream to the front proxy. Workers must never
		// push multi-hundred-megabyte payloads through this process.
		w.Header().Set("X-Accel-Redirect", path.Join(h.accelPrefix, key))
		w.WriteHeader(http.StatusOK)
	} else {
		file, err := h.artifacts.Open(key)
		if err != nil {
			http.Error(w, "artifact no longer available", http.StatusNotFound)
			return
		}
		defer file.Close()
		http.ServeContent(w, r, filename, info.ModTime(), file)
	}

	h.recordDownload(key, info.Size())
}

func (h *DownloadHandler) recordDownload(key string, size int64) {
	if h.events == nil {
		return
	}
	if err := h.events.Append(storage.Event{
		Time:   time.Now(),
		Type:   storage.EventDownload,
		Fields: map[string]any{"artifact": key, "size_bytes": size},
	}); err != nil {
		h.logger.Warn("failed to record download event", slog.Any("error", err))
	}
}
