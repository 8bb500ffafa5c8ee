package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/service"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/taskerr"
)

// editFormMemory bounds the in-memory part of multipart parsing; larger
// parts spill to disk.
const editFormMemory = 32 << 20

// EditHandler handles the synchronous edit operations. They hold the request
// open, run one bounded transformation in a scratch workspace and stream the
// result straight back; nothing touches the task registry.
type EditHandler struct {
	edits       *service.EditService
	assets      *service.AssetService
	maxFileSize int64
	logger      *slog.Logger
}

// NewEditHandler creates a new edit handler.
func NewEditHandler(edits *service.EditService, assets *service.AssetService, maxFileSize int64, logger *slog.Logger) *EditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditHandler{
		edits:       edits,
		assets:      assets,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Register registers the edit routes with the router.
func (h *EditHandler) Register(router chi.Router) {
	router.Post("/api/v1/cut", h.Cut)
	router.Post("/api/v1/merge", h.Merge)
	router.Post("/api/v1/embed-subtitles", h.EmbedSubtitles)
	router.Post("/api/v1/add-logo", h.AddLogo)
}

// Cut handles POST /api/v1/cut: file + start_time + end_time.
func (h *EditHandler) Cut(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ws *storage.Workspace) (string, error) {
		input, err := h.stageFile(r, ws, "file")
		if err != nil {
			return "", err
		}
		return h.edits.Cut(r.Context(), ws, input,
			r.FormValue("start_time"), r.FormValue("end_time"))
	})
}

// Merge handles POST /api/v1/merge: two or more files in submission order.
func (h *EditHandler) Merge(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ws *storage.Workspace) (string, error) {
		if r.MultipartForm == nil {
			return "", taskerr.New(taskerr.CodeBadRequest, "multipart form required")
		}
		headers := r.MultipartForm.File["files"]
		inputs := make([]string, 0, len(headers))
		for i, header := range headers {
			path, err := h.stageHeader(ws, header, fmt.Sprintf("input-%d", i))
			if err != nil {
				return "", err
			}
			inputs = append(inputs, path)
		}
		return h.edits.Merge(r.Context(), ws, inputs)
	})
}

// EmbedSubtitles handles POST /api/v1/embed-subtitles: file + subtitles.
func (h *EditHandler) EmbedSubtitles(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ws *storage.Workspace) (string, error) {
		input, err := h.stageFile(r, ws, "file")
		if err != nil {
			return "", err
		}
		subs, err := h.stageFile(r, ws, "subtitles")
		if err != nil {
			return "", err
		}
		return h.edits.EmbedSubs(r.Context(), ws, input, subs)
	})
}

// AddLogo handles POST /api/v1/add-logo: file + (logo upload or logo_ref) +
// watermark placement values.
func (h *EditHandler) AddLogo(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ws *storage.Workspace) (string, error) {
		input, err := h.stageFile(r, ws, "file")
		if err != nil {
			return "", err
		}

		logoPath, err := h.resolveLogo(r, ws)
		if err != nil {
			return "", err
		}

		wm := models.WatermarkChoices{
			Enabled:  true,
			Position: models.WatermarkPosition(r.FormValue("position")),
			Size:     models.WatermarkSize(r.FormValue("size")),
		}
		if opacity := r.FormValue("opacity"); opacity != "" {
			n, err := strconv.Atoi(opacity)
			if err != nil {
				return "", taskerr.New(taskerr.CodeBadRequest, "opacity must be an integer")
			}
			wm.Opacity = n
		}

		return h.edits.AddLogo(r.Context(), ws, input, logoPath, wm)
	})
}

// run wraps one edit operation: workspace acquire, multipart parse, execute,
// stream result, release.
func (h *EditHandler) run(w http.ResponseWriter, r *http.Request, op func(ws *storage.Workspace) (string, error)) {
	if err := r.ParseMultipartForm(editFormMemory); err != nil {
		h.writeError(w, taskerr.Wrap(taskerr.CodeBadRequest, "parsing multipart form", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	ws, err := h.edits.AcquireWorkspace()
	if err != nil {
		h.writeError(w, taskerr.Wrap(taskerr.CodeInfrastructure, "acquiring workspace", err))
		return
	}
	defer func() {
		if err := ws.Release(); err != nil {
			h.logger.Warn("releasing edit workspace failed", slog.Any("error", err))
		}
	}()

	output, err := op(ws)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.streamResult(w, r, output)
}

// stageFile copies the named form file into the workspace.
func (h *EditHandler) stageFile(r *http.Request, ws *storage.Workspace, field string) (string, error) {
	if r.MultipartForm == nil {
		return "", taskerr.New(taskerr.CodeBadRequest, "multipart form required")
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return "", taskerr.Newf(taskerr.CodeBadRequest, "missing form file %q", field)
	}
	return h.stageHeader(ws, headers[0], field)
}

func (h *EditHandler) stageHeader(ws *storage.Workspace, header *multipart.FileHeader, name string) (string, error) {
	if header.Size == 0 {
		return "", taskerr.New(taskerr.CodeBadRequest, "empty upload")
	}
	if h.maxFileSize > 0 && header.Size > h.maxFileSize {
		return "", taskerr.Newf(taskerr.CodePayloadTooLarge, "file exceeds the %d byte limit", h.maxFileSize)
	}

	src, err := header.Open()
	if err != nil {
		return "", taskerr.Wrap(taskerr.CodeBadRequest, "opening form file", err)
	}
	defer src.Close()

	dest := ws.Path(name + filepath.Ext(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		return "", taskerr.Wrap(taskerr.CodeInfrastructure, "staging upload", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", taskerr.Wrap(taskerr.CodeInfrastructure, "staging upload", err)
	}
	return dest, nil
}

// resolveLogo stages an uploaded logo (saved through the deduplicating asset
// store) or resolves an existing logo_ref.
func (h *EditHandler) resolveLogo(r *http.Request, ws *storage.Workspace) (string, error) {
	if logos := r.MultipartForm.File["logo"]; len(logos) > 0 {
		src, err := logos[0].Open()
		if err != nil {
			return "", taskerr.Wrap(taskerr.CodeBadRequest, "opening logo file", err)
		}
		defer src.Close()
		data, err := io.ReadAll(src)
		if err != nil {
			return "", taskerr.Wrap(taskerr.CodeBadRequest, "reading logo file", err)
		}
		asset, _, err := h.assets.SaveLogo(r.Context(), data)
		if err != nil {
			return "", err
		}
		return h.assets.ResolvePath(r.Context(), asset.ContentHash)
	}

	if ref := r.FormValue("logo_ref"); ref != "" {
		return h.assets.ResolvePath(r.Context(), ref)
	}

	return "", taskerr.New(taskerr.CodeBadRequest, "logo file or logo_ref required")
}

// streamResult sends the finished file back on the held connection.
func (h *EditHandler) streamResult(w http.ResponseWriter, r *http.Request, path string) {
	file, err := os.Open(path)
	if err != nil {
		h.writeError(w, taskerr.Wrap(taskerr.CodeInfrastructure, "opening result", err))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		h.writeError(w, taskerr.Wrap(taskerr.CodeInfrastructure, "reading result", err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if _, err := io.Copy(w, file); err != nil {
		h.logger.Warn("streaming edit result failed", slog.Any("error", err))
	}
}

// writeError renders a structured error for the raw routes.
func (h *EditHandler) writeError(w http.ResponseWriter, err error) {
	te := taskerr.From(err)
	status := http.StatusInternalServerError
	switch te.Code {
	case taskerr.CodeBadRequest, taskerr.CodeUnsupportedMedia, taskerr.CodeProbeFailed,
		taskerr.CodeFormatError, taskerr.CodeRenderError:
		status = http.StatusBadRequest
	case taskerr.CodePayloadTooLarge:
		status = http.StatusRequestEntityTooLarge
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("edit operation failed", slog.Any("error", err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"code":%q,"message":%q}`, te.Code, te.Message)
}
