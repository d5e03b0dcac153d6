package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/artifacts"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
)

// ModelHandler serves the latest metrics document and its model files.
// Each request rescans the models directory.
type ModelHandler struct {
	locator *artifacts.Locator
	logger  *slog.Logger
}

// NewModelHandler creates a new model handler
func NewModelHandler(locator *artifacts.Locator, logger *slog.Logger) *ModelHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelHandler{locator: locator, logger: logger}
}

// GetLatest handles GET /api/models/latest
func (h *ModelHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	doc := h.locator.LoadLatest()
	if doc.Empty() {
		writeError(w, http.StatusNotFound, "No metrics found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Download handles GET /api/models/download?artifact=tflite|keras
func (h *ModelHandler) Download(w http.ResponseWriter, r *http.Request) {
	kind := models.ArtifactKindTFLite
	switch param := r.URL.Query().Get("artifact"); param {
	case "", string(models.ArtifactKindTFLite):
	case string(models.ArtifactKindKeras):
		kind = models.ArtifactKindKeras
	default:
		writeError(w, http.StatusBadRequest, "Unknown artifact: "+param)
		return
	}

	doc := h.locator.LoadLatest()
	if doc == nil {
		writeError(w, http.StatusNotFound, "No model found")
		return
	}

	path, err := artifacts.ResolveArtifact(doc, kind)
	if errors.Is(err, artifacts.ErrArtifactMissing) {
		h.logger.Warn("artifact missing", "kind", kind, "metrics", doc.SourcePath, "error", err)
		writeError(w, http.StatusNotFound, notFoundDetail(kind))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": filepath.Base(path),
	}))
	http.ServeFile(w, r, path)
}

func notFoundDetail(kind models.ArtifactKind) string {
	if kind == models.ArtifactKindKeras {
		return "Keras file not found"
	}
	return "TFLite file not found"
}
