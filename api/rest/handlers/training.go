package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/repository"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/spec"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/supervisor"

	"github.com/gorilla/mux"
)

const maxRequestBody = 1 << 20

// TrainingHandler handles training-related HTTP requests
type TrainingHandler struct {
	supervisor *supervisor.Supervisor
	runs       repository.RunStore
	logger     *slog.Logger
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(sup *supervisor.Supervisor, logger *slog.Logger) *TrainingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainingHandler{
		supervisor: sup,
		runs:       sup.Runs(),
		logger:     logger,
	}
}

// StartTrainingResponse represents the response after accepting a job
type StartTrainingResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

// StartTraining handles POST /api/train
func (h *TrainingHandler) StartTraining(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTrainRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	job, err := h.supervisor.Start(req)
	switch {
	case errors.Is(err, supervisor.ErrTrainingInProgress):
		writeError(w, http.StatusConflict, "Training already in progress")
		return
	case errors.Is(err, supervisor.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, supervisor.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StartTrainingResponse{Status: "STARTED", RunID: job.ID()})
}

// decodeTrainRequest accepts a JSON body, or a YAML job spec when the content type says so
func decodeTrainRequest(r *http.Request) (models.TrainRequest, error) {
	body := io.LimitReader(r.Body, maxRequestBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.Contains(mediaType, "yaml") {
		data, err := io.ReadAll(body)
		if err != nil {
			return models.TrainRequest{}, err
		}
		return spec.ParseTrainRequest(data)
	}
	return spec.DecodeTrainRequestJSON(body)
}

// GetStatus handles GET /api/train/status
func (h *TrainingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.supervisor.Status())
}

// ListRuns handles GET /api/train/runs
func (h *TrainingHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := repository.DefaultListLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": runs,
	})
}

// GetRun handles GET /api/train/runs/{id}
func (h *TrainingHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	run, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, repository.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get run", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	events, err := h.runs.GetRunEvents(r.Context(), runID)
	if err != nil {
		h.logger.Error("failed to get run events", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get run events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":    run,
		"events": events,
	})
}
