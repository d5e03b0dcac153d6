package handlers

import (
	"net/http"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/monitoring"
)

// SystemHandler serves liveness and monitoring endpoints
type SystemHandler struct {
	exporter *monitoring.MetricsExporter
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(exporter *monitoring.MetricsExporter) *SystemHandler {
	return &SystemHandler{exporter: exporter}
}

// Hello handles GET /api/
func (h *SystemHandler) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello World"})
}

// Health handles GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Metrics handles GET /metrics
func (h *SystemHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Write([]byte(h.exporter.GetPrometheusMetrics()))
}
