package routes

import (
	"log/slog"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/api/rest/handlers"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/artifacts"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/monitoring"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/supervisor"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, sup *supervisor.Supervisor, locator *artifacts.Locator, logger *slog.Logger) {
	trainingHandler := handlers.NewTrainingHandler(sup, logger)
	modelHandler := handlers.NewModelHandler(locator, logger)
	systemHandler := handlers.NewSystemHandler(monitoring.NewMetricsExporter(sup))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/", systemHandler.Hello).Methods("GET")

	// Training endpoints
	api.HandleFunc("/train", trainingHandler.StartTraining).Methods("POST")
	api.HandleFunc("/train/status", trainingHandler.GetStatus).Methods("GET")
	api.HandleFunc("/train/runs", trainingHandler.ListRuns).Methods("GET")
	api.HandleFunc("/train/runs/{id}", trainingHandler.GetRun).Methods("GET")

	// Model endpoints
	api.HandleFunc("/models/latest", modelHandler.GetLatest).Methods("GET")
	api.HandleFunc("/models/download", modelHandler.Download).Methods("GET")

	r.HandleFunc("/health", systemHandler.Health).Methods("GET")
	r.HandleFunc("/metrics", systemHandler.Metrics).Methods("GET")
}
