package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/api/rest/middleware"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/api/rest/routes"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/config"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/artifacts"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/executor"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/repository"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/supervisor"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/storage"

	"github.com/gorilla/mux"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := config.LoadDotEnv(); err != nil {
		bootLogger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// Initialize run history
	runs, closeRuns, err := newRunStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRuns()

	// Initialize artifact publishing
	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Initialize training executor
	trainingExecutor, err := executor.NewTrainingExecutor(
		executor.NewCommandRunner(logger),
		cfg.TrainerCommand,
		cfg.TrainerWorkDir,
		logger,
	)
	if err != nil {
		return err
	}

	locator := artifacts.NewLocator(cfg.ModelsDir, logger)
	opts := supervisor.Options{
		OutputDir: cfg.ModelsDir,
		Trainer:   trainingExecutor,
		Cache:     artifacts.NewMetricsCache(locator),
		Runs:      runs,
		Logger:    logger,
	}
	if publisher != nil {
		opts.Publisher = publisher
	}
	sup, err := supervisor.New(opts)
	if err != nil {
		return err
	}

	// Setup routes
	r := mux.NewRouter()
	routes.SetupRoutes(r, sup, locator, logger)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           middleware.Wrap(logger, middleware.CORS(cfg.CORSOrigins)(r)),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			"addr", server.Addr,
			"models_dir", cfg.ModelsDir,
			"artifact_store", cfg.ArtifactStore,
		)
		errCh <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server forced to shutdown", "error", err)
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Warn("training cancelled by shutdown", "error", err)
	}
	return nil
}

func newRunStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.RunStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("run history kept in memory")
		return repository.NewMemoryRunStore(nil), func() {}, nil
	}

	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("database connected successfully")
	return repository.NewRunRepository(db), func() { db.Close() }, nil
}

func newPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Publisher, error) {
	var store storage.ObjectStore
	switch cfg.ArtifactStore {
	case config.ArtifactStoreMinIO:
		minioStore, err := storage.NewMinIOStore(ctx, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.AWSRegion,
			Bucket:    cfg.ArtifactBucket,
		})
		if err != nil {
			return nil, err
		}
		store = minioStore
	case config.ArtifactStoreS3:
		s3Store, err := storage.NewS3Store(ctx, cfg.AWSRegion, cfg.ArtifactBucket)
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		return nil, nil
	}
	logger.Info("artifact publishing enabled", "store", cfg.ArtifactStore, "bucket", cfg.ArtifactBucket)
	return storage.NewPublisher(store, cfg.ArtifactPrefix, logger), nil
}
