package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Artifact store backends
const (
	ArtifactStoreNone  = "none"
	ArtifactStoreMinIO = "minio"
	ArtifactStoreS3    = "s3"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort      string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	LogLevel        slog.Level

	// Training
	ModelsDir      string
	TrainerCommand []string
	TrainerWorkDir string

	// Run history; empty keeps history in memory
	DatabaseURL string

	// Artifact publishing
	ArtifactStore  string
	ArtifactBucket string
	ArtifactPrefix string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	AWSRegion      string
}

// LoadDotEnv loads variables from the env file named by ENV_FILE (default .env).
// Variables already present in the environment win; a missing file is not an error.
func LoadDotEnv() error {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	useSSL, err := getEnvBool("MINIO_USE_SSL", false)
	if err != nil {
		return nil, err
	}
	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	modelsDir, err := filepath.Abs(getEnv("MODELS_DIR", "models"))
	if err != nil {
		return nil, fmt.Errorf("resolve MODELS_DIR: %w", err)
	}

	cfg := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8001"),
		CORSOrigins:     getEnvList("CORS_ORIGINS", ",", []string{"*"}),
		ShutdownTimeout: shutdownTimeout,
		LogLevel:        level,
		ModelsDir:       modelsDir,
		TrainerCommand:  getEnvList("TRAINER_COMMAND", "", []string{"python3", "scripts/train_fashion_mnist.py"}),
		TrainerWorkDir:  getEnv("TRAINER_WORKDIR", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ArtifactStore:   strings.ToLower(getEnv("ARTIFACT_STORE", ArtifactStoreNone)),
		ArtifactBucket:  getEnv("ARTIFACT_BUCKET", ""),
		ArtifactPrefix:  getEnv("ARTIFACT_PREFIX", "models"),
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:     useSSL,
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if len(c.TrainerCommand) == 0 {
		return errors.New("TRAINER_COMMAND is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	switch c.ArtifactStore {
	case ArtifactStoreNone:
	case ArtifactStoreMinIO:
		if c.MinIOEndpoint == "" || c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return errors.New("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio artifact store")
		}
		if c.ArtifactBucket == "" {
			return errors.New("ARTIFACT_BUCKET is required for the minio artifact store")
		}
	case ArtifactStoreS3:
		if c.ArtifactBucket == "" {
			return errors.New("ARTIFACT_BUCKET is required for the s3 artifact store")
		}
	default:
		return fmt.Errorf("unsupported ARTIFACT_STORE %q", c.ArtifactStore)
	}
	return nil
}

func parseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	return level, nil
}
