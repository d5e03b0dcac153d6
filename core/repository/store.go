package repository

import (
	"context"
	"errors"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
)

// ErrRunNotFound is returned when a run id is unknown
var ErrRunNotFound = errors.New("run not found")

// Limits applied to ListRuns
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// RunStore persists training run history
type RunStore interface {
	// CreateRun inserts a new run and its initial event
	CreateRun(ctx context.Context, run *models.TrainingRun) error
	// UpdateRunStatus saves the run's current fields and records a from -> run.Status event
	UpdateRunStatus(ctx context.Context, run *models.TrainingRun, from models.TrainingStatus, reason string) error
	// GetRun retrieves a run by id
	GetRun(ctx context.Context, id string) (*models.TrainingRun, error)
	// ListRuns lists runs, newest first
	ListRuns(ctx context.Context, limit int) ([]*models.TrainingRun, error)
	// GetRunEvents lists a run's events in the order they happened
	GetRunEvents(ctx context.Context, id string) ([]models.RunEvent, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
