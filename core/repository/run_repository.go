package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// RunRepository handles database operations for training runs
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun creates a new run in the database
func (r *RunRepository) CreateRun(ctx context.Context, run *models.TrainingRun) error {
	runID := uuid.New()
	if run.ID != "" {
		var err error
		runID, err = uuid.Parse(run.ID)
		if err != nil {
			return fmt.Errorf("invalid run id: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO training_runs (
			id, model_name, epochs, batch_size, status, message,
			metrics_path, artifact_uris, started_at, finished_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()
		)
	`
	_, err = tx.ExecContext(ctx, query,
		runID,
		run.ModelName,
		run.Epochs,
		run.BatchSize,
		run.Status,
		run.Message,
		run.MetricsPath,
		pq.Array(nonNil(run.ArtifactURIs)),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return err
	}

	if err := createRunEventTx(ctx, tx, runID.String(), nil, run.Status, models.ReasonRunStarted); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	run.ID = runID.String()
	return nil
}

// UpdateRunStatus updates run status atomically with event logging
func (r *RunRepository) UpdateRunStatus(ctx context.Context, run *models.TrainingRun, from models.TrainingStatus, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE training_runs
		SET status = $1, message = $2, metrics_path = $3, artifact_uris = $4,
			finished_at = $5, updated_at = NOW()
		WHERE id = $6
	`
	res, err := tx.ExecContext(ctx, updateQuery,
		run.Status,
		run.Message,
		run.MetricsPath,
		pq.Array(nonNil(run.ArtifactURIs)),
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}

	if err := createRunEventTx(ctx, tx, run.ID, &from, run.Status, reason); err != nil {
		return err
	}
	return tx.Commit()
}

func createRunEventTx(ctx context.Context, tx *sql.Tx, runID string, from *models.TrainingStatus, to models.TrainingStatus, reason string) error {
	query := `
		INSERT INTO training_run_events (run_id, from_status, to_status, reason)
		VALUES ($1, $2, $3, $4)
	`

	var fromStatus sql.NullString
	if from != nil {
		fromStatus = sql.NullString{String: string(*from), Valid: true}
	}

	_, err := tx.ExecContext(ctx, query, runID, fromStatus, to, reason)
	return err
}

const runColumns = `
	id, model_name, epochs, batch_size, status, message, metrics_path,
	artifact_uris, started_at, finished_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.TrainingRun, error) {
	var run models.TrainingRun
	var finishedAt sql.NullTime
	var artifactURIs pq.StringArray

	err := row.Scan(
		&run.ID,
		&run.ModelName,
		&run.Epochs,
		&run.BatchSize,
		&run.Status,
		&run.Message,
		&run.MetricsPath,
		&artifactURIs,
		&run.StartedAt,
		&finishedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if len(artifactURIs) > 0 {
		run.ArtifactURIs = []string(artifactURIs)
	}
	return &run, nil
}

// GetRun retrieves a run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.TrainingRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrRunNotFound
	}

	query := `SELECT ` + runColumns + ` FROM training_runs WHERE id = $1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists runs ordered by start time, newest first
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*models.TrainingRun, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*models.TrainingRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRunEvents retrieves events for a run
func (r *RunRepository) GetRunEvents(ctx context.Context, id string) ([]models.RunEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrRunNotFound
	}

	query := `
		SELECT id, run_id, at, from_status, to_status, reason
		FROM training_run_events
		WHERE run_id = $1
		ORDER BY at, id
	`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.RunEvent, 0)
	for rows.Next() {
		var event models.RunEvent
		var fromStatus sql.NullString
		var at time.Time

		if err := rows.Scan(&event.ID, &event.RunID, &at, &fromStatus, &event.ToStatus, &event.Reason); err != nil {
			return nil, err
		}
		event.At = at
		if fromStatus.Valid {
			status := models.TrainingStatus(fromStatus.String)
			event.FromStatus = &status
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
