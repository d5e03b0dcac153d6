package models

import "time"

// TrainingRun is the history record of one accepted training job
type TrainingRun struct {
	ID           string         `json:"id"`
	ModelName    string         `json:"model_name"`
	Epochs       int            `json:"epochs"`
	BatchSize    int            `json:"batch_size"`
	Status       TrainingStatus `json:"status"`
	Message      string         `json:"message"`
	MetricsPath  string         `json:"metrics_path,omitempty"`
	ArtifactURIs []string       `json:"artifact_uris,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Duration returns how long the run took, or zero while it is still training
func (r *TrainingRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunEvent represents a state transition event for a run
type RunEvent struct {
	ID         int64           `json:"id"`
	RunID      string          `json:"run_id"`
	At         time.Time       `json:"at"`
	FromStatus *TrainingStatus `json:"from_status,omitempty"`
	ToStatus   TrainingStatus  `json:"to_status"`
	Reason     string          `json:"reason"`
}

// Reasons recorded on run events
const (
	ReasonRunStarted        = "run_started"
	ReasonTrainingCompleted = "training_completed"
	ReasonTrainingFailed    = "training_failed"
	ReasonOrchestration     = "orchestration_error"
	ReasonCancelled         = "cancelled"
	ReasonPublished         = "artifacts_published"
	ReasonPublishFailed     = "publish_failed"
)
