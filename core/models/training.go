package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TrainingStatus represents the lifecycle status of the training coordinator
type TrainingStatus string

const (
	TrainingStatusIdle     TrainingStatus = "IDLE"
	TrainingStatusTraining TrainingStatus = "TRAINING"
	TrainingStatusDone     TrainingStatus = "DONE"
	TrainingStatusError    TrainingStatus = "ERROR"
)

// TrainingState is the single process-wide record describing the current job
type TrainingState struct {
	Status  TrainingStatus `json:"status"`
	Message string         `json:"message"`
}

// Default values applied to a TrainRequest when a field is omitted
const (
	DefaultEpochs    = 5
	DefaultBatchSize = 64
	DefaultModelName = "fashion_mnist_mlp"
)

// TrainRequest is the configuration handed to the external trainer
type TrainRequest struct {
	Epochs    int    `json:"epochs" yaml:"epochs"`
	BatchSize int    `json:"batch_size" yaml:"batch_size"`
	ModelName string `json:"model_name" yaml:"model_name"`
}

// DefaultTrainRequest returns a request populated with the default configuration
func DefaultTrainRequest() TrainRequest {
	return TrainRequest{
		Epochs:    DefaultEpochs,
		BatchSize: DefaultBatchSize,
		ModelName: DefaultModelName,
	}
}

// Validate checks the request shape before a job is dispatched
func (r TrainRequest) Validate() error {
	if r.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", r.Epochs)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", r.BatchSize)
	}
	name := strings.TrimSpace(r.ModelName)
	if name == "" {
		return fmt.Errorf("model_name is required")
	}
	// model_name becomes a file name inside the models directory
	if name != r.ModelName || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("model_name %q is not a valid file name", r.ModelName)
	}
	return nil
}

// MetricsDocument is the summary written by the trainer after a successful job.
// Raw holds the file as written and is what gets served. The typed fields are
// read leniently for internal use and stay unset when missing or mistyped.
type MetricsDocument struct {
	Raw json.RawMessage

	TestAccuracy    *float64
	KerasModelPath  string
	TFLiteModelPath string

	// SourcePath is the metrics file the document was read from
	SourcePath string
	ModTime    time.Time

	empty bool
}

// ParseMetricsDocument accepts any valid JSON value as a metrics document
func ParseMetricsDocument(data []byte) (*MetricsDocument, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}

	doc := &MetricsDocument{
		Raw:   append(json.RawMessage(nil), bytes.TrimSpace(data)...),
		empty: isEmptyJSON(value),
	}
	if fields, ok := value.(map[string]any); ok {
		if accuracy, ok := fields["test_accuracy"].(float64); ok {
			doc.TestAccuracy = &accuracy
		}
		doc.KerasModelPath, _ = fields["keras_model_path"].(string)
		doc.TFLiteModelPath, _ = fields["tflite_model_path"].(string)
	}
	return doc, nil
}

// MarshalJSON writes the document exactly as the trainer wrote it
func (d MetricsDocument) MarshalJSON() ([]byte, error) {
	if len(d.Raw) == 0 {
		return []byte("null"), nil
	}
	return d.Raw, nil
}

// Empty reports whether the document carries no data, such as {} or null
func (d *MetricsDocument) Empty() bool {
	return d == nil || len(d.Raw) == 0 || d.empty
}

func isEmptyJSON(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case string:
		return v == ""
	case float64:
		return v == 0
	case bool:
		return !v
	}
	return false
}

// ArtifactKind selects one of the model files referenced by a MetricsDocument
type ArtifactKind string

const (
	ArtifactKindTFLite ArtifactKind = "tflite"
	ArtifactKindKeras  ArtifactKind = "keras"
)

// Path returns the artifact path recorded in the document for the given kind
func (d *MetricsDocument) Path(kind ArtifactKind) string {
	switch kind {
	case ArtifactKindKeras:
		return d.KerasModelPath
	default:
		return d.TFLiteModelPath
	}
}

// TrainingStats is a point-in-time view used by the monitoring exporter
type TrainingStats struct {
	Status             TrainingStatus
	CompletedRuns      int
	FailedRuns         int
	LastDuration       time.Duration
	LatestTestAccuracy *float64
}
