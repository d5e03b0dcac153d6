package spec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"

	"gopkg.in/yaml.v3"
)

// JobSpec represents the YAML training job specification
//
//	job:
//	  epochs: 5
//	  batch_size: 64
//	  model_name: fashion_mnist_mlp
type JobSpec struct {
	Job JobSpecJob `yaml:"job"`
}

// JobSpecJob represents the job section of the spec. Omitted fields keep their defaults.
type JobSpecJob struct {
	Epochs    *int    `yaml:"epochs"`
	BatchSize *int    `yaml:"batch_size"`
	ModelName *string `yaml:"model_name"`
}

// ParseTrainRequest parses a YAML job specification into a validated TrainRequest
func ParseTrainRequest(specYAML []byte) (models.TrainRequest, error) {
	var spec JobSpec
	if err := yaml.Unmarshal(specYAML, &spec); err != nil {
		return models.TrainRequest{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	req := models.DefaultTrainRequest()
	if spec.Job.Epochs != nil {
		req.Epochs = *spec.Job.Epochs
	}
	if spec.Job.BatchSize != nil {
		req.BatchSize = *spec.Job.BatchSize
	}
	if spec.Job.ModelName != nil {
		req.ModelName = *spec.Job.ModelName
	}

	if err := req.Validate(); err != nil {
		return models.TrainRequest{}, err
	}
	return req, nil
}

// LoadTrainRequestFile reads and parses a YAML job specification file
func LoadTrainRequestFile(path string) (models.TrainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.TrainRequest{}, fmt.Errorf("failed to read job spec: %w", err)
	}
	return ParseTrainRequest(data)
}

// DecodeTrainRequestJSON decodes a JSON request body on top of the defaults.
// An empty body yields the default request.
func DecodeTrainRequestJSON(r io.Reader) (models.TrainRequest, error) {
	req := models.DefaultTrainRequest()
	if err := json.NewDecoder(r).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return models.TrainRequest{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := req.Validate(); err != nil {
		return models.TrainRequest{}, err
	}
	return req, nil
}
