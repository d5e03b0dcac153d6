package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
)

// TrainingExecutor invokes the external trainer program for a TrainRequest
type TrainingExecutor struct {
	runner  CommandRunner
	command []string
	workDir string
	logger  *slog.Logger
}

// NewTrainingExecutor creates a new training executor. command is the trainer
// program followed by any fixed leading arguments, e.g. ["python3", "train.py"].
func NewTrainingExecutor(runner CommandRunner, command []string, workDir string, logger *slog.Logger) (*TrainingExecutor, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("trainer command is required")
	}
	if runner == nil {
		runner = NewCommandRunner(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainingExecutor{
		runner:  runner,
		command: append([]string(nil), command...),
		workDir: workDir,
		logger:  logger,
	}, nil
}

// BuildArgs returns the trainer arguments for req, excluding the program itself
func (e *TrainingExecutor) BuildArgs(req models.TrainRequest, outputDir string) []string {
	args := append([]string(nil), e.command[1:]...)
	return append(args,
		"--epochs", strconv.Itoa(req.Epochs),
		"--batch-size", strconv.Itoa(req.BatchSize),
		"--output-dir", outputDir,
		"--model-name", req.ModelName,
	)
}

// Execute runs the trainer synchronously. Trainer output is copied to out when
// it is not nil. A nonzero exit is returned as *ExitError.
func (e *TrainingExecutor) Execute(
	ctx context.Context,
	req models.TrainRequest,
	outputDir string,
	out io.Writer,
) (RunResult, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("failed to create output dir: %w", err)
	}

	e.logger.Info("starting trainer",
		"model_name", req.ModelName,
		"epochs", req.Epochs,
		"batch_size", req.BatchSize,
		"output_dir", outputDir,
	)

	return e.runner.Run(ctx, RunArgs{
		Cmd:    e.command[0],
		Args:   e.BuildArgs(req, outputDir),
		Cwd:    e.workDir,
		Output: out,
	})
}
