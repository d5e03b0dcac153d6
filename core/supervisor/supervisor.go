package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/artifacts"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/executor"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/repository"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

var (
	// ErrTrainingInProgress is returned by Start while a job is training
	ErrTrainingInProgress = errors.New("training already in progress")
	// ErrInvalidRequest wraps request validation failures
	ErrInvalidRequest = errors.New("invalid training request")
	// ErrShuttingDown is returned by Start after Shutdown was called
	ErrShuttingDown = errors.New("supervisor is shutting down")
)

const (
	MessageStarted   = "Training started"
	MessageCompleted = "Training completed"

	// only the end of the trainer's stderr is kept in the status message
	stderrTailLimit = 500

	storeTimeout = 10 * time.Second
)

// Trainer runs the external training program to completion
type Trainer interface {
	Execute(ctx context.Context, req models.TrainRequest, outputDir string, out io.Writer) (executor.RunResult, error)
}

// MetricsCache is the single-slot cache of the latest metrics document
type MetricsCache interface {
	Get() *models.MetricsDocument
	Refresh() *models.MetricsDocument
}

// Publisher copies the files of a finished run somewhere durable
type Publisher interface {
	Publish(ctx context.Context, run *models.TrainingRun, doc *models.MetricsDocument) ([]string, error)
}

// Options configures a Supervisor
type Options struct {
	OutputDir string
	Trainer   Trainer
	Cache     MetricsCache
	// Runs defaults to an in-memory store
	Runs repository.RunStore
	// Publisher is optional
	Publisher Publisher
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Report is the answer to a status poll
type Report struct {
	Status        models.TrainingStatus   `json:"status"`
	Message       string                  `json:"message"`
	LatestMetrics *models.MetricsDocument `json:"latest_metrics"`
}

// Job is the handle of an accepted training job
type Job struct {
	id      string
	request models.TrainRequest
	run     *models.TrainingRun
	done    chan struct{}
}

// ID returns the run id of the job
func (j *Job) ID() string {
	return j.id
}

// Done is closed once the job's final state has been recorded
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Supervisor owns the training state and runs at most one job at a time
type Supervisor struct {
	outputDir string
	trainer   Trainer
	cache     MetricsCache
	runs      repository.RunStore
	publisher Publisher
	clock     clock.Clock
	logger    *slog.Logger

	// workers run under ctx, cancelled only by Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	state   models.TrainingState
	current *Job
	closed  bool
	stats   models.TrainingStats
}

// New creates a new supervisor in the Idle state
func New(opts Options) (*Supervisor, error) {
	if opts.Trainer == nil {
		return nil, errors.New("trainer is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("metrics cache is required")
	}
	if opts.OutputDir == "" {
		return nil, errors.New("output dir is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Runs == nil {
		opts.Runs = repository.NewMemoryRunStore(opts.Clock)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		outputDir: opts.OutputDir,
		trainer:   opts.Trainer,
		cache:     opts.Cache,
		runs:      opts.Runs,
		publisher: opts.Publisher,
		clock:     opts.Clock,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		state:     models.TrainingState{Status: models.TrainingStatusIdle},
	}, nil
}

// Start accepts req and launches a worker for it, or returns ErrTrainingInProgress
// when a job is already training. The Training status is visible when Start returns.
func (s *Supervisor) Start(req models.TrainRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := s.clock.Now()
	job := &Job{
		id:      uuid.NewString(),
		request: req,
		done:    make(chan struct{}),
	}
	job.run = &models.TrainingRun{
		ID:        job.id,
		ModelName: req.ModelName,
		Epochs:    req.Epochs,
		BatchSize: req.BatchSize,
		Status:    models.TrainingStatusTraining,
		Message:   MessageStarted,
		StartedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if s.state.Status == models.TrainingStatusTraining {
		s.mu.Unlock()
		return nil, ErrTrainingInProgress
	}
	s.state = models.TrainingState{Status: models.TrainingStatusTraining, Message: MessageStarted}
	s.current = job
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("training accepted",
		"job_id", job.id,
		"model_name", req.ModelName,
		"epochs", req.Epochs,
		"batch_size", req.BatchSize,
	)

	go s.work(job)
	return job, nil
}

// work runs one job. Whatever happens, the job ends in Done or Error.
func (s *Supervisor) work(job *Job) {
	defer s.wg.Done()
	defer close(job.done)
	defer func() {
		if v := recover(); v != nil {
			s.logger.Error("training worker panicked", "job_id", job.id, "panic", v)
			s.finish(job, models.TrainingStatusError, fmt.Sprintf("Exception: %v", v), models.ReasonOrchestration)
		}
	}()

	s.storeCall("create run", func(ctx context.Context) error {
		return s.runs.CreateRun(ctx, s.snapshot(job))
	})

	_, err := s.trainer.Execute(s.ctx, job.request, s.outputDir, nil)

	var exitErr *executor.ExitError
	switch {
	case s.ctx.Err() != nil:
		s.finish(job, models.TrainingStatusError, "Exception: training cancelled by shutdown", models.ReasonCancelled)
	case errors.As(err, &exitErr):
		s.finish(job, models.TrainingStatusError, failureMessage(exitErr), models.ReasonTrainingFailed)
	case err != nil:
		s.finish(job, models.TrainingStatusError, "Exception: "+err.Error(), models.ReasonOrchestration)
	default:
		// the cache follows the newest file in the directory, which may belong
		// to another model; the run is credited only with its own metrics file
		s.cache.Refresh()
		doc, readErr := artifacts.ReadMetrics(filepath.Join(s.outputDir, artifacts.MetricsFileName(job.request.ModelName)))
		if readErr == nil {
			s.mu.Lock()
			job.run.MetricsPath = doc.SourcePath
			s.mu.Unlock()
		} else {
			s.logger.Warn("run metrics unavailable", "job_id", job.id, "model_name", job.request.ModelName, "error", readErr)
		}
		s.finish(job, models.TrainingStatusDone, MessageCompleted, models.ReasonTrainingCompleted)
		s.publish(job, doc, readErr)
	}
}

func failureMessage(exitErr *executor.ExitError) string {
	tail := executor.Tail(strings.TrimSpace(exitErr.Stderr()), stderrTailLimit)
	if tail == "" {
		tail = fmt.Sprintf("exit status %d", exitErr.ExitCode)
	}
	return "Training failed: " + tail
}

// finish moves the job to its final state. Status and message change together
// under the lock so pollers never observe a mixed pair.
func (s *Supervisor) finish(job *Job, status models.TrainingStatus, message, reason string) {
	now := s.clock.Now()

	s.mu.Lock()
	if job.run.FinishedAt != nil {
		// already finished; a panic after finish must not rewrite the outcome
		s.mu.Unlock()
		return
	}
	job.run.Status = status
	job.run.Message = message
	job.run.FinishedAt = &now
	job.run.UpdatedAt = now
	if s.current == job {
		s.state = models.TrainingState{Status: status, Message: message}
	}
	switch status {
	case models.TrainingStatusDone:
		s.stats.CompletedRuns++
	case models.TrainingStatusError:
		s.stats.FailedRuns++
	}
	s.stats.LastDuration = now.Sub(job.run.StartedAt)
	s.mu.Unlock()

	attrs := []any{"job_id", job.id, "model_name", job.request.ModelName, "status", status, "reason", reason}
	if status == models.TrainingStatusError {
		s.logger.Error("training finished", append(attrs, "message", message)...)
	} else {
		s.logger.Info("training finished", attrs...)
	}

	s.storeCall("update run", func(ctx context.Context) error {
		return s.runs.UpdateRunStatus(ctx, s.snapshot(job), models.TrainingStatusTraining, reason)
	})
}

func (s *Supervisor) publish(job *Job, doc *models.MetricsDocument, readErr error) {
	if s.publisher == nil {
		return
	}

	var uris []string
	err := readErr
	if err == nil {
		uris, err = s.publisher.Publish(s.ctx, s.snapshot(job), doc)
	}
	reason := models.ReasonPublished
	if err != nil {
		reason = models.ReasonPublishFailed
		s.logger.Warn("artifact publishing failed", "job_id", job.id, "error", err)
	}
	if len(uris) == 0 && err == nil {
		return
	}

	s.mu.Lock()
	job.run.ArtifactURIs = uris
	job.run.UpdatedAt = s.clock.Now()
	s.mu.Unlock()

	s.storeCall("record publish", func(ctx context.Context) error {
		return s.runs.UpdateRunStatus(ctx, s.snapshot(job), models.TrainingStatusDone, reason)
	})
}

// storeCall runs a history write; failures are logged and never affect the job
func (s *Supervisor) storeCall(op string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Warn("run history write failed", "op", op, "error", err)
	}
}

func (s *Supervisor) snapshot(job *Job) *models.TrainingRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run := *job.run
	run.ArtifactURIs = append([]string(nil), job.run.ArtifactURIs...)
	if job.run.FinishedAt != nil {
		t := *job.run.FinishedAt
		run.FinishedAt = &t
	}
	return &run
}

// State returns the current status and message
func (s *Supervisor) State() models.TrainingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns the current state with the cached latest metrics
func (s *Supervisor) Status() Report {
	state := s.State()
	return Report{
		Status:        state.Status,
		Message:       state.Message,
		LatestMetrics: s.cache.Get(),
	}
}

// Current returns the most recently accepted job, or nil before the first start
func (s *Supervisor) Current() *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Runs returns the run history store
func (s *Supervisor) Runs() repository.RunStore {
	return s.runs
}

// Stats returns counters for the monitoring exporter
func (s *Supervisor) Stats() models.TrainingStats {
	s.mu.RLock()
	stats := s.stats
	stats.Status = s.state.Status
	s.mu.RUnlock()

	if doc := s.cache.Get(); doc != nil && doc.TestAccuracy != nil {
		accuracy := *doc.TestAccuracy
		stats.LatestTestAccuracy = &accuracy
	}
	return stats
}

// Shutdown stops accepting jobs and waits for the running worker. When ctx ends
// first, the trainer is killed and Shutdown waits for the worker to record the
// failure before returning ctx's error.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out, cancelling training")
		s.cancel()
		<-idle
		return ctx.Err()
	}
}
