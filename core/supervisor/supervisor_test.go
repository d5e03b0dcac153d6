package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/artifacts"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/executor"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/repository"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/internal/testutil"
)

// blockingTrainer holds every Execute call until release is closed, then
// writes a metrics document for the request when accuracy is set.
type blockingTrainer struct {
	release  chan struct{}
	accuracy float64
	err      error
	panicMsg string

	mu    sync.Mutex
	calls []models.TrainRequest
}

func newBlockingTrainer() *blockingTrainer {
	return &blockingTrainer{release: make(chan struct{})}
}

func (b *blockingTrainer) Execute(ctx context.Context, req models.TrainRequest, outputDir string, _ io.Writer) (executor.RunResult, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-ctx.Done():
		return executor.RunResult{ExitCode: -1}, ctx.Err()
	}

	if b.panicMsg != "" {
		panic(b.panicMsg)
	}
	if b.err != nil {
		return executor.RunResult{}, b.err
	}
	if b.accuracy > 0 {
		data, err := json.Marshal(map[string]any{
			"epochs":        req.Epochs,
			"batch_size":    req.BatchSize,
			"test_accuracy": b.accuracy,
		})
		if err != nil {
			return executor.RunResult{}, err
		}
		path := filepath.Join(outputDir, artifacts.MetricsFileName(req.ModelName))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return executor.RunResult{}, err
		}
	}
	return executor.RunResult{}, nil
}

func (b *blockingTrainer) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type recordingPublisher struct {
	uris []string
	err  error

	mu   sync.Mutex
	runs []*models.TrainingRun
}

func (p *recordingPublisher) Publish(_ context.Context, run *models.TrainingRun, _ *models.MetricsDocument) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, run)
	return p.uris, p.err
}

type fixture struct {
	sup   *Supervisor
	dir   string
	cache *artifacts.MetricsCache
	runs  *repository.MemoryRunStore
	clock *clock.Mock
}

func newFixture(t *testing.T, trainer Trainer, publisher Publisher) *fixture {
	t.Helper()
	dir := t.TempDir()
	cache := artifacts.NewMetricsCache(artifacts.NewLocator(dir, nil))
	mock := clock.NewMock()
	runs := repository.NewMemoryRunStore(mock)

	opts := Options{
		OutputDir: dir,
		Trainer:   trainer,
		Cache:     cache,
		Runs:      runs,
		Clock:     mock,
	}
	if publisher != nil {
		opts.Publisher = publisher
	}
	sup, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})

	return &fixture{sup: sup, dir: dir, cache: cache, runs: runs, clock: mock}
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("job did not finish")
	}
}

func accuracyOf(t *testing.T, doc *models.MetricsDocument) float64 {
	t.Helper()
	require.NotNil(t, doc)
	require.NotNil(t, doc.TestAccuracy)
	return *doc.TestAccuracy
}

func request(name string) models.TrainRequest {
	return models.TrainRequest{Epochs: 1, BatchSize: 32, ModelName: name}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{OutputDir: "x", Cache: artifacts.NewMetricsCache(nil)})
	require.Error(t, err)

	_, err = New(Options{OutputDir: "x", Trainer: newBlockingTrainer()})
	require.Error(t, err)

	_, err = New(Options{Trainer: newBlockingTrainer(), Cache: artifacts.NewMetricsCache(nil)})
	require.Error(t, err)
}

func TestStatus_BeforeAnyJob(t *testing.T) {
	f := newFixture(t, newBlockingTrainer(), nil)

	report := f.sup.Status()
	require.Equal(t, models.TrainingStatusIdle, report.Status)
	require.Empty(t, report.Message)
	require.Nil(t, report.LatestMetrics)
	require.Nil(t, f.sup.Current())
}

func TestStart_TrainingVisibleImmediately(t *testing.T) {
	trainer := newBlockingTrainer()
	f := newFixture(t, trainer, nil)

	job, err := f.sup.Start(request("t1"))
	require.NoError(t, err)
	require.NotEmpty(t, job.ID())

	state := f.sup.State()
	require.Equal(t, models.TrainingStatusTraining, state.Status)
	require.Equal(t, MessageStarted, state.Message)

	close(trainer.release)
	waitDone(t, job)
}

func TestStart_RejectsWhileTraining(t *testing.T) {
	trainer := newBlockingTrainer()
	f := newFixture(t, trainer, nil)

	first, err := f.sup.Start(request("first"))
	require.NoError(t, err)

	_, err = f.sup.Start(request("second"))
	require.ErrorIs(t, err, ErrTrainingInProgress)

	// the rejection leaves the running job alone
	require.Equal(t, models.TrainingState{Status: models.TrainingStatusTraining, Message: MessageStarted}, f.sup.State())
	require.Same(t, first, f.sup.Current())

	close(trainer.release)
	waitDone(t, first)
	require.Equal(t, 1, trainer.callCount())
}

func TestStart_ConcurrentCallsAcceptOne(t *testing.T) {
	trainer := newBlockingTrainer()
	f := newFixture(t, trainer, nil)

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []*Job
		errs     []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := f.sup.Start(request("race"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			accepted = append(accepted, job)
		}()
	}
	wg.Wait()

	require.Len(t, accepted, 1)
	require.Len(t, errs, callers-1)
	for _, err := range errs {
		require.ErrorIs(t, err, ErrTrainingInProgress)
	}

	close(trainer.release)
	waitDone(t, accepted[0])
}

func TestStart_InvalidRequest(t *testing.T) {
	trainer := newBlockingTrainer()
	f := newFixture(t, trainer, nil)

	_, err := f.sup.Start(models.TrainRequest{Epochs: 0, BatchSize: 32, ModelName: "x"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Equal(t, models.TrainingStatusIdle, f.sup.State().Status)
	require.Zero(t, trainer.callCount())
}

func TestStart_AcceptedAgainAfterCompletion(t *testing.T) {
	trainer := newBlockingTrainer()
	trainer.err = errors.New("boom")
	close(trainer.release)
	f := newFixture(t, trainer, nil)

	job, err := f.sup.Start(request("a"))
	require.NoError(t, err)
	waitDone(t, job)
	require.Equal(t, models.TrainingStatusError, f.sup.State().Status)

	job, err = f.sup.Start(request("b"))
	require.NoError(t, err)
	waitDone(t, job)
	require.Equal(t, 2, trainer.callCount())
}

func TestWorker_SuccessRefreshesCache(t *testing.T) {
	trainer := newBlockingTrainer()
	trainer.accuracy = 0.8
	close(trainer.release)
	f := newFixture(t, trainer, nil)

	job, err := f.sup.Start(request("old"))
	require.NoError(t, err)
	waitDone(t, job)
	require.InDelta(t, 0.8, accuracyOf(t, f.sup.Status().LatestMetrics), 1e-9)

	// make sure the second file is strictly newer than the first
	old := filepath.Join(f.dir, "old_metrics.json")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	trainer.accuracy = 0.95
	job, err = f.sup.Start(request("new"))
	require.NoError(t, err)
	waitDone(t, job)

	report := f.sup.Status()
	require.Equal(t, models.TrainingStatusDone, report.Status)
	require.Equal(t, MessageCompleted, report.Message)
	require.NotNil(t, report.LatestMetrics)
	require.InDelta(t, 0.95, accuracyOf(t, report.LatestMetrics), 1e-9)
	require.Equal(t, filepath.Join(f.dir, "new_metrics.json"), report.LatestMetrics.SourcePath)
}

func TestWorker_OrchestrationErrorBecomesException(t *testing.T) {
	trainer := newBlockingTrainer()
	trainer.err = errors.New("start /no/such/trainer: no such file or directory")
	close(trainer.release)
	f := newFixture(t, trainer, nil)

	job, err := f.sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	state := f.sup.State()
	require.Equal(t, models.TrainingStatusError, state.Status)
	require.Equal(t, "Exception: start /no/such/trainer: no such file or directory", state.Message)
}

func TestWorker_PanicIsContained(t *testing.T) {
	trainer := newBlockingTrainer()
	trainer.panicMsg = "nil map"
	close(trainer.release)
	f := newFixture(t, trainer, nil)

	job, err := f.sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	state := f.sup.State()
	require.Equal(t, models.TrainingStatusError, state.Status)
	require.Equal(t, "Exception: nil map", state.Message)
}

func TestWorker_RecordsRunHistory(t *testing.T) {
	trainer := newBlockingTrainer()
	trainer.accuracy = 0.9
	f := newFixture(t, trainer, nil)

	job, err := f.sup.Start(request("t1"))
	require.NoError(t, err)
	f.clock.Add(90 * time.Second)
	close(trainer.release)
	waitDone(t, job)

	run, err := f.runs.GetRun(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, models.TrainingStatusDone, run.Status)
	require.Equal(t, MessageCompleted, run.Message)
	require.Equal(t, filepath.Join(f.dir, "t1_metrics.json"), run.MetricsPath)
	require.Equal(t, 90*time.Second, run.Duration())

	events, err := f.runs.GetRunEvents(context.Background(), job.ID())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, models.ReasonRunStarted, events[0].Reason)
	require.Equal(t, models.ReasonTrainingCompleted, events[1].Reason)

	stats := f.sup.Stats()
	require.Equal(t, models.TrainingStatusDone, stats.Status)
	require.Equal(t, 1, stats.CompletedRuns)
	require.Zero(t, stats.FailedRuns)
	require.Equal(t, 90*time.Second, stats.LastDuration)
	require.NotNil(t, stats.LatestTestAccuracy)
	require.InDelta(t, 0.9, *stats.LatestTestAccuracy, 1e-9)
}

func TestWorker_PublishesArtifacts(t *testing.T) {
	trainer := newBlockingTrainer()
	trainer.accuracy = 0.9
	close(trainer.release)
	publisher := &recordingPublisher{uris: []string{"s3://bucket/models/t1/x/t1_metrics.json"}}
	f := newFixture(t, trainer, publisher)

	job, err := f.sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	require.Len(t, publisher.runs, 1)
	require.Equal(t, job.ID(), publisher.runs[0].ID)
	require.Equal(t, models.TrainingStatusDone, publisher.runs[0].Status)

	run, err := f.runs.GetRun(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, publisher.uris, run.ArtifactURIs)

	events, err := f.runs.GetRunEvents(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, models.ReasonPublished, events[len(events)-1].Reason)
}

func TestWorker_PublishFailureKeepsDone(t *testing.T) {
	trainer := newBlockingTrainer()
	trainer.accuracy = 0.9
	close(trainer.release)
	publisher := &recordingPublisher{err: errors.New("bucket unavailable")}
	f := newFixture(t, trainer, publisher)

	job, err := f.sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	require.Equal(t, models.TrainingStatusDone, f.sup.State().Status)

	events, err := f.runs.GetRunEvents(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, models.ReasonPublishFailed, events[len(events)-1].Reason)
}

func TestWorker_CreditsOnlyOwnMetrics(t *testing.T) {
	trainer := newBlockingTrainer()
	close(trainer.release)
	publisher := &recordingPublisher{uris: []string{"mem://x"}}
	f := newFixture(t, trainer, publisher)

	// another model's metrics are the newest file, and the trainer writes none
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "old_metrics.json"), []byte(`{"test_accuracy":0.5}`), 0o644))

	job, err := f.sup.Start(request("fresh"))
	require.NoError(t, err)
	waitDone(t, job)

	require.Equal(t, models.TrainingStatusDone, f.sup.State().Status)
	require.InDelta(t, 0.5, accuracyOf(t, f.sup.Status().LatestMetrics), 1e-9)
	require.Empty(t, publisher.runs)

	run, err := f.runs.GetRun(context.Background(), job.ID())
	require.NoError(t, err)
	require.Empty(t, run.MetricsPath)
	require.Empty(t, run.ArtifactURIs)

	events, err := f.runs.GetRunEvents(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, models.ReasonPublishFailed, events[len(events)-1].Reason)
}

func TestWorker_RecordsRunTimestampsFromClock(t *testing.T) {
	trainer := newBlockingTrainer()
	f := newFixture(t, trainer, nil)
	f.clock.Add(time.Hour)

	job, err := f.sup.Start(request("t1"))
	require.NoError(t, err)
	close(trainer.release)
	waitDone(t, job)

	run, err := f.runs.GetRun(context.Background(), job.ID())
	require.NoError(t, err)
	require.True(t, run.UpdatedAt.Equal(f.clock.Now()), run.UpdatedAt)
}

func TestShutdown_WaitsForRunningJob(t *testing.T) {
	trainer := newBlockingTrainer()
	f := newFixture(t, trainer, nil)

	job, err := f.sup.Start(request("t1"))
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(trainer.release)
	}()

	require.NoError(t, f.sup.Shutdown(context.Background()))
	waitDone(t, job)
	require.Equal(t, models.TrainingStatusDone, f.sup.State().Status)

	_, err = f.sup.Start(request("t2"))
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdown_TimeoutCancelsTraining(t *testing.T) {
	trainer := newBlockingTrainer()
	f := newFixture(t, trainer, nil)

	job, err := f.sup.Start(request("t1"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.sup.Shutdown(ctx), context.DeadlineExceeded)

	// Shutdown returns only after the worker recorded the outcome
	select {
	case <-job.Done():
	default:
		t.Fatal("job still running after shutdown")
	}
	state := f.sup.State()
	require.Equal(t, models.TrainingStatusError, state.Status)
	require.True(t, strings.HasPrefix(state.Message, "Exception:"))

	run, err := f.runs.GetRun(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, models.TrainingStatusError, run.Status)
}

func newProcessSupervisor(t *testing.T, command []string) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	exec, err := executor.NewTrainingExecutor(executor.NewCommandRunner(nil), command, "", nil)
	require.NoError(t, err)

	sup, err := New(Options{
		OutputDir: dir,
		Trainer:   exec,
		Cache:     artifacts.NewMetricsCache(artifacts.NewLocator(dir, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	return sup, dir
}

func TestEndToEnd_SuccessfulTrainer(t *testing.T) {
	sup, dir := newProcessSupervisor(t, testutil.SucceedingTrainer(t, 0.9))

	job, err := sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	report := sup.Status()
	require.Equal(t, models.TrainingStatusDone, report.Status, report.Message)
	require.NotNil(t, report.LatestMetrics)
	require.InDelta(t, 0.9, accuracyOf(t, report.LatestMetrics), 1e-9)
	var written map[string]any
	require.NoError(t, json.Unmarshal(report.LatestMetrics.Raw, &written))
	require.EqualValues(t, 1, written["epochs"])
	require.EqualValues(t, 32, written["batch_size"])
	require.FileExists(t, filepath.Join(dir, "t1.keras"))
	require.FileExists(t, filepath.Join(dir, "t1.tflite"))
}

func TestEndToEnd_FailingTrainer(t *testing.T) {
	sup, _ := newProcessSupervisor(t, testutil.FailingTrainer(t, "disk full", 1))

	job, err := sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	report := sup.Status()
	require.Equal(t, models.TrainingStatusError, report.Status)
	require.True(t, strings.HasSuffix(report.Message, "disk full"), report.Message)
	require.Nil(t, report.LatestMetrics)
}

func TestEndToEnd_FailureMessageIsTruncated(t *testing.T) {
	long := strings.Repeat("x", 2000) + "disk full"
	sup, _ := newProcessSupervisor(t, testutil.FailingTrainer(t, long, 2))

	job, err := sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	message := sup.State().Message
	require.True(t, strings.HasPrefix(message, "Training failed: "))
	tail := strings.TrimPrefix(message, "Training failed: ")
	require.LessOrEqual(t, len(tail), stderrTailLimit)
	require.True(t, strings.HasSuffix(tail, "disk full"))
}

func TestEndToEnd_SilentFailureReportsExitStatus(t *testing.T) {
	sup, _ := newProcessSupervisor(t, testutil.WriteScript(t, "exit 4\n"))

	job, err := sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	require.Equal(t, "Training failed: exit status 4", sup.State().Message)
}

func TestEndToEnd_MissingProgram(t *testing.T) {
	sup, _ := newProcessSupervisor(t, []string{filepath.Join(t.TempDir(), "missing-trainer")})

	job, err := sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	state := sup.State()
	require.Equal(t, models.TrainingStatusError, state.Status)
	require.True(t, strings.HasPrefix(state.Message, "Exception: "), state.Message)
}

func TestEndToEnd_MetricsServedAsWritten(t *testing.T) {
	written := `{"epochs": 5.0, "batch_size": 32, "test_accuracy": 0.9, "optimizer": "adam"}`
	sup, _ := newProcessSupervisor(t, testutil.WriteScript(t, "cat > \"$OUT/${NAME}_metrics.json\" <<'JSON'\n"+written+"\nJSON\n"))

	job, err := sup.Start(request("t1"))
	require.NoError(t, err)
	waitDone(t, job)

	report := sup.Status()
	require.Equal(t, models.TrainingStatusDone, report.Status, report.Message)
	require.InDelta(t, 0.9, accuracyOf(t, report.LatestMetrics), 1e-9)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	var body struct {
		LatestMetrics json.RawMessage `json:"latest_metrics"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	require.JSONEq(t, written, string(body.LatestMetrics))
}
