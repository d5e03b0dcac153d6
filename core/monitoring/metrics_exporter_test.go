package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
)

type staticStats models.TrainingStats

func (s staticStats) Stats() models.TrainingStats {
	return models.TrainingStats(s)
}

func TestGetPrometheusMetrics_Idle(t *testing.T) {
	out := NewMetricsExporter(staticStats{Status: models.TrainingStatusIdle}).GetPrometheusMetrics()

	require.Contains(t, out, `training_status{status="IDLE"} 1`)
	require.Contains(t, out, `training_status{status="TRAINING"} 0`)
	require.Contains(t, out, `training_runs_total{outcome="done"} 0`)
	require.NotContains(t, out, "training_latest_test_accuracy")
}

func TestGetPrometheusMetrics_AfterRuns(t *testing.T) {
	accuracy := 0.9
	out := NewMetricsExporter(staticStats{
		Status:             models.TrainingStatusDone,
		CompletedRuns:      2,
		FailedRuns:         1,
		LastDuration:       1500 * time.Millisecond,
		LatestTestAccuracy: &accuracy,
	}).GetPrometheusMetrics()

	require.Contains(t, out, `training_status{status="DONE"} 1`)
	require.Contains(t, out, `training_status{status="IDLE"} 0`)
	require.Contains(t, out, `training_runs_total{outcome="done"} 2`)
	require.Contains(t, out, `training_runs_total{outcome="error"} 1`)
	require.Contains(t, out, "training_last_duration_seconds 1.500\n")
	require.Contains(t, out, "training_latest_test_accuracy 0.9000\n")
}
