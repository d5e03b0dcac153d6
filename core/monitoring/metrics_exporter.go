package monitoring

import (
	"fmt"
	"strings"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
)

// StatsProvider reports the supervisor's counters
type StatsProvider interface {
	Stats() models.TrainingStats
}

var allStatuses = []models.TrainingStatus{
	models.TrainingStatusIdle,
	models.TrainingStatusTraining,
	models.TrainingStatusDone,
	models.TrainingStatusError,
}

// MetricsExporter exports training metrics for Prometheus/Grafana
type MetricsExporter struct {
	stats StatsProvider
}

// NewMetricsExporter creates a new metrics exporter
func NewMetricsExporter(stats StatsProvider) *MetricsExporter {
	return &MetricsExporter{stats: stats}
}

// GetPrometheusMetrics returns metrics in Prometheus text format
func (me *MetricsExporter) GetPrometheusMetrics() string {
	stats := me.stats.Stats()

	var b strings.Builder

	// Current state, one series per status
	b.WriteString("# HELP training_status Current training status\n")
	b.WriteString("# TYPE training_status gauge\n")
	for _, status := range allStatuses {
		value := 0
		if stats.Status == status {
			value = 1
		}
		fmt.Fprintf(&b, "training_status{status=%q} %d\n", string(status), value)
	}

	b.WriteString("# HELP training_runs_total Finished training runs by outcome\n")
	b.WriteString("# TYPE training_runs_total counter\n")
	fmt.Fprintf(&b, "training_runs_total{outcome=\"done\"} %d\n", stats.CompletedRuns)
	fmt.Fprintf(&b, "training_runs_total{outcome=\"error\"} %d\n", stats.FailedRuns)

	b.WriteString("# HELP training_last_duration_seconds Wall time of the last finished run\n")
	b.WriteString("# TYPE training_last_duration_seconds gauge\n")
	fmt.Fprintf(&b, "training_last_duration_seconds %.3f\n", stats.LastDuration.Seconds())

	// Absent until a metrics document exists
	if stats.LatestTestAccuracy != nil {
		b.WriteString("# HELP training_latest_test_accuracy Test accuracy of the latest metrics document\n")
		b.WriteString("# TYPE training_latest_test_accuracy gauge\n")
		fmt.Fprintf(&b, "training_latest_test_accuracy %.4f\n", *stats.LatestTestAccuracy)
	}

	return b.String()
}
