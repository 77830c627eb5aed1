package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/debashishroy00/ccom/internal/models"
)

// Collector holds the Prometheus metrics exported for orchestration runs.
type Collector struct {
	gatherer prometheus.Gatherer

	Runs               *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	ParallelEfficiency prometheus.Gauge
	TaskExecutions     *prometheus.CounterVec
	TaskDuration       *prometheus.HistogramVec
	BackendFallbacks   prometheus.Counter
}

// NewCollector registers the orchestration metrics on registry.
func NewCollector(registry *prometheus.Registry) *Collector {
	factory := promauto.With(registry)

	return &Collector{
		gatherer: registry,
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ccom_runs_total",
				Help: "Total number of orchestration runs",
			},
			[]string{"result"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ccom_run_duration_seconds",
				Help:    "Orchestration wall-clock duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
		ParallelEfficiency: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ccom_parallel_efficiency_percent",
				Help: "Parallel efficiency of the most recent run",
			},
		),
		TaskExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ccom_task_executions_total",
				Help: "Total number of task results by status and backend",
			},
			[]string{"task", "status", "backend"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ccom_task_duration_seconds",
				Help:    "Task duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		BackendFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ccom_backend_fallbacks_total",
				Help: "Native invocations that raised and were retried through legacy",
			},
		),
	}
}

// ObserveRun records one finished orchestration.
func (c *Collector) ObserveRun(_ context.Context, result *models.OrchestrationResult) error {
	if result == nil {
		return nil
	}
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	c.Runs.WithLabelValues(outcome).Inc()
	c.RunDuration.Observe(result.TotalDuration.Seconds())
	c.ParallelEfficiency.Set(result.ParallelEfficiency)

	for name, res := range result.Results {
		backend := string(res.BackendUsed)
		if backend == "" {
			backend = "none"
		}
		c.TaskExecutions.WithLabelValues(name, string(res.Status), backend).Inc()
		if res.Ran() {
			c.TaskDuration.WithLabelValues(name).Observe(res.Duration.Seconds())
		}
	}
	return nil
}

// ObserveFallback counts one native-to-legacy fallback.
func (c *Collector) ObserveFallback(string, error) {
	c.BackendFallbacks.Inc()
}

// WriteTextfile writes every registered metric to path in the text format
// read by the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
