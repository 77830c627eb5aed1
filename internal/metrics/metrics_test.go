package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debashishroy00/ccom/internal/models"
)

func run(id string, success bool, efficiency float64) *models.OrchestrationResult {
	return &models.OrchestrationResult{
		RunID:              id,
		Success:            success,
		ParallelEfficiency: efficiency,
		Results:            map[string]models.TaskResult{},
	}
}

func TestTrackerEvictsOldest(t *testing.T) {
	tracker := NewTracker(3)
	for i := 1; i <= 5; i++ {
		tracker.Record(run(fmt.Sprintf("run-%d", i), i != 1, float64(i*10)))
	}

	summary := tracker.Snapshot(nil)
	assert.Equal(t, int64(5), summary.TotalRuns)
	assert.Equal(t, 3, summary.WindowRuns)
	// run-3, run-4 and run-5 remain
	assert.InDelta(t, 40.0, summary.AvgParallelEfficiency, 1e-9)
	assert.Equal(t, 1.0, summary.SuccessRate)
}

func TestTrackerDefaultSize(t *testing.T) {
	tracker := NewTracker(0)
	for i := 0; i < DefaultHistorySize+10; i++ {
		tracker.Record(run("r", true, 0))
	}
	assert.Equal(t, DefaultHistorySize, tracker.Snapshot(nil).WindowRuns)
}

func TestSnapshot(t *testing.T) {
	tracker := NewTracker(10)
	tracker.Record(run("a", true, 90))
	tracker.Record(run("b", false, 30))
	tracker.Record(run("c", true, 60))
	tracker.Record(run("d", true, 20))

	stats := map[models.BackendKind]models.BackendStats{
		models.BackendNative: {Invocations: 4, Successes: 3, TotalDuration: 4 * time.Second},
		models.BackendLegacy: {},
	}

	first := tracker.Snapshot(stats)
	second := tracker.Snapshot(stats)
	assert.Equal(t, first, second)

	assert.Equal(t, int64(4), first.TotalRuns)
	assert.InDelta(t, 0.75, first.SuccessRate, 1e-9)
	assert.InDelta(t, 50.0, first.AvgParallelEfficiency, 1e-9)
	assert.InDelta(t, 0.75, first.Backends[models.BackendNative].SuccessRate, 1e-9)
	assert.Equal(t, time.Second, first.Backends[models.BackendNative].AverageDuration)
	assert.Equal(t, 0.0, first.Backends[models.BackendLegacy].SuccessRate)
}

func TestSnapshotEmpty(t *testing.T) {
	summary := NewTracker(5).Snapshot(nil)
	assert.Equal(t, int64(0), summary.TotalRuns)
	assert.Equal(t, 0.0, summary.SuccessRate)
	assert.NotNil(t, summary.Backends)
}

func TestTrackerConcurrentRecord(t *testing.T) {
	tracker := NewTracker(50)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Record(run("r", true, 10))
			tracker.Snapshot(nil)
		}()
	}
	wg.Wait()

	summary := tracker.Snapshot(nil)
	assert.Equal(t, int64(200), summary.TotalRuns)
	assert.Equal(t, 50, summary.WindowRuns)
}

func TestRecommendations(t *testing.T) {
	twoRan := map[string]models.TaskResult{
		"quality":  {Task: "quality", Status: models.StatusSuccess, Success: true},
		"security": {Task: "security", Status: models.StatusFailed},
	}

	tests := []struct {
		name     string
		result   *models.OrchestrationResult
		stats    map[models.BackendKind]models.BackendStats
		contains []string
		excludes []string
	}{
		{
			name:     "high efficiency",
			result:   &models.OrchestrationResult{ParallelEfficiency: 95, Results: twoRan},
			contains: []string{"good use of concurrency"},
		},
		{
			name:     "low efficiency with several tasks",
			result:   &models.OrchestrationResult{ParallelEfficiency: 30, Results: twoRan},
			contains: []string{"raising max parallelism"},
		},
		{
			name: "low efficiency with one task is not flagged",
			result: &models.OrchestrationResult{ParallelEfficiency: 30, Results: map[string]models.TaskResult{
				"quality": {Task: "quality", Status: models.StatusSuccess, Success: true},
			}},
			excludes: []string{"raising max parallelism"},
		},
		{
			name: "critical category remediation",
			result: &models.OrchestrationResult{
				ParallelEfficiency: 60,
				Results:            twoRan,
				FailedTasks:        []string{"security", "accessibility"},
				BlockedTasks:       []string{"deploy", "monitor"},
			},
			contains: []string{"Security checks failed for security", "2 task(s) were not run", "deploy, monitor"},
			excludes: []string{"accessibility"},
		},
		{
			name: "blocked note names the critical failure",
			result: &models.OrchestrationResult{
				ParallelEfficiency: 60,
				Results: map[string]models.TaskResult{
					"build":         {Task: "build", Status: models.StatusFailed},
					"accessibility": {Task: "accessibility", Status: models.StatusFailed},
					"deploy":        {Task: "deploy", Status: models.StatusBlocked},
				},
				FailedTasks:  []string{"accessibility", "build"},
				BlockedTasks: []string{"deploy"},
				Plan: &models.ExecutionPlan{Tasks: map[string]models.TaskSpec{
					"build":         {Name: "build", Phase: models.PhasePreparation},
					"accessibility": {Name: "accessibility", Phase: models.PhaseAnalysis, CanFail: true},
					"deploy":        {Name: "deploy", Phase: models.PhaseExecution},
				}},
			},
			contains: []string{"1 task(s) were not run after the critical failure of build: deploy."},
			excludes: []string{"failure of accessibility"},
		},
		{
			name: "blocking gate",
			result: &models.OrchestrationResult{
				ParallelEfficiency: 60,
				Results: map[string]models.TaskResult{
					"quality": {Task: "quality", Status: models.StatusSuccess, Success: true},
				},
				FailedTasks:   []string{"quality"},
				BlockingGates: []string{"code_quality"},
			},
			contains: []string{"Blocking quality gate code_quality failed"},
			excludes: []string{"Code quality failed"},
		},
		{
			name:   "native clearly better",
			result: &models.OrchestrationResult{ParallelEfficiency: 60},
			stats: map[models.BackendKind]models.BackendStats{
				models.BackendNative: {Invocations: 10, Successes: 9},
				models.BackendLegacy: {Invocations: 10, Successes: 5},
			},
			contains: []string{"consider switching to native mode"},
		},
		{
			name:   "native lead too small",
			result: &models.OrchestrationResult{ParallelEfficiency: 60},
			stats: map[models.BackendKind]models.BackendStats{
				models.BackendNative: {Invocations: 10, Successes: 9},
				models.BackendLegacy: {Invocations: 10, Successes: 8},
			},
			excludes: []string{"native mode"},
		},
		{
			name:   "legacy unused",
			result: &models.OrchestrationResult{ParallelEfficiency: 60},
			stats: map[models.BackendKind]models.BackendStats{
				models.BackendNative: {Invocations: 10, Successes: 10},
				models.BackendLegacy: {},
			},
			excludes: []string{"native mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joined := strings.Join(Recommendations(tt.result, tt.stats), "\n")
			for _, want := range tt.contains {
				assert.Contains(t, joined, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, joined, unwanted)
			}
		})
	}
}

func TestRecommendationsNil(t *testing.T) {
	assert.Empty(t, Recommendations(nil, nil))
	assert.NotNil(t, Recommendations(nil, nil))
}

func TestCollectorObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	result := &models.OrchestrationResult{
		Success:            false,
		TotalDuration:      2 * time.Second,
		ParallelEfficiency: 72,
		Results: map[string]models.TaskResult{
			"quality": {Task: "quality", Status: models.StatusSuccess, Success: true, BackendUsed: models.BackendNative, Duration: time.Second},
			"build":   {Task: "build", Status: models.StatusFailed, BackendUsed: models.BackendLegacy},
			"deploy":  {Task: "deploy", Status: models.StatusBlocked},
		},
	}
	require.NoError(t, c.ObserveRun(context.Background(), result))
	c.ObserveFallback("build", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues("failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Runs.WithLabelValues("success")))
	assert.Equal(t, 72.0, testutil.ToFloat64(c.ParallelEfficiency))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TaskExecutions.WithLabelValues("deploy", "blocked", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TaskExecutions.WithLabelValues("build", "failed", "legacy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BackendFallbacks))
}

func TestCollectorWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	require.NoError(t, c.ObserveRun(context.Background(), &models.OrchestrationResult{Success: true}))

	path := filepath.Join(t.TempDir(), "textfile", "ccom.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ccom_runs_total{result="success"} 1`)
}
