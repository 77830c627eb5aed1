// Package metrics keeps a bounded in-memory history of orchestration runs,
// derives summary statistics and recommendations from it, and exports run
// metrics to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/debashishroy00/ccom/internal/models"
)

// DefaultHistorySize is the number of runs kept when no size is configured.
const DefaultHistorySize = 100

// RunRecord is the part of an OrchestrationResult kept in history.
type RunRecord struct {
	RunID              string
	Event              string
	Success            bool
	ParallelEfficiency float64
	Duration           time.Duration
	FailedTasks        []string
	StartedAt          time.Time
}

// BackendSummary is the derived view of one backend's counters.
type BackendSummary struct {
	Invocations     int64         `json:"invocations"`
	Successes       int64         `json:"successes"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration_ns"`
}

// Summary is a point-in-time view of orchestrator metrics.
type Summary struct {
	TotalRuns             int64                                 `json:"total_runs"`
	WindowRuns            int                                   `json:"window_runs"`
	SuccessRate           float64                               `json:"success_rate"`
	AvgParallelEfficiency float64                               `json:"avg_parallel_efficiency"`
	Backends              map[models.BackendKind]BackendSummary `json:"backends"`
}

// Tracker is a fixed-size ring buffer of run records. The oldest record is
// evicted when the buffer is full.
type Tracker struct {
	mu      sync.RWMutex
	records []RunRecord
	next    int
	full    bool
	total   int64
}

// NewTracker creates a Tracker holding up to size records.
func NewTracker(size int) *Tracker {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Tracker{records: make([]RunRecord, size)}
}

// Record appends result to the history.
func (t *Tracker) Record(result *models.OrchestrationResult) {
	if result == nil {
		return
	}
	failed := make([]string, len(result.FailedTasks))
	copy(failed, result.FailedTasks)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[t.next] = RunRecord{
		RunID:              result.RunID,
		Event:              result.Event,
		Success:            result.Success,
		ParallelEfficiency: result.ParallelEfficiency,
		Duration:           result.TotalDuration,
		FailedTasks:        failed,
		StartedAt:          result.StartedAt,
	}
	t.next = (t.next + 1) % len(t.records)
	if t.next == 0 {
		t.full = true
	}
	t.total++
}

func (t *Tracker) ordered() []RunRecord {
	if !t.full {
		out := make([]RunRecord, t.next)
		copy(out, t.records[:t.next])
		return out
	}
	out := make([]RunRecord, 0, len(t.records))
	out = append(out, t.records[t.next:]...)
	out = append(out, t.records[:t.next]...)
	return out
}

// Snapshot summarizes the retained history together with backend stats.
// TotalRuns counts every recorded run; rates cover the retained window.
func (t *Tracker) Snapshot(stats map[models.BackendKind]models.BackendStats) Summary {
	t.mu.RLock()
	history := t.ordered()
	total := t.total
	t.mu.RUnlock()

	s := Summary{
		TotalRuns:  total,
		WindowRuns: len(history),
		Backends:   make(map[models.BackendKind]BackendSummary, len(stats)),
	}

	if len(history) > 0 {
		var succeeded int
		var efficiency float64
		for _, r := range history {
			if r.Success {
				succeeded++
			}
			efficiency += r.ParallelEfficiency
		}
		s.SuccessRate = float64(succeeded) / float64(len(history))
		s.AvgParallelEfficiency = efficiency / float64(len(history))
	}

	for kind, st := range stats {
		s.Backends[kind] = BackendSummary{
			Invocations:     st.Invocations,
			Successes:       st.Successes,
			SuccessRate:     st.SuccessRate(),
			AverageDuration: st.AverageDuration(),
		}
	}
	return s
}
