package models

import "time"

// TaskStatus is the terminal state of a task within one orchestration.
type TaskStatus string

// Task execution status constants
const (
	StatusSuccess TaskStatus = "success" // Task completed successfully
	StatusFailed  TaskStatus = "failed"  // Task ran and reported failure (or its backend raised)
	StatusTimeout TaskStatus = "timeout" // Task exceeded its timeout
	StatusBlocked TaskStatus = "blocked" // Task never ran because an earlier wave failed critically
)

// BackendKind identifies which backend actually served an invocation.
type BackendKind string

const (
	BackendNative BackendKind = "native"
	BackendLegacy BackendKind = "legacy"
)

// TaskResult represents the result of executing a single task
type TaskResult struct {
	Task        string             `json:"task"`
	Status      TaskStatus         `json:"status"`
	Success     bool               `json:"success"`
	Message     string             `json:"message,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Duration    time.Duration      `json:"duration_ns"`
	BackendUsed BackendKind        `json:"backend_used,omitempty"`
	Gates       map[string]bool    `json:"gates,omitempty"` // gate name -> passed
}

// DurationMs returns the task duration in whole milliseconds.
func (r TaskResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Ran reports whether the task was actually invoked.
func (r TaskResult) Ran() bool {
	return r.Status != StatusBlocked && r.Status != ""
}

// BackendStats holds rolling counters for one backend.
type BackendStats struct {
	Invocations   int64         `json:"invocations"`
	Successes     int64         `json:"successes"`
	TotalDuration time.Duration `json:"total_duration_ns"`
}

// SuccessRate returns successes / invocations, or 0 when unused.
func (s BackendStats) SuccessRate() float64 {
	if s.Invocations == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Invocations)
}

// AverageDuration returns total duration / invocations, or 0 when unused.
func (s BackendStats) AverageDuration() time.Duration {
	if s.Invocations == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Invocations)
}

// OrchestrationResult represents the aggregate result of one orchestration call.
// It is built once by the execution engine and not modified afterwards.
type OrchestrationResult struct {
	RunID              string                `json:"run_id"`
	Event              string                `json:"event,omitempty"`
	Success            bool                  `json:"success"`
	Results            map[string]TaskResult `json:"results"`
	TotalDuration      time.Duration         `json:"total_duration_ns"`
	ParallelEfficiency float64               `json:"parallel_efficiency"`
	FailedTasks        []string              `json:"failed_tasks"`
	BlockedTasks       []string              `json:"blocked_tasks,omitempty"`
	BlockingGates      []string              `json:"blocking_gates,omitempty"`
	Recommendations    []string              `json:"recommendations"`
	Plan               *ExecutionPlan        `json:"-"`
	StartedAt          time.Time             `json:"started_at"`
}

// TotalDurationMs returns the wall-clock duration in whole milliseconds.
func (r *OrchestrationResult) TotalDurationMs() int64 {
	return r.TotalDuration.Milliseconds()
}

// ExecutedCount returns how many tasks were actually invoked.
func (r *OrchestrationResult) ExecutedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Ran() {
			n++
		}
	}
	return n
}

// QualityGate is a static threshold applied to a named metric of a task result.
type QualityGate struct {
	Name      string  `yaml:"name" json:"name"`
	MetricKey string  `yaml:"metric" json:"metric"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Blocking  bool    `yaml:"blocking" json:"blocking"`
}
