// Package quality evaluates task results against static metric thresholds.
//
// A task can succeed functionally and still miss a quality bar. The two
// signals are kept apart: Evaluate never touches TaskResult.Success, and the
// engine decides whether a failed blocking gate halts the plan.
package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/debashishroy00/ccom/internal/models"
)

// DefaultGates returns the built-in gate table.
func DefaultGates() []models.QualityGate {
	return []models.QualityGate{
		{Name: "code_quality", MetricKey: "quality_score", Threshold: 80, Blocking: true},
		{Name: "security_score", MetricKey: "security_score", Threshold: 90, Blocking: true},
		{Name: "test_coverage", MetricKey: "coverage", Threshold: 70},
		{Name: "accessibility_score", MetricKey: "accessibility_score", Threshold: 85},
		{Name: "performance_score", MetricKey: "performance_score", Threshold: 75},
	}
}

// GateBlockedError reports blocking gates that failed for a task.
type GateBlockedError struct {
	Task  string
	Gates []string
}

// Error implements the error interface for GateBlockedError.
func (e *GateBlockedError) Error() string {
	return fmt.Sprintf("task %s: blocking quality gate(s) failed: %s", e.Task, strings.Join(e.Gates, ", "))
}

// Evaluate checks result against every gate whose metric is present in
// result.Metrics. Gates for absent metrics are left out of the map.
func Evaluate(result models.TaskResult, gates []models.QualityGate) map[string]bool {
	passed := make(map[string]bool)
	for _, g := range gates {
		value, ok := result.Metrics[g.MetricKey]
		if !ok {
			continue
		}
		passed[g.Name] = value >= g.Threshold
	}
	return passed
}

// BlockingFailures returns the sorted names of blocking gates that failed in
// an evaluation produced by Evaluate.
func BlockingFailures(evaluation map[string]bool, gates []models.QualityGate) []string {
	var failed []string
	for _, g := range gates {
		if !g.Blocking {
			continue
		}
		if ok, evaluated := evaluation[g.Name]; evaluated && !ok {
			failed = append(failed, g.Name)
		}
	}
	sort.Strings(failed)
	return failed
}

// Check evaluates result and returns the evaluation together with a
// *GateBlockedError when any blocking gate failed.
func Check(result models.TaskResult, gates []models.QualityGate) (map[string]bool, error) {
	evaluation := Evaluate(result, gates)
	if blocked := BlockingFailures(evaluation, gates); len(blocked) > 0 {
		return evaluation, &GateBlockedError{Task: result.Task, Gates: blocked}
	}
	return evaluation, nil
}
