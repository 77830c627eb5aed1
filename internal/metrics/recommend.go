package metrics

import (
	"fmt"
	"strings"

	"github.com/debashishroy00/ccom/internal/models"
)

const (
	highEfficiency = 80.0
	lowEfficiency  = 50.0

	// nativePreferenceDelta is the success-rate lead, as a fraction, at which
	// switching fully to native mode is suggested.
	nativePreferenceDelta = 0.20
)

// criticalCategories maps a task-name fragment to remediation advice, in
// match priority order.
var criticalCategories = []struct {
	category string
	advice   string
}{
	{"security", "Security checks failed for %s: review the reported vulnerabilities and fix or suppress them explicitly before retrying."},
	{"quality", "Code quality failed for %s: run the linter locally and fix reported issues before committing."},
	{"test", "Tests failed for %s: inspect the failing cases and rerun the suite before building or deploying."},
	{"build", "Build failed for %s: check compiler output and pinned dependency versions."},
	{"deploy", "Deployment failed for %s: verify the target environment configuration and consider rolling back."},
}

// Recommendations derives actionable notes from one result and the current
// backend stats.
func Recommendations(result *models.OrchestrationResult, stats map[models.BackendKind]models.BackendStats) []string {
	recs := []string{}
	if result == nil {
		return recs
	}

	switch {
	case result.ParallelEfficiency > highEfficiency:
		recs = append(recs, fmt.Sprintf("Parallel efficiency is %.0f%%: the plan is making good use of concurrency.", result.ParallelEfficiency))
	case result.ParallelEfficiency < lowEfficiency && result.ExecutedCount() >= 2:
		recs = append(recs, fmt.Sprintf("Parallel efficiency is only %.0f%%: consider raising max parallelism or loosening task dependencies.", result.ParallelEfficiency))
	}

	for _, task := range result.FailedTasks {
		if res, ok := result.Results[task]; ok && res.Success {
			continue
		}
		if advice, ok := remediation(task); ok {
			recs = append(recs, advice)
		}
	}

	if len(result.BlockedTasks) > 0 {
		blocked := strings.Join(result.BlockedTasks, ", ")
		if causes := criticalFailures(result); len(causes) > 0 {
			recs = append(recs, fmt.Sprintf("%d task(s) were not run after the critical failure of %s: %s.",
				len(result.BlockedTasks), strings.Join(causes, ", "), blocked))
		} else {
			recs = append(recs, fmt.Sprintf("%d task(s) were not run because of a critical failure: %s.",
				len(result.BlockedTasks), blocked))
		}
	}

	for _, gate := range result.BlockingGates {
		recs = append(recs, fmt.Sprintf("Blocking quality gate %s failed: raise the metric above its threshold to unblock the pipeline.", gate))
	}

	native, nativeOK := stats[models.BackendNative]
	legacy, legacyOK := stats[models.BackendLegacy]
	if nativeOK && legacyOK && native.Invocations > 0 && legacy.Invocations > 0 {
		delta := native.SuccessRate() - legacy.SuccessRate()
		if delta > nativePreferenceDelta {
			recs = append(recs, fmt.Sprintf("Native backend succeeds %.0f%% of the time versus %.0f%% for legacy: consider switching to native mode.",
				native.SuccessRate()*100, legacy.SuccessRate()*100))
		}
	}

	return recs
}

// criticalFailures returns the failed tasks that halted the run: tasks that
// may not fail, and tasks stopped by a blocking gate. It needs the plan to
// know which tasks may fail.
func criticalFailures(result *models.OrchestrationResult) []string {
	if result.Plan == nil {
		return nil
	}
	var causes []string
	for _, name := range result.FailedTasks {
		spec, ok := result.Plan.Tasks[name]
		if !ok {
			continue
		}
		if res := result.Results[name]; !spec.CanFail || res.Success {
			causes = append(causes, name)
		}
	}
	return causes
}

func remediation(task string) (string, bool) {
	lower := strings.ToLower(task)
	for _, c := range criticalCategories {
		if strings.Contains(lower, c.category) {
			return fmt.Sprintf(c.advice, task), true
		}
	}
	return "", false
}
