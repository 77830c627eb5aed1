package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/debashishroy00/ccom/internal/models"
	"github.com/debashishroy00/ccom/internal/quality"
)

const instrumentationName = "github.com/debashishroy00/ccom/internal/executor"

const (
	// DefaultMaxParallelism bounds concurrent tasks within one wave.
	DefaultMaxParallelism = 4
	// DefaultTaskTimeout applies to tasks without their own timeout.
	DefaultTaskTimeout = 300 * time.Second
)

// TaskInvoker runs one task and always returns a result. *backend.Router
// satisfies it.
type TaskInvoker interface {
	Invoke(ctx context.Context, task string, params map[string]any) models.TaskResult
}

// WaveConfig configures a WaveExecutor. Zero values select defaults.
type WaveConfig struct {
	MaxParallelism int
	DefaultTimeout time.Duration
	Gates          []models.QualityGate
	Logger         Logger
	Diagnostics    *zap.Logger
	TracerProvider trace.TracerProvider
}

// WaveExecutor runs plan waves sequentially with bounded parallelism inside
// each wave.
type WaveExecutor struct {
	invoker        TaskInvoker
	logger         Logger
	gates          []models.QualityGate
	maxParallelism int
	defaultTimeout time.Duration
	zlog           *zap.Logger
	tracer         trace.Tracer
}

// NewWaveExecutor constructs a WaveExecutor around invoker.
func NewWaveExecutor(invoker TaskInvoker, cfg WaveConfig) *WaveExecutor {
	w := &WaveExecutor{
		invoker:        invoker,
		logger:         cfg.Logger,
		gates:          cfg.Gates,
		maxParallelism: cfg.MaxParallelism,
		defaultTimeout: cfg.DefaultTimeout,
		zlog:           cfg.Diagnostics,
	}
	if w.maxParallelism <= 0 {
		w.maxParallelism = DefaultMaxParallelism
	}
	if w.defaultTimeout <= 0 {
		w.defaultTimeout = DefaultTaskTimeout
	}
	if w.zlog == nil {
		w.zlog = zap.NewNop()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	w.tracer = tp.Tracer(instrumentationName)
	return w
}

// Execute runs every wave of plan and aggregates the outcome. It never
// returns an error: task failures, timeouts and gate failures are recorded
// in the result, and waves after a critical failure are marked blocked.
func (w *WaveExecutor) Execute(ctx context.Context, plan *models.ExecutionPlan, params map[string]any) *models.OrchestrationResult {
	startedAt := time.Now()
	result := &models.OrchestrationResult{
		Success:         true,
		Results:         make(map[string]models.TaskResult, plan.TaskCount()),
		FailedTasks:     []string{},
		Recommendations: []string{},
		Plan:            plan,
		StartedAt:       startedAt,
	}
	if plan == nil {
		return result
	}

	var taskTime time.Duration
	var haltReason string
	for i, wave := range plan.Waves {
		if haltReason == "" {
			if err := ctx.Err(); err != nil {
				w.zlog.Warn("orchestration cancelled before wave start",
					zap.String("wave", wave.Name), zap.Error(err))
				result.Success = false
				haltReason = err.Error()
			}
		}
		if haltReason != "" {
			w.blockWave(result, wave, haltReason)
			continue
		}

		waveResults := w.executeWave(ctx, i, wave, plan, params)

		var critical []string
		for _, res := range waveResults {
			taskTime += res.Duration
			if w.settle(result, plan.Tasks[res.Task], &res) {
				critical = append(critical, res.Task)
			}
			result.Results[res.Task] = res
		}

		if len(critical) > 0 {
			result.Success = false
			haltReason = fmt.Sprintf("critical failure in %s: %s", wave.Name, strings.Join(critical, ", "))
			w.zlog.Info("critical failure halts remaining waves",
				zap.String("wave", wave.Name),
				zap.Strings("tasks", critical))
		}
	}

	result.TotalDuration = time.Since(startedAt)
	result.ParallelEfficiency = ParallelEfficiency(taskTime, result.TotalDuration)
	return result
}

// settle applies gates to res, records failures on result and reports whether
// res is a critical failure.
func (w *WaveExecutor) settle(result *models.OrchestrationResult, spec models.TaskSpec, res *models.TaskResult) bool {
	critical := false
	evaluation, gateErr := quality.Check(*res, w.gates)
	if len(evaluation) > 0 {
		res.Gates = evaluation
	}

	if !res.Success {
		result.FailedTasks = append(result.FailedTasks, res.Task)
		critical = !spec.CanFail
	}

	var blocked *quality.GateBlockedError
	if errors.As(gateErr, &blocked) {
		w.zlog.Warn("blocking quality gate failed",
			zap.String("task", res.Task),
			zap.Strings("gates", blocked.Gates),
			zap.Bool("task_success", res.Success))
		res.Warnings = append(res.Warnings, gateErr.Error())
		if res.Success {
			result.FailedTasks = append(result.FailedTasks, res.Task)
		}
		for _, g := range blocked.Gates {
			result.BlockingGates = appendUnique(result.BlockingGates, g)
		}
		critical = true
	}

	if w.logger != nil {
		_ = w.logger.LogTaskResult(*res)
	}
	return critical
}

func (w *WaveExecutor) blockWave(result *models.OrchestrationResult, wave models.Wave, reason string) {
	for _, name := range wave.Tasks {
		res := models.TaskResult{
			Task:    name,
			Status:  models.StatusBlocked,
			Success: false,
			Message: "not run: " + reason,
		}
		result.Results[name] = res
		result.BlockedTasks = append(result.BlockedTasks, name)
		if w.logger != nil {
			_ = w.logger.LogTaskResult(res)
		}
	}
}

type taskExecutionResult struct {
	index  int
	result models.TaskResult
}

// executeWave runs every task of wave and returns their results in wave
// order. It returns only once every task is terminal.
func (w *WaveExecutor) executeWave(ctx context.Context, index int, wave models.Wave, plan *models.ExecutionPlan, params map[string]any) []models.TaskResult {
	ctx, span := w.tracer.Start(ctx, "orchestrator.wave",
		trace.WithAttributes(
			attribute.Int("wave.index", index),
			attribute.String("wave.name", wave.Name),
			attribute.Int("wave.tasks", len(wave.Tasks)),
		))
	defer span.End()

	if w.logger != nil {
		w.logger.LogWaveStart(wave)
	}
	waveStart := time.Now()

	results := make([]models.TaskResult, len(wave.Tasks))

	if len(wave.Tasks) == 1 {
		results[0] = w.runTask(ctx, plan.Tasks[wave.Tasks[0]], params)
	} else {
		maxConcurrency := w.maxParallelism
		if maxConcurrency > len(wave.Tasks) {
			maxConcurrency = len(wave.Tasks)
		}

		semaphore := make(chan struct{}, maxConcurrency)
		resultsCh := make(chan taskExecutionResult, len(wave.Tasks))
		var wg sync.WaitGroup

		for i, name := range wave.Tasks {
			spec := plan.Tasks[name]
			semaphore <- struct{}{}
			wg.Add(1)
			go func(i int, spec models.TaskSpec) {
				defer wg.Done()
				defer func() { <-semaphore }()
				resultsCh <- taskExecutionResult{index: i, result: w.runTask(ctx, spec, params)}
			}(i, spec)
		}

		go func() {
			wg.Wait()
			close(resultsCh)
		}()

		for r := range resultsCh {
			results[r.index] = r.result
		}
	}

	for _, res := range results {
		if !res.Success {
			span.SetStatus(codes.Error, "wave had failed tasks")
			break
		}
	}

	if w.logger != nil {
		w.logger.LogWaveComplete(wave, time.Since(waveStart), results)
	}
	return results
}

// runTask invokes one task under its timeout. The engine stops waiting at the
// deadline even if the backend ignores cancellation; the abandoned invocation
// finishes in the background and its result is discarded.
func (w *WaveExecutor) runTask(ctx context.Context, spec models.TaskSpec, params map[string]any) models.TaskResult {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = w.defaultTimeout
	}

	ctx, span := w.tracer.Start(ctx, "orchestrator.task",
		trace.WithAttributes(
			attribute.String("task", spec.Name),
			attribute.String("phase", string(spec.Phase)),
			attribute.Bool("can_fail", spec.CanFail),
		))
	defer span.End()

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan models.TaskResult, 1)
	go func() {
		done <- w.invoker.Invoke(taskCtx, spec.Name, params)
	}()

	var res models.TaskResult
	select {
	case res = <-done:
		if !res.Success && IsTimeoutError(interruption(ctx, taskCtx, spec.Name, timeout)) {
			res = timeoutResult(spec.Name, timeout, time.Since(start))
		}
	case <-taskCtx.Done():
		err := interruption(ctx, taskCtx, spec.Name, timeout)
		if IsTimeoutError(err) {
			res = timeoutResult(spec.Name, timeout, time.Since(start))
		} else {
			res = models.TaskResult{
				Task:     spec.Name,
				Status:   models.StatusFailed,
				Message:  "cancelled",
				Errors:   []string{err.Error()},
				Duration: time.Since(start),
			}
		}
	}

	if res.Task == "" {
		res.Task = spec.Name
	}
	if res.Status == "" {
		res.Status = models.StatusFailed
		if res.Success {
			res.Status = models.StatusSuccess
		}
	}

	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.String("backend", string(res.BackendUsed)),
		attribute.Int64("duration_ms", res.DurationMs()),
	)
	if !res.Success {
		span.SetStatus(codes.Error, res.Message)
	}
	return res
}

// interruption reports why taskCtx ended: the run's own error when the caller
// cancelled, a *TaskTimeoutError when only the task deadline passed, or nil.
func interruption(ctx, taskCtx context.Context, task string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		return &TaskTimeoutError{Task: task, Timeout: timeout}
	}
	return taskCtx.Err()
}

func timeoutResult(task string, timeout, elapsed time.Duration) models.TaskResult {
	err := &TaskTimeoutError{Task: task, Timeout: timeout}
	return models.TaskResult{
		Task:     task,
		Status:   models.StatusTimeout,
		Success:  false,
		Message:  err.Error(),
		Errors:   []string{"timeout"},
		Duration: elapsed,
	}
}

// ParallelEfficiency returns total task time over wall-clock time as a
// percentage, capped at 100.
func ParallelEfficiency(taskTime, wallClock time.Duration) float64 {
	if wallClock <= 0 || taskTime <= 0 {
		return 0
	}
	efficiency := float64(taskTime) / float64(wallClock) * 100
	if efficiency > 100 {
		return 100
	}
	return efficiency
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
