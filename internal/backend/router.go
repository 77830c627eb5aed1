package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/debashishroy00/ccom/internal/models"
)

const instrumentationName = "github.com/debashishroy00/ccom/internal/backend"

// RouterConfig configures a Router.
type RouterConfig struct {
	Mode            Mode
	FallbackEnabled bool
	Logger          *zap.Logger
	TracerProvider  trace.TracerProvider

	// OnFallback, when set, is called each time a native raise is retried
	// through the legacy backend.
	OnFallback func(task string, err error)
}

// Router dispatches invocations to the native or legacy backend according to
// the current mode and records statistics for every attempt.
type Router struct {
	native   Backend
	legacy   Backend
	mode     atomic.Int32
	fallback bool

	mu    sync.Mutex
	stats map[models.BackendKind]*models.BackendStats

	logger     *zap.Logger
	tracer     trace.Tracer
	onFallback func(task string, err error)
}

// NewRouter creates a Router. Either backend may be nil, in which case
// selecting it raises ErrNoBackend.
func NewRouter(native, legacy Backend, cfg RouterConfig) (*Router, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("invalid backend mode %v", cfg.Mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	r := &Router{
		native:   native,
		legacy:   legacy,
		fallback: cfg.FallbackEnabled,
		stats: map[models.BackendKind]*models.BackendStats{
			models.BackendNative: {},
			models.BackendLegacy: {},
		},
		logger:     logger,
		tracer:     tp.Tracer(instrumentationName),
		onFallback: cfg.OnFallback,
	}
	r.mode.Store(int32(cfg.Mode))
	return r, nil
}

// Mode returns the global routing mode.
func (r *Router) Mode() Mode {
	return Mode(r.mode.Load())
}

// SetMode changes the global routing mode.
func (r *Router) SetMode(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid backend mode %v", mode)
	}
	r.mode.Store(int32(mode))
	return nil
}

// FallbackEnabled reports whether hybrid mode retries native raises via legacy.
func (r *Router) FallbackEnabled() bool {
	return r.fallback
}

// Stats returns a snapshot of the per-backend counters.
func (r *Router) Stats() map[models.BackendKind]models.BackendStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[models.BackendKind]models.BackendStats, len(r.stats))
	for kind, s := range r.stats {
		out[kind] = *s
	}
	return out
}

// Invoke runs task through the backend selected by the effective mode: the
// override carried by ctx (see WithMode) or else the global mode. It never
// panics and never returns an error; raises are folded into a failed result.
func (r *Router) Invoke(ctx context.Context, task string, params map[string]any) models.TaskResult {
	mode, overridden := ModeFromContext(ctx)
	if !overridden || !mode.Valid() {
		mode = r.Mode()
	}

	ctx, span := r.tracer.Start(ctx, "backend.invoke",
		trace.WithAttributes(
			attribute.String("task", task),
			attribute.String("mode", mode.String()),
			attribute.Bool("mode_override", overridden),
		))
	defer span.End()

	var result models.TaskResult
	switch mode {
	case ModeNative:
		result = r.single(ctx, models.BackendNative, task, params)
	case ModeLegacy:
		result = r.single(ctx, models.BackendLegacy, task, params)
	case ModeHybrid:
		result = r.hybrid(ctx, span, task, params)
	}

	span.SetAttributes(
		attribute.String("backend", string(result.BackendUsed)),
		attribute.Bool("success", result.Success),
	)
	if !result.Success {
		span.SetStatus(codes.Error, "task failed")
	}
	return result
}

func (r *Router) single(ctx context.Context, kind models.BackendKind, task string, params map[string]any) models.TaskResult {
	result, _, err := r.attempt(ctx, kind, task, params)
	if err != nil {
		return raisedResult(task, kind, err)
	}
	return result
}

func (r *Router) hybrid(ctx context.Context, span trace.Span, task string, params map[string]any) models.TaskResult {
	result, nativeElapsed, nativeErr := r.attempt(ctx, models.BackendNative, task, params)
	if nativeErr == nil {
		return result
	}
	span.RecordError(nativeErr)

	if !r.fallback || ctx.Err() != nil {
		failed := raisedResult(task, models.BackendNative, nativeErr)
		failed.Duration = nativeElapsed
		return failed
	}

	r.logger.Warn("native backend raised, falling back to legacy",
		zap.String("task", task),
		zap.Duration("native_elapsed", nativeElapsed),
		zap.Error(nativeErr))
	span.SetAttributes(attribute.Bool("fallback", true))
	if r.onFallback != nil {
		r.onFallback(task, nativeErr)
	}

	result, legacyElapsed, legacyErr := r.attempt(ctx, models.BackendLegacy, task, params)
	if legacyErr != nil {
		span.RecordError(legacyErr)
		failed := raisedResult(task, models.BackendLegacy, legacyErr)
		failed.Errors = append([]string{nativeErr.Error()}, failed.Errors...)
		failed.Duration = nativeElapsed + legacyElapsed
		return failed
	}
	// The task's time includes the native attempt that raised.
	result.Duration += nativeElapsed
	return result
}

// attempt calls one backend and records the attempt in that backend's stats
// before returning. A cancelled ctx ends the attempt as a raise; stats are
// final once attempt returns.
func (r *Router) attempt(ctx context.Context, kind models.BackendKind, task string, params map[string]any) (models.TaskResult, time.Duration, error) {
	b := r.native
	if kind == models.BackendLegacy {
		b = r.legacy
	}

	start := time.Now()
	result, err := invoke(ctx, b, kind, task, params)
	elapsed := time.Since(start)
	r.record(kind, err == nil && result.Success, elapsed)
	if err != nil {
		return models.TaskResult{}, elapsed, err
	}

	result.Task = task
	result.BackendUsed = kind
	if result.Duration == 0 {
		result.Duration = elapsed
	}
	result.Status = models.StatusFailed
	if result.Success {
		result.Status = models.StatusSuccess
	}
	return result, elapsed, nil
}

type invocation struct {
	result models.TaskResult
	err    error
}

// invoke runs b until it returns or ctx is done, converting panics into
// raises. A backend still running when ctx ends is abandoned and its late
// result is dropped.
func invoke(ctx context.Context, b Backend, kind models.BackendKind, task string, params map[string]any) (models.TaskResult, error) {
	if b == nil {
		return models.TaskResult{}, &BackendInvocationError{Backend: kind, Task: task, Err: ErrNoBackend}
	}

	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- invocation{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		result, err := b.Invoke(ctx, task, params)
		done <- invocation{result: result, err: err}
	}()

	select {
	case inv := <-done:
		if inv.err != nil {
			return models.TaskResult{}, &BackendInvocationError{Backend: kind, Task: task, Err: inv.err}
		}
		return inv.result, nil
	case <-ctx.Done():
		return models.TaskResult{}, &BackendInvocationError{Backend: kind, Task: task, Err: ctx.Err()}
	}
}

func (r *Router) record(kind models.BackendKind, success bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats[kind]
	s.Invocations++
	if success {
		s.Successes++
	}
	s.TotalDuration += elapsed
}

func raisedResult(task string, kind models.BackendKind, err error) models.TaskResult {
	return models.TaskResult{
		Task:        task,
		Status:      models.StatusFailed,
		Success:     false,
		Message:     "backend invocation failed",
		Errors:      []string{err.Error()},
		BackendUsed: kind,
	}
}
