package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/debashishroy00/ccom/internal/backend"
	"github.com/debashishroy00/ccom/internal/metrics"
	"github.com/debashishroy00/ccom/internal/models"
	"github.com/debashishroy00/ccom/internal/quality"
	"github.com/debashishroy00/ccom/internal/registry"
)

// Logger defines the interface for logging orchestration progress and results.
type Logger interface {
	LogWaveStart(wave models.Wave)
	LogWaveComplete(wave models.Wave, duration time.Duration, results []models.TaskResult)
	LogTaskResult(result models.TaskResult) error
	LogSummary(result models.OrchestrationResult)
}

// TriggerResolver maps an event name to the tasks to run for it.
type TriggerResolver interface {
	Resolve(event string) []string
}

// RunObserver receives every finished orchestration (audit sinks, metric
// exporters). Observer errors are logged and never change the result.
type RunObserver interface {
	ObserveRun(ctx context.Context, result *models.OrchestrationResult) error
}

// Config holds orchestrator tuning.
type Config struct {
	MaxParallelism  int
	DefaultTimeout  time.Duration
	FallbackEnabled bool
	HistorySize     int
	Mode            backend.Mode
	Gates           []models.QualityGate
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxParallelism:  DefaultMaxParallelism,
		DefaultTimeout:  DefaultTaskTimeout,
		FallbackEnabled: true,
		HistorySize:     metrics.DefaultHistorySize,
		Mode:            backend.ModeHybrid,
		Gates:           quality.DefaultGates(),
	}
}

// Dependencies are the collaborators an Orchestrator is built from. Registry,
// Resolver and at least one backend are required.
type Dependencies struct {
	Registry       *registry.Registry
	Resolver       TriggerResolver
	Native         backend.Backend
	Legacy         backend.Backend
	Logger         Logger
	Diagnostics    *zap.Logger
	TracerProvider trace.TracerProvider
	Observers      []RunObserver
	OnFallback     func(task string, err error)
}

// Orchestrator plans and runs agent tasks for events or explicit wave lists.
// All state lives on the instance; several orchestrators can coexist.
type Orchestrator struct {
	registry  *registry.Registry
	resolver  TriggerResolver
	router    *backend.Router
	waves     *WaveExecutor
	history   *metrics.Tracker
	logger    Logger
	observers []RunObserver
	zlog      *zap.Logger
	tracer    trace.Tracer

	observeMu sync.Mutex
}

// New creates an Orchestrator.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("trigger resolver is required")
	}
	if deps.Native == nil && deps.Legacy == nil {
		return nil, fmt.Errorf("at least one backend is required")
	}
	if cfg.MaxParallelism < 1 {
		return nil, fmt.Errorf("max parallelism must be >= 1, got %d", cfg.MaxParallelism)
	}
	if cfg.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("default timeout must be > 0, got %v", cfg.DefaultTimeout)
	}

	zlog := deps.Diagnostics
	if zlog == nil {
		zlog = zap.NewNop()
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	router, err := backend.NewRouter(deps.Native, deps.Legacy, backend.RouterConfig{
		Mode:            cfg.Mode,
		FallbackEnabled: cfg.FallbackEnabled,
		Logger:          zlog,
		TracerProvider:  tp,
		OnFallback:      deps.OnFallback,
	})
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		registry: deps.Registry,
		resolver: deps.Resolver,
		router:   router,
		waves: NewWaveExecutor(router, WaveConfig{
			MaxParallelism: cfg.MaxParallelism,
			DefaultTimeout: cfg.DefaultTimeout,
			Gates:          cfg.Gates,
			Logger:         deps.Logger,
			Diagnostics:    zlog,
			TracerProvider: tp,
		}),
		history:   metrics.NewTracker(cfg.HistorySize),
		logger:    deps.Logger,
		observers: deps.Observers,
		zlog:      zlog,
		tracer:    tp.Tracer(instrumentationName),
	}, nil
}

// RunOption customizes a single orchestration call.
type RunOption func(*runOptions)

type runOptions struct {
	mode    backend.Mode
	hasMode bool
}

// WithMode forces the backend mode for one call only. The orchestrator's
// global mode is not changed, including for calls running concurrently.
func WithMode(mode backend.Mode) RunOption {
	return func(o *runOptions) {
		o.mode = mode
		o.hasMode = true
	}
}

// Plan resolves event and builds its execution plan without running it.
func (o *Orchestrator) Plan(event string) (*models.ExecutionPlan, error) {
	return BuildPlan(o.registry, o.resolver.Resolve(event))
}

// AutoOrchestrate resolves event to tasks, plans them and executes the plan.
// Planning failures are returned before any task runs; execution failures
// are reported in the result.
func (o *Orchestrator) AutoOrchestrate(ctx context.Context, event string, params map[string]any, opts ...RunOption) (*models.OrchestrationResult, error) {
	plan, err := o.Plan(event)
	if err != nil {
		return nil, fmt.Errorf("planning %q: %w", event, err)
	}
	return o.run(ctx, event, plan, params, opts)
}

// SmartExecute runs caller-supplied waves in order. Task names must be
// registered and unique across waves; ordering between waves is trusted.
func (o *Orchestrator) SmartExecute(ctx context.Context, waves [][]string, params map[string]any, opts ...RunOption) (*models.OrchestrationResult, error) {
	plan, err := PlanFromWaves(o.registry, waves)
	if err != nil {
		return nil, fmt.Errorf("planning explicit waves: %w", err)
	}
	return o.run(ctx, "", plan, params, opts)
}

func (o *Orchestrator) run(ctx context.Context, event string, plan *models.ExecutionPlan, params map[string]any, opts []RunOption) (*models.OrchestrationResult, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.hasMode {
		if !ro.mode.Valid() {
			return nil, fmt.Errorf("invalid backend mode %v", ro.mode)
		}
		ctx = backend.WithMode(ctx, ro.mode)
	}

	runID := uuid.NewString()
	mode, overridden := backend.ModeFromContext(ctx)
	if !overridden {
		mode = o.router.Mode()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("event", event),
			attribute.String("mode", mode.String()),
			attribute.Bool("fallback_enabled", o.router.FallbackEnabled()),
			attribute.Int("waves", len(plan.Waves)),
			attribute.Int("tasks", plan.TaskCount()),
		))
	defer span.End()

	o.zlog.Info("orchestration started",
		zap.String("run_id", runID),
		zap.String("event", event),
		zap.String("mode", mode.String()),
		zap.Bool("fallback_enabled", o.router.FallbackEnabled()),
		zap.Int("tasks", plan.TaskCount()))

	result := o.waves.Execute(ctx, plan, params)
	result.RunID = runID
	result.Event = event

	o.history.Record(result)
	result.Recommendations = metrics.Recommendations(result, o.router.Stats())

	span.SetAttributes(
		attribute.Bool("success", result.Success),
		attribute.Float64("parallel_efficiency", result.ParallelEfficiency),
	)
	if !result.Success {
		span.SetStatus(codes.Error, "orchestration failed")
	}

	if o.logger != nil {
		o.logger.LogSummary(*result)
	}
	// Interrupted runs are still recorded.
	o.notify(context.WithoutCancel(ctx), result)

	return result, nil
}

func (o *Orchestrator) notify(ctx context.Context, result *models.OrchestrationResult) {
	o.observeMu.Lock()
	defer o.observeMu.Unlock()

	for _, obs := range o.observers {
		if err := obs.ObserveRun(ctx, result); err != nil {
			o.zlog.Warn("run observer failed",
				zap.String("run_id", result.RunID),
				zap.Error(err))
		}
	}
}

// SetMode changes the global backend mode.
func (o *Orchestrator) SetMode(mode backend.Mode) error {
	return o.router.SetMode(mode)
}

// Mode returns the global backend mode.
func (o *Orchestrator) Mode() backend.Mode {
	return o.router.Mode()
}

// GetMetrics returns a snapshot of run history and backend statistics.
// Calling it has no side effects.
func (o *Orchestrator) GetMetrics() metrics.Summary {
	return o.history.Snapshot(o.router.Stats())
}

// Registry returns the task registry the orchestrator plans against.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}
