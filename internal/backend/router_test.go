package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/debashishroy00/ccom/internal/models"
)

// countingBackend is a test backend with a mutex-guarded call counter.
type countingBackend struct {
	mu     sync.Mutex
	calls  int
	result models.TaskResult
	err    error
	panics bool
}

func (b *countingBackend) Invoke(ctx context.Context, task string, params map[string]any) (models.TaskResult, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	if b.panics {
		panic("backend exploded")
	}
	return b.result, b.err
}

func (b *countingBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func ok() *countingBackend {
	return &countingBackend{result: models.TaskResult{Success: true, Message: "ok"}}
}

func raising() *countingBackend {
	return &countingBackend{err: errors.New("native unavailable")}
}

func newRouter(t *testing.T, native, legacy Backend, mode Mode, fallback bool) *Router {
	t.Helper()
	r, err := NewRouter(native, legacy, RouterConfig{Mode: mode, FallbackEnabled: fallback})
	require.NoError(t, err)
	return r
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"hybrid", ModeHybrid, false},
		{" Native ", ModeNative, false},
		{"LEGACY", ModeLegacy, false},
		{"turbo", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Mode {
	t.Helper()
	m, err := ParseMode(s)
	require.NoError(t, err)
	return m
}

func TestSetModeRejectsUnknown(t *testing.T) {
	r := newRouter(t, ok(), ok(), ModeHybrid, true)

	assert.Error(t, r.SetMode(Mode(42)))
	assert.Equal(t, ModeHybrid, r.Mode())

	require.NoError(t, r.SetMode(ModeLegacy))
	assert.Equal(t, ModeLegacy, r.Mode())

	_, err := NewRouter(nil, nil, RouterConfig{Mode: Mode(-1)})
	assert.Error(t, err)
}

func TestRouterModes(t *testing.T) {
	tests := []struct {
		name        string
		mode        Mode
		fallback    bool
		native      *countingBackend
		legacy      *countingBackend
		wantSuccess bool
		wantBackend models.BackendKind
		wantNative  int
		wantLegacy  int
	}{
		{
			name:        "native mode uses native only",
			mode:        ModeNative,
			fallback:    true,
			native:      raising(),
			legacy:      ok(),
			wantSuccess: false,
			wantBackend: models.BackendNative,
			wantNative:  1,
		},
		{
			name:        "legacy mode uses legacy only",
			mode:        ModeLegacy,
			native:      ok(),
			legacy:      ok(),
			wantSuccess: true,
			wantBackend: models.BackendLegacy,
			wantLegacy:  1,
		},
		{
			name:        "hybrid prefers native",
			mode:        ModeHybrid,
			fallback:    true,
			native:      ok(),
			legacy:      ok(),
			wantSuccess: true,
			wantBackend: models.BackendNative,
			wantNative:  1,
		},
		{
			name:        "hybrid falls back when native raises",
			mode:        ModeHybrid,
			fallback:    true,
			native:      raising(),
			legacy:      ok(),
			wantSuccess: true,
			wantBackend: models.BackendLegacy,
			wantNative:  1,
			wantLegacy:  1,
		},
		{
			name:        "hybrid falls back when native panics",
			mode:        ModeHybrid,
			fallback:    true,
			native:      &countingBackend{panics: true},
			legacy:      ok(),
			wantSuccess: true,
			wantBackend: models.BackendLegacy,
			wantNative:  1,
			wantLegacy:  1,
		},
		{
			name:        "hybrid does not retry a reported failure",
			mode:        ModeHybrid,
			fallback:    true,
			native:      &countingBackend{result: models.TaskResult{Success: false, Message: "lint errors"}},
			legacy:      ok(),
			wantSuccess: false,
			wantBackend: models.BackendNative,
			wantNative:  1,
		},
		{
			name:        "hybrid without fallback surfaces the raise",
			mode:        ModeHybrid,
			fallback:    false,
			native:      raising(),
			legacy:      ok(),
			wantSuccess: false,
			wantBackend: models.BackendNative,
			wantNative:  1,
		},
		{
			name:        "both backends raise",
			mode:        ModeHybrid,
			fallback:    true,
			native:      raising(),
			legacy:      &countingBackend{err: errors.New("script missing")},
			wantSuccess: false,
			wantBackend: models.BackendLegacy,
			wantNative:  1,
			wantLegacy:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, tt.native, tt.legacy, tt.mode, tt.fallback)

			var result models.TaskResult
			assert.NotPanics(t, func() {
				result = r.Invoke(context.Background(), "quality", nil)
			})

			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantBackend, result.BackendUsed)
			assert.Equal(t, "quality", result.Task)
			assert.Equal(t, tt.wantNative, tt.native.Calls())
			assert.Equal(t, tt.wantLegacy, tt.legacy.Calls())

			stats := r.Stats()
			assert.Equal(t, int64(tt.wantNative), stats[models.BackendNative].Invocations)
			assert.Equal(t, int64(tt.wantLegacy), stats[models.BackendLegacy].Invocations)
		})
	}
}

func TestFallbackRecordsBothAttempts(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var fallbacks []string

	r, err := NewRouter(raising(), ok(), RouterConfig{
		Mode:            ModeHybrid,
		FallbackEnabled: true,
		Logger:          zap.New(core),
		OnFallback:      func(task string, err error) { fallbacks = append(fallbacks, task) },
	})
	require.NoError(t, err)

	result := r.Invoke(context.Background(), "security", nil)
	require.True(t, result.Success)
	assert.Equal(t, models.BackendLegacy, result.BackendUsed)
	assert.Equal(t, models.StatusSuccess, result.Status)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats[models.BackendNative].Invocations)
	assert.Equal(t, int64(0), stats[models.BackendNative].Successes)
	assert.Equal(t, int64(1), stats[models.BackendLegacy].Invocations)
	assert.Equal(t, int64(1), stats[models.BackendLegacy].Successes)

	assert.Equal(t, []string{"security"}, fallbacks)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "security", logs.All()[0].ContextMap()["task"])
}

func TestBothRaisesCarryErrors(t *testing.T) {
	r := newRouter(t, raising(), &countingBackend{err: errors.New("script missing")}, ModeHybrid, true)

	result := r.Invoke(context.Background(), "build", nil)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "native unavailable")
	assert.Contains(t, result.Errors[1], "script missing")
}

func TestMissingBackendRaises(t *testing.T) {
	r := newRouter(t, nil, nil, ModeLegacy, false)

	result := r.Invoke(context.Background(), "deploy", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], ErrNoBackend.Error())
}

func TestContextOverrideDoesNotLeak(t *testing.T) {
	native, legacy := ok(), ok()
	r := newRouter(t, native, legacy, ModeNative, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res := r.Invoke(WithMode(context.Background(), ModeLegacy), "quality", nil)
			assert.Equal(t, models.BackendLegacy, res.BackendUsed)
		}()
		go func() {
			defer wg.Done()
			res := r.Invoke(context.Background(), "quality", nil)
			assert.Equal(t, models.BackendNative, res.BackendUsed)
		}()
	}
	wg.Wait()

	assert.Equal(t, ModeNative, r.Mode())
	assert.Equal(t, 20, native.Calls())
	assert.Equal(t, 20, legacy.Calls())
}

func TestOverrideRestoredAfterPanic(t *testing.T) {
	r := newRouter(t, ok(), &countingBackend{panics: true}, ModeNative, false)

	result := r.Invoke(WithMode(context.Background(), ModeLegacy), "quality", nil)
	assert.False(t, result.Success)

	after := r.Invoke(context.Background(), "quality", nil)
	assert.True(t, after.Success)
	assert.Equal(t, models.BackendNative, after.BackendUsed)
}

func TestConcurrentStatsUpdates(t *testing.T) {
	r := newRouter(t, ok(), ok(), ModeNative, false)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Invoke(context.Background(), "test", nil)
		}()
	}
	wg.Wait()

	stats := r.Stats()[models.BackendNative]
	assert.Equal(t, int64(n), stats.Invocations)
	assert.Equal(t, int64(n), stats.Successes)
	assert.Equal(t, 1.0, stats.SuccessRate())
}

func TestStatsSnapshotIsCopy(t *testing.T) {
	r := newRouter(t, ok(), ok(), ModeNative, false)
	r.Invoke(context.Background(), "test", nil)

	snapshot := r.Stats()
	snapshot[models.BackendNative] = models.BackendStats{Invocations: 99}

	assert.Equal(t, int64(1), r.Stats()[models.BackendNative].Invocations)
}

func TestInvokeSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	r, err := NewRouter(raising(), ok(), RouterConfig{
		Mode:            ModeHybrid,
		FallbackEnabled: true,
		TracerProvider:  tp,
	})
	require.NoError(t, err)

	r.Invoke(context.Background(), "security", nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "backend.invoke", spans[0].Name())

	attrs := make(map[string]string)
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "security", attrs["task"])
	assert.Equal(t, "hybrid", attrs["mode"])
	assert.Equal(t, "legacy", attrs["backend"])
	assert.Equal(t, "true", attrs["fallback"])
}

func TestInvocationErrorUnwraps(t *testing.T) {
	err := &BackendInvocationError{Backend: models.BackendNative, Task: "deploy", Err: ErrNoCommand}

	assert.True(t, errors.Is(err, ErrNoCommand))
	var invErr *BackendInvocationError
	assert.True(t, errors.As(err, &invErr))
	assert.Equal(t, "deploy", invErr.Task)
}

func TestDeadlineEndsAttemptAndFreezesStats(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	stubborn := Func(func(ctx context.Context, task string, params map[string]any) (models.TaskResult, error) {
		defer close(finished)
		<-release
		return models.TaskResult{Success: true}, nil
	})
	r := newRouter(t, stubborn, ok(), ModeHybrid, true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := r.Invoke(ctx, "slow", nil)
	assert.False(t, result.Success)
	assert.Equal(t, models.BackendNative, result.BackendUsed)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], context.DeadlineExceeded.Error())

	before := r.Stats()
	assert.Equal(t, int64(1), before[models.BackendNative].Invocations)
	assert.Equal(t, int64(0), before[models.BackendNative].Successes)
	assert.Equal(t, int64(0), before[models.BackendLegacy].Invocations)

	close(release)
	<-finished
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, before, r.Stats())
}

func TestFallbackDurationIncludesNativeAttempt(t *testing.T) {
	slowRaise := Func(func(ctx context.Context, task string, params map[string]any) (models.TaskResult, error) {
		time.Sleep(30 * time.Millisecond)
		return models.TaskResult{}, errors.New("native unavailable")
	})
	legacy := &countingBackend{result: models.TaskResult{Success: true, Duration: 10 * time.Millisecond}}
	r := newRouter(t, slowRaise, legacy, ModeHybrid, true)

	result := r.Invoke(context.Background(), "security", nil)
	require.True(t, result.Success)
	assert.Equal(t, models.BackendLegacy, result.BackendUsed)
	assert.GreaterOrEqual(t, result.Duration, 40*time.Millisecond)
}
