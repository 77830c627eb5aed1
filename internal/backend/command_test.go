package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		exitCode    int
		wantSuccess bool
		wantMessage string
		wantMetrics map[string]float64
	}{
		{
			name:        "structured report",
			output:      `{"success": true, "message": "clean", "metrics": {"quality_score": 92}}`,
			wantSuccess: true,
			wantMessage: "clean",
			wantMetrics: map[string]float64{"quality_score": 92},
		},
		{
			name:        "report overrides exit code",
			output:      `{"success": false, "message": "3 lint errors"}`,
			exitCode:    0,
			wantSuccess: false,
			wantMessage: "3 lint errors",
		},
		{
			name:        "json without success field",
			output:      `{"vulnerabilities": {}}`,
			exitCode:    0,
			wantSuccess: true,
			wantMessage: `{"vulnerabilities": {}}`,
		},
		{
			name:        "plain output failing",
			output:      "build failed\n",
			exitCode:    2,
			wantSuccess: false,
			wantMessage: "build failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseOutput(tt.output, tt.exitCode)
			assert.Equal(t, tt.wantSuccess, got.Success)
			assert.Equal(t, tt.wantMessage, got.Message)
			assert.Equal(t, tt.wantMetrics, got.Metrics)
		})
	}
}

func TestCommandBackendInvoke(t *testing.T) {
	b := &CommandBackend{Commands: map[string]string{
		"quality": `printf '{"success":true,"metrics":{"quality_score":88}}'`,
		"build":   `echo "compile error" >&2; exit 3`,
		"echo":    `printf '%s %s' "$CCOM_TASK" "$CCOM_PARAMS"`,
	}}
	ctx := context.Background()

	result, err := b.Invoke(ctx, "quality", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 88.0, result.Metrics["quality_score"])
	assert.Greater(t, result.Duration, time.Duration(0))

	result, err = b.Invoke(ctx, "build", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"exit status 3", "compile error"}, result.Errors)

	result, err = b.Invoke(ctx, "echo", map[string]any{"branch": "main"})
	require.NoError(t, err)
	assert.Equal(t, `echo {"branch":"main"}`, result.Message)
}

func TestCommandBackendRaises(t *testing.T) {
	b := &CommandBackend{Commands: map[string]string{"slow": "sleep 5"}}

	_, err := b.Invoke(context.Background(), "unknown", nil)
	assert.True(t, errors.Is(err, ErrNoCommand))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.Invoke(ctx, "slow", nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	missingShell := &CommandBackend{Commands: map[string]string{"x": "true"}, Shell: "/nonexistent/shell"}
	_, err = missingShell.Invoke(context.Background(), "x", nil)
	assert.Error(t, err)
}

func TestCommandTables(t *testing.T) {
	native := NewNativeBackend(nil)
	assert.Equal(t, "npm test", native.CommandFor("test"))
	assert.Equal(t, "", native.CommandFor("lint"))

	legacy := NewLegacyBackend(map[string]string{"build": "make build"})
	assert.Equal(t, "make build", legacy.CommandFor("build"))
	assert.Equal(t, "node .claude/agents/deploy.js", legacy.CommandFor("deploy"))
}
