// Package backend routes task invocations to the native or legacy task
// backend and keeps per-backend invocation statistics.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/debashishroy00/ccom/internal/models"
)

// Backend runs a single task. Returning an error means the backend raised:
// it could not produce a result at all. A result with Success=false is an
// ordinary task failure.
type Backend interface {
	Invoke(ctx context.Context, task string, params map[string]any) (models.TaskResult, error)
}

// Func adapts a plain function to the Backend interface.
type Func func(ctx context.Context, task string, params map[string]any) (models.TaskResult, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, task string, params map[string]any) (models.TaskResult, error) {
	return f(ctx, task, params)
}

// ErrNoBackend is raised when the router has no backend for the selected kind.
var ErrNoBackend = errors.New("backend not configured")

// BackendInvocationError wraps an error raised by a backend.
type BackendInvocationError struct {
	Backend models.BackendKind
	Task    string
	Err     error
}

// Error implements the error interface for BackendInvocationError.
func (e *BackendInvocationError) Error() string {
	return fmt.Sprintf("%s backend raised for task %s: %v", e.Backend, e.Task, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendInvocationError) Unwrap() error {
	return e.Err
}
