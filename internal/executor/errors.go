package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/debashishroy00/ccom/internal/registry"
)

// CyclicDependencyError is returned by the planner when some requested tasks
// can never be ordered. Tasks lists every unplaced task in request order.
type CyclicDependencyError struct {
	Tasks []string
}

// Error implements the error interface for CyclicDependencyError.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected among tasks: %s", strings.Join(e.Tasks, ", "))
}

// DuplicateTaskError is returned when an explicit wave list names a task more
// than once.
type DuplicateTaskError struct {
	Name string
}

// Error implements the error interface for DuplicateTaskError.
func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q appears more than once in the plan", e.Name)
}

// TaskTimeoutError records that a task exceeded its timeout.
type TaskTimeoutError struct {
	Task    string
	Timeout time.Duration
}

// Error implements the error interface for TaskTimeoutError.
func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s: timed out after %v", e.Task, e.Timeout)
}

// Unwrap allows errors.Is(err, context.DeadlineExceeded).
func (e *TaskTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IsTimeoutError checks if an error is or wraps a TaskTimeoutError.
func IsTimeoutError(err error) bool {
	var timeoutErr *TaskTimeoutError
	return errors.As(err, &timeoutErr)
}

// IsPlanningError reports whether err was produced while building a plan.
// Planning errors abort an orchestration before any task runs.
func IsPlanningError(err error) bool {
	var (
		unknown *registry.UnknownTaskError
		cyclic  *CyclicDependencyError
		dup     *DuplicateTaskError
	)
	return errors.As(err, &unknown) || errors.As(err, &cyclic) || errors.As(err, &dup)
}
