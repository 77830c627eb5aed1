// Package registry holds the static table of agent tasks the orchestrator can
// plan: their phase, dependencies, failure tolerance and timeout.
//
// A Registry is read-only once constructed and is safe for concurrent use
// without locking.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/debashishroy00/ccom/internal/models"
)

// DefaultExpectedCost is used for tasks that have no entry in the cost table.
const DefaultExpectedCost = 30 * time.Second

// UnknownTaskError is returned when a task name is not registered.
type UnknownTaskError struct {
	Name string
}

// Error implements the error interface for UnknownTaskError.
func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task %q", e.Name)
}

// Registry is an immutable lookup table of task specs.
type Registry struct {
	specs map[string]models.TaskSpec
	order []string
	costs map[string]time.Duration
}

// New builds a registry from specs. Every spec must validate, names must be
// unique and every dependency must name a registered task. Cycles are not
// rejected here; the planner verifies ordering for each requested subset.
func New(specs []models.TaskSpec, costs map[string]time.Duration) (*Registry, error) {
	r := &Registry{
		specs: make(map[string]models.TaskSpec, len(specs)),
		order: make([]string, 0, len(specs)),
		costs: make(map[string]time.Duration, len(costs)),
	}

	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.specs[spec.Name]; exists {
			return nil, fmt.Errorf("task %s: duplicate task name", spec.Name)
		}
		r.specs[spec.Name] = cloneSpec(spec)
		r.order = append(r.order, spec.Name)
	}

	for _, name := range r.order {
		for _, dep := range r.specs[name].DependsOn {
			if _, ok := r.specs[dep]; !ok {
				return nil, fmt.Errorf("task %s: depends on non-existent task %s", name, dep)
			}
		}
	}

	for name, cost := range costs {
		if cost < 0 {
			return nil, fmt.Errorf("task %s: expected cost must be >= 0, got %v", name, cost)
		}
		r.costs[name] = cost
	}

	return r, nil
}

// Get returns the spec registered under name.
func (r *Registry) Get(name string) (models.TaskSpec, error) {
	spec, ok := r.specs[name]
	if !ok {
		return models.TaskSpec{}, &UnknownTaskError{Name: name}
	}
	return cloneSpec(spec), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Names returns registered task names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ByPhase returns registered task names grouped by phase, each group sorted.
func (r *Registry) ByPhase() map[models.Phase][]string {
	grouped := make(map[models.Phase][]string)
	for _, name := range r.order {
		phase := r.specs[name].Phase
		grouped[phase] = append(grouped[phase], name)
	}
	for _, names := range grouped {
		sort.Strings(names)
	}
	return grouped
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.order)
}

// ExpectedCost returns the estimated run time of a task. It is only used for
// plan estimates and never affects ordering or correctness.
func (r *Registry) ExpectedCost(name string) time.Duration {
	if cost, ok := r.costs[name]; ok {
		return cost
	}
	return DefaultExpectedCost
}

func cloneSpec(spec models.TaskSpec) models.TaskSpec {
	if spec.DependsOn != nil {
		deps := make([]string, len(spec.DependsOn))
		copy(deps, spec.DependsOn)
		spec.DependsOn = deps
	}
	return spec
}
