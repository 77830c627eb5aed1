// Package trigger maps high-level events (pre_commit, deployment_request, ...)
// to the list of agent tasks the orchestrator should plan for them.
package trigger

import (
	"fmt"
	"sort"
	"strings"
)

// Built-in event names.
const (
	EventPreCommit         = "pre_commit"
	EventDeploymentRequest = "deployment_request"
	EventFullPipeline      = "full_pipeline"
	EventSecurityReview    = "security_review"
	EventBuildRequest      = "build_request"
	EventQualityCheck      = "quality_check"
)

// DefaultTable returns the built-in event table.
func DefaultTable() map[string][]string {
	return map[string][]string{
		EventPreCommit:         {"quality", "security"},
		EventDeploymentRequest: {"quality", "security", "test", "build", "deploy", "monitor"},
		EventFullPipeline:      {"quality", "security", "accessibility", "performance", "test", "build", "deploy", "monitor"},
		EventSecurityReview:    {"security"},
		EventBuildRequest:      {"quality", "build"},
		EventQualityCheck:      {"quality", "accessibility", "performance"},
	}
}

// DefaultFallback is the task set used for events that are not in the table.
func DefaultFallback() []string {
	return []string{"quality", "security"}
}

// Resolver resolves events against a fixed table. It is read-only after
// construction and safe for concurrent use.
type Resolver struct {
	table    map[string][]string
	fallback []string
}

// New creates a Resolver. A nil table or empty fallback selects the built-in
// value for that part.
func New(table map[string][]string, fallback []string) (*Resolver, error) {
	if table == nil {
		table = DefaultTable()
	}
	if len(fallback) == 0 {
		fallback = DefaultFallback()
	}

	r := &Resolver{
		table:    make(map[string][]string, len(table)),
		fallback: dedupe(fallback),
	}
	for event, tasks := range table {
		key := normalize(event)
		if key == "" {
			return nil, fmt.Errorf("trigger table contains an empty event name")
		}
		if _, exists := r.table[key]; exists {
			return nil, fmt.Errorf("event %q defined more than once", event)
		}
		if len(tasks) == 0 {
			return nil, fmt.Errorf("event %q has no tasks", event)
		}
		r.table[key] = dedupe(tasks)
	}
	return r, nil
}

// Default returns a Resolver over the built-in table.
func Default() *Resolver {
	r, _ := New(nil, nil)
	return r
}

// Resolve returns the tasks for event. Unknown events resolve to the
// fallback set.
func (r *Resolver) Resolve(event string) []string {
	tasks, ok := r.table[normalize(event)]
	if !ok {
		tasks = r.fallback
	}
	out := make([]string, len(tasks))
	copy(out, tasks)
	return out
}

// Known reports whether event has its own table entry.
func (r *Resolver) Known(event string) bool {
	_, ok := r.table[normalize(event)]
	return ok
}

// Events returns the known event names, sorted.
func (r *Resolver) Events() []string {
	events := make([]string, 0, len(r.table))
	for event := range r.table {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// Fallback returns a copy of the set used for unknown events.
func (r *Resolver) Fallback() []string {
	out := make([]string, len(r.fallback))
	copy(out, r.fallback)
	return out
}

func normalize(event string) string {
	return strings.ToLower(strings.TrimSpace(event))
}

func dedupe(tasks []string) []string {
	seen := make(map[string]bool, len(tasks))
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
