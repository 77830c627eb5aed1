package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase groups agents by the stage of the delivery pipeline they serve.
type Phase string

const (
	PhaseAnalysis    Phase = "analysis"    // static inspection (quality, security)
	PhasePreparation Phase = "preparation" // build and test
	PhaseExecution   Phase = "execution"   // deploy
	PhaseMonitoring  Phase = "monitoring"  // post-deploy checks
)

// AllPhases returns the phases in pipeline order.
func AllPhases() []Phase {
	return []Phase{PhaseAnalysis, PhasePreparation, PhaseExecution, PhaseMonitoring}
}

// ParsePhase converts a case-insensitive phase name into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q (want analysis, preparation, execution or monitoring)", s)
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseAnalysis, PhasePreparation, PhaseExecution, PhaseMonitoring:
		return true
	default:
		return false
	}
}

// TaskSpec is the static description of one agent task. It is created once
// when the registry is built and never mutated afterwards.
type TaskSpec struct {
	Name      string        // Unique task identifier (e.g. "security")
	DependsOn []string      // Tasks that must finish before this one starts
	Phase     Phase         // Pipeline phase
	CanFail   bool          // A failure is recorded but does not halt the plan
	Timeout   time.Duration // Per-invocation timeout (0 = orchestrator default)
}

// Validate checks that the spec has the fields the planner relies on.
func (t *TaskSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("task name is required")
	}
	if !t.Phase.Valid() {
		return fmt.Errorf("task %s: invalid phase %q", t.Name, t.Phase)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("task %s: timeout must be >= 0, got %v", t.Name, t.Timeout)
	}
	for _, dep := range t.DependsOn {
		if dep == t.Name {
			return fmt.Errorf("task %s: depends on itself", t.Name)
		}
	}
	return nil
}

// DependsOnTask reports whether name is a direct dependency of the task.
func (t *TaskSpec) DependsOnTask(name string) bool {
	for _, dep := range t.DependsOn {
		if dep == name {
			return true
		}
	}
	return false
}
