package models

import "time"

// ExecutionPlan is the ordered set of waves built for one orchestration call.
// It is constructed right before execution and discarded afterwards.
type ExecutionPlan struct {
	Waves             []Wave              // Waves in execution order
	Tasks             map[string]TaskSpec // Specs for every task named in Waves
	EstimatedDuration time.Duration       // Sum of the slowest expected cost per wave
}

// Wave represents a group of tasks that can be executed in parallel
type Wave struct {
	Name  string   // Wave name (e.g., "Wave 1")
	Tasks []string // Task names in this wave, in deterministic order
}

// TaskCount returns the number of tasks across all waves.
func (p *ExecutionPlan) TaskCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, w := range p.Waves {
		n += len(w.Tasks)
	}
	return n
}

// TaskNames returns every task name in plan order.
func (p *ExecutionPlan) TaskNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, p.TaskCount())
	for _, w := range p.Waves {
		names = append(names, w.Tasks...)
	}
	return names
}

// WaveIndex returns the index of the wave containing name, or -1.
func (p *ExecutionPlan) WaveIndex(name string) int {
	if p == nil {
		return -1
	}
	for i, w := range p.Waves {
		for _, t := range w.Tasks {
			if t == name {
				return i
			}
		}
	}
	return -1
}
