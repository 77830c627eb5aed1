package executor

import (
	"fmt"
	"time"

	"github.com/debashishroy00/ccom/internal/models"
	"github.com/debashishroy00/ccom/internal/registry"
)

// DependencyGraph is the dependency graph restricted to one requested task
// set. Dependencies on tasks outside the set are dropped, not pulled in.
type DependencyGraph struct {
	Tasks    map[string]models.TaskSpec
	Edges    map[string][]string // prerequisite -> dependents
	InDegree map[string]int      // task -> number of in-set dependencies
	Order    []string            // requested order, duplicates removed
}

// BuildDependencyGraph looks up every requested task in reg and builds the
// graph over them. Unknown names fail before any ordering work.
func BuildDependencyGraph(reg *registry.Registry, requested []string) (*DependencyGraph, error) {
	g := &DependencyGraph{
		Tasks:    make(map[string]models.TaskSpec, len(requested)),
		Edges:    make(map[string][]string),
		InDegree: make(map[string]int, len(requested)),
	}

	for _, name := range requested {
		if _, seen := g.Tasks[name]; seen {
			continue
		}
		spec, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		g.Tasks[name] = spec
		g.InDegree[name] = 0
		g.Order = append(g.Order, name)
	}

	for _, name := range g.Order {
		for _, dep := range g.Tasks[name].DependsOn {
			if _, inSet := g.Tasks[dep]; !inSet {
				continue
			}
			g.Edges[dep] = append(g.Edges[dep], name)
			g.InDegree[name]++
		}
	}

	return g, nil
}

// CalculateWaves layers the graph with Kahn's algorithm. Wave k holds every
// remaining task whose in-set dependencies were all placed in earlier waves,
// in request order. Tasks that can never be placed are reported as a
// *CyclicDependencyError.
func (g *DependencyGraph) CalculateWaves() ([]models.Wave, error) {
	inDegree := make(map[string]int, len(g.InDegree))
	for k, v := range g.InDegree {
		inDegree[k] = v
	}

	var waves []models.Wave
	placed := 0
	for iter := 0; iter < len(g.Order) && placed < len(g.Order); iter++ {
		var current []string
		for _, name := range g.Order {
			if degree, remaining := inDegree[name]; remaining && degree == 0 {
				current = append(current, name)
			}
		}
		if len(current) == 0 {
			break
		}

		for _, name := range current {
			delete(inDegree, name)
			for _, dependent := range g.Edges[name] {
				if _, remaining := inDegree[dependent]; remaining {
					inDegree[dependent]--
				}
			}
		}

		waves = append(waves, models.Wave{
			Name:  fmt.Sprintf("Wave %d", len(waves)+1),
			Tasks: current,
		})
		placed += len(current)
	}

	if placed < len(g.Order) {
		var unplaced []string
		for _, name := range g.Order {
			if _, remaining := inDegree[name]; remaining {
				unplaced = append(unplaced, name)
			}
		}
		return nil, &CyclicDependencyError{Tasks: unplaced}
	}

	return waves, nil
}

// BuildPlan builds the execution plan for the requested tasks.
func BuildPlan(reg *registry.Registry, requested []string) (*models.ExecutionPlan, error) {
	g, err := BuildDependencyGraph(reg, requested)
	if err != nil {
		return nil, err
	}

	waves, err := g.CalculateWaves()
	if err != nil {
		return nil, err
	}

	return newPlan(reg, waves, g.Tasks), nil
}

// PlanFromWaves builds a plan from caller-supplied waves. Names must be
// registered and unique; empty waves are dropped. Ordering between the
// supplied waves is taken as given.
func PlanFromWaves(reg *registry.Registry, groups [][]string) (*models.ExecutionPlan, error) {
	tasks := make(map[string]models.TaskSpec)
	var waves []models.Wave

	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		names := make([]string, 0, len(group))
		for _, name := range group {
			if _, dup := tasks[name]; dup {
				return nil, &DuplicateTaskError{Name: name}
			}
			spec, err := reg.Get(name)
			if err != nil {
				return nil, err
			}
			tasks[name] = spec
			names = append(names, name)
		}
		waves = append(waves, models.Wave{
			Name:  fmt.Sprintf("Wave %d", len(waves)+1),
			Tasks: names,
		})
	}

	return newPlan(reg, waves, tasks), nil
}

func newPlan(reg *registry.Registry, waves []models.Wave, tasks map[string]models.TaskSpec) *models.ExecutionPlan {
	plan := &models.ExecutionPlan{
		Waves: waves,
		Tasks: tasks,
	}
	for _, wave := range waves {
		var slowest time.Duration
		for _, name := range wave.Tasks {
			if cost := reg.ExpectedCost(name); cost > slowest {
				slowest = cost
			}
		}
		plan.EstimatedDuration += slowest
	}
	return plan
}
