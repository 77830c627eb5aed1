package registry

import (
	"time"

	"github.com/debashishroy00/ccom/internal/models"
)

// DefaultSpecs returns the built-in agent table.
func DefaultSpecs() []models.TaskSpec {
	return []models.TaskSpec{
		{Name: "quality", Phase: models.PhaseAnalysis, Timeout: 2 * time.Minute},
		{Name: "security", Phase: models.PhaseAnalysis, Timeout: 5 * time.Minute},
		{Name: "accessibility", Phase: models.PhaseAnalysis, CanFail: true, Timeout: 2 * time.Minute},
		{Name: "performance", Phase: models.PhaseAnalysis, CanFail: true, Timeout: 5 * time.Minute},
		{Name: "test", Phase: models.PhasePreparation, DependsOn: []string{"quality"}, Timeout: 10 * time.Minute},
		{Name: "build", Phase: models.PhasePreparation, DependsOn: []string{"quality", "security"}, Timeout: 10 * time.Minute},
		{Name: "deploy", Phase: models.PhaseExecution, DependsOn: []string{"build", "test"}, Timeout: 15 * time.Minute},
		{Name: "monitor", Phase: models.PhaseMonitoring, DependsOn: []string{"deploy"}, CanFail: true, Timeout: 5 * time.Minute},
	}
}

// DefaultCosts returns the expected run time of each built-in agent.
func DefaultCosts() map[string]time.Duration {
	return map[string]time.Duration{
		"quality":       30 * time.Second,
		"security":      45 * time.Second,
		"accessibility": 20 * time.Second,
		"performance":   40 * time.Second,
		"test":          60 * time.Second,
		"build":         90 * time.Second,
		"deploy":        120 * time.Second,
		"monitor":       15 * time.Second,
	}
}

// Default returns a registry populated with the built-in agents.
func Default() *Registry {
	r, err := New(DefaultSpecs(), DefaultCosts())
	if err != nil {
		// The built-in table is static; a failure here is a programming error.
		panic("registry: invalid built-in table: " + err.Error())
	}
	return r
}
