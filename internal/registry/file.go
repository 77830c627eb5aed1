package registry

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/debashishroy00/ccom/internal/models"
	"gopkg.in/yaml.v3"
)

// Definitions is everything a definitions file can declare. Nil maps and
// slices mean "use the built-in table" for that section.
type Definitions struct {
	Registry       *Registry
	NativeCommands map[string]string
	LegacyCommands map[string]string
	Triggers       map[string][]string
	DefaultTrigger []string
	Gates          []models.QualityGate
}

type yamlTask struct {
	Name         string   `yaml:"name"`
	Phase        string   `yaml:"phase"`
	DependsOn    []string `yaml:"depends_on"`
	CanFail      bool     `yaml:"can_fail"`
	Timeout      string   `yaml:"timeout"`
	ExpectedCost string   `yaml:"expected_cost"`
	Native       string   `yaml:"native"`
	Legacy       string   `yaml:"legacy"`
}

type yamlDefinitions struct {
	Tasks          []yamlTask           `yaml:"tasks"`
	Triggers       map[string][]string  `yaml:"triggers"`
	DefaultTrigger []string             `yaml:"default_trigger"`
	Gates          []models.QualityGate `yaml:"gates"`
}

// LoadDefinitions reads a YAML definitions file from disk.
func LoadDefinitions(path string) (*Definitions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open definitions file: %w", err)
	}
	defer file.Close()

	defs, err := ParseDefinitions(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return defs, nil
}

// ParseDefinitions decodes a definitions document. When the document has no
// tasks section the built-in registry is used.
func ParseDefinitions(r io.Reader) (*Definitions, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}

	var raw yamlDefinitions
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	}

	defs := &Definitions{
		Triggers:       raw.Triggers,
		DefaultTrigger: raw.DefaultTrigger,
		Gates:          raw.Gates,
	}

	if len(raw.Tasks) == 0 {
		defs.Registry = Default()
	} else {
		specs := make([]models.TaskSpec, 0, len(raw.Tasks))
		costs := make(map[string]time.Duration)
		native := make(map[string]string)
		legacy := make(map[string]string)

		for i, t := range raw.Tasks {
			spec, cost, err := t.toSpec()
			if err != nil {
				return nil, fmt.Errorf("tasks[%d]: %w", i, err)
			}
			specs = append(specs, spec)
			if cost > 0 {
				costs[spec.Name] = cost
			}
			if cmd := strings.TrimSpace(t.Native); cmd != "" {
				native[spec.Name] = cmd
			}
			if cmd := strings.TrimSpace(t.Legacy); cmd != "" {
				legacy[spec.Name] = cmd
			}
		}

		reg, err := New(specs, costs)
		if err != nil {
			return nil, err
		}
		defs.Registry = reg
		defs.NativeCommands = native
		defs.LegacyCommands = legacy
	}

	if err := defs.validateReferences(); err != nil {
		return nil, err
	}
	return defs, nil
}

func (t yamlTask) toSpec() (models.TaskSpec, time.Duration, error) {
	phase, err := models.ParsePhase(t.Phase)
	if err != nil {
		return models.TaskSpec{}, 0, fmt.Errorf("task %q: %w", t.Name, err)
	}

	spec := models.TaskSpec{
		Name:      strings.TrimSpace(t.Name),
		DependsOn: t.DependsOn,
		Phase:     phase,
		CanFail:   t.CanFail,
	}

	if t.Timeout != "" {
		timeout, err := time.ParseDuration(t.Timeout)
		if err != nil {
			return models.TaskSpec{}, 0, fmt.Errorf("task %q: invalid timeout format %q: %w", t.Name, t.Timeout, err)
		}
		spec.Timeout = timeout
	}

	var cost time.Duration
	if t.ExpectedCost != "" {
		cost, err = time.ParseDuration(t.ExpectedCost)
		if err != nil {
			return models.TaskSpec{}, 0, fmt.Errorf("task %q: invalid expected_cost format %q: %w", t.Name, t.ExpectedCost, err)
		}
	}

	return spec, cost, nil
}

// validateReferences checks that triggers only name registered tasks and that
// gates are well formed.
func (d *Definitions) validateReferences() error {
	for event, tasks := range d.Triggers {
		for _, name := range tasks {
			if !d.Registry.Has(name) {
				return fmt.Errorf("trigger %q: %w", event, &UnknownTaskError{Name: name})
			}
		}
	}
	for _, name := range d.DefaultTrigger {
		if !d.Registry.Has(name) {
			return fmt.Errorf("default_trigger: %w", &UnknownTaskError{Name: name})
		}
	}

	seen := make(map[string]bool, len(d.Gates))
	for i, g := range d.Gates {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("gates[%d]: name is required", i)
		}
		if strings.TrimSpace(g.MetricKey) == "" {
			return fmt.Errorf("gate %s: metric is required", g.Name)
		}
		if seen[g.Name] {
			return fmt.Errorf("gate %s: duplicate gate name", g.Name)
		}
		seen[g.Name] = true
	}
	return nil
}
