package executor

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debashishroy00/ccom/internal/models"
	"github.com/debashishroy00/ccom/internal/registry"
)

func mustRegistry(t *testing.T, specs ...models.TaskSpec) *registry.Registry {
	t.Helper()
	reg, err := registry.New(specs, nil)
	require.NoError(t, err)
	return reg
}

func spec(name string, deps ...string) models.TaskSpec {
	return models.TaskSpec{Name: name, Phase: models.PhaseAnalysis, DependsOn: deps}
}

func waveTasks(plan *models.ExecutionPlan) [][]string {
	out := make([][]string, 0, len(plan.Waves))
	for _, w := range plan.Waves {
		out = append(out, w.Tasks)
	}
	return out
}

func TestBuildPlan(t *testing.T) {
	reg := mustRegistry(t,
		spec("a"),
		spec("b"),
		spec("c", "a", "b"),
		spec("d", "c"),
		spec("e", "a"),
	)

	tests := []struct {
		name      string
		requested []string
		want      [][]string
	}{
		{
			name:      "single task",
			requested: []string{"a"},
			want:      [][]string{{"a"}},
		},
		{
			name:      "two roots feed one task",
			requested: []string{"a", "b", "c"},
			want:      [][]string{{"a", "b"}, {"c"}},
		},
		{
			name:      "request order breaks ties",
			requested: []string{"c", "b", "a"},
			want:      [][]string{{"b", "a"}, {"c"}},
		},
		{
			name:      "dependencies outside the request are ignored",
			requested: []string{"d", "e"},
			want:      [][]string{{"d", "e"}},
		},
		{
			name:      "duplicates collapse to first appearance",
			requested: []string{"b", "a", "b", "c"},
			want:      [][]string{{"b", "a"}, {"c"}},
		},
		{
			name:      "chain",
			requested: []string{"d", "c", "a", "b", "e"},
			want:      [][]string{{"a", "b"}, {"c", "e"}, {"d"}},
		},
		{
			name:      "empty request",
			requested: nil,
			want:      [][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildPlan(reg, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, waveTasks(plan))
		})
	}
}

func TestBuildPlanWaveNames(t *testing.T) {
	plan, err := BuildPlan(registry.Default(), []string{"deploy", "build", "quality", "security", "test"})
	require.NoError(t, err)

	require.Len(t, plan.Waves, 3)
	assert.Equal(t, "Wave 1", plan.Waves[0].Name)
	assert.Equal(t, "Wave 3", plan.Waves[2].Name)
	assert.Len(t, plan.Tasks, 5)
}

func TestBuildPlanRespectsDependencies(t *testing.T) {
	reg := registry.Default()
	names := reg.Names()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		requested := make([]string, len(names))
		copy(requested, names)
		rng.Shuffle(len(requested), func(a, b int) { requested[a], requested[b] = requested[b], requested[a] })
		requested = requested[:1+rng.Intn(len(requested))]

		plan, err := BuildPlan(reg, requested)
		require.NoError(t, err)

		seen := make(map[string]bool)
		for _, name := range plan.TaskNames() {
			assert.False(t, seen[name], "task %s placed twice", name)
			seen[name] = true
		}
		assert.Len(t, seen, len(requested))

		for _, name := range plan.TaskNames() {
			for _, dep := range plan.Tasks[name].DependsOn {
				if !seen[dep] {
					continue
				}
				assert.Less(t, plan.WaveIndex(dep), plan.WaveIndex(name), "%s must run before %s", dep, name)
			}
		}
	}
}

func TestBuildPlanEstimate(t *testing.T) {
	plan, err := BuildPlan(registry.Default(), registry.Default().Names())
	require.NoError(t, err)

	// 45s (security) + 90s (build) + 120s (deploy) + 15s (monitor)
	assert.Equal(t, 270*time.Second, plan.EstimatedDuration)
}

func TestBuildPlanCycle(t *testing.T) {
	reg := mustRegistry(t,
		spec("a", "b"),
		spec("b", "a"),
		spec("c"),
		spec("d", "a"),
	)

	_, err := BuildPlan(reg, []string{"c", "b", "a"})
	require.Error(t, err)

	var cyclic *CyclicDependencyError
	require.True(t, errors.As(err, &cyclic))
	assert.Equal(t, []string{"b", "a"}, cyclic.Tasks)
	assert.True(t, IsPlanningError(err))

	_, err = BuildPlan(reg, []string{"d", "a", "b"})
	require.True(t, errors.As(err, &cyclic))
	assert.ElementsMatch(t, []string{"a", "b", "d"}, cyclic.Tasks)

	plan, err := BuildPlan(reg, []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "c"}}, waveTasks(plan))
}

func TestBuildPlanUnknownTask(t *testing.T) {
	_, err := BuildPlan(registry.Default(), []string{"quality", "fuzz"})
	require.Error(t, err)

	var unknown *registry.UnknownTaskError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "fuzz", unknown.Name)
	assert.True(t, IsPlanningError(err))
}

func TestPlanFromWaves(t *testing.T) {
	reg := registry.Default()

	plan, err := PlanFromWaves(reg, [][]string{{"quality", "security"}, {}, {"build"}})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"quality", "security"}, {"build"}}, waveTasks(plan))
	assert.Equal(t, "Wave 2", plan.Waves[1].Name)
	assert.Equal(t, 135*time.Second, plan.EstimatedDuration)

	_, err = PlanFromWaves(reg, [][]string{{"quality"}, {"quality"}})
	var dup *DuplicateTaskError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "quality", dup.Name)

	_, err = PlanFromWaves(reg, [][]string{{"lint"}})
	assert.True(t, IsPlanningError(err))
}

func TestTimeoutErrorUnwraps(t *testing.T) {
	err := &TaskTimeoutError{Task: "deploy", Timeout: time.Second}

	assert.True(t, IsTimeoutError(err))
	assert.False(t, IsTimeoutError(errors.New("other")))
	assert.Contains(t, err.Error(), "deploy")
	assert.False(t, IsPlanningError(err))
}
