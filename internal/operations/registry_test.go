package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(steps []Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.ID())
	}
	return out
}

func pipelineRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, s := range []Step{
		newFakeStep(StageIDDownload),
		newFakeStep(StageIDEnigh, StageIDDownload),
		newFakeStep(StageIDEnco, StageIDDownload),
		newFakeStep(StageIDInequality, StageIDEnigh),
		newFakeStep(StageIDExport, StageIDInequality),
		newFakeStep(StageIDIndicators),
	} {
		require.NoError(t, r.Register(s))
	}
	return r
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Count())
	assert.NotNil(t, r.List())

	require.NoError(t, r.Register(newFakeStep("a")))
	assert.ErrorContains(t, r.Register(nil), "nil step")
	assert.ErrorContains(t, r.Register(newFakeStep("")), "ID cannot be empty")
	assert.ErrorContains(t, r.Register(newFakeStep("a")), "already registered")

	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("b"))
	_, err := r.Get("b")
	assert.ErrorContains(t, err, "not found")
}

func TestRegistryPlan(t *testing.T) {
	r := pipelineRegistry(t)

	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{
			name: "all steps in dependency order",
			want: []string{StageIDDownload, StageIDIndicators, StageIDEnigh, StageIDEnco, StageIDInequality, StageIDExport},
		},
		{
			name: "subset keeps dependency order",
			ids:  []string{StageIDExport, StageIDEnigh},
			want: []string{StageIDEnigh, StageIDExport},
		},
		{
			name: "single step without its dependencies",
			ids:  []string{StageIDInequality},
			want: []string{StageIDInequality},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := r.Plan(tt.ids)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(steps))
		})
	}
}

func TestRegistryPlanErrors(t *testing.T) {
	r := pipelineRegistry(t)
	_, err := r.Plan([]string{"unknown"})
	assert.ErrorContains(t, err, "not found")

	cyclic := NewRegistry()
	require.NoError(t, cyclic.Register(newFakeStep("a", "b")))
	require.NoError(t, cyclic.Register(newFakeStep("b", "a")))
	assert.ErrorContains(t, cyclic.ValidateDependencies(), "cycle")

	missing := NewRegistry()
	require.NoError(t, missing.Register(newFakeStep("a", "ghost")))
	assert.ErrorContains(t, missing.ValidateDependencies(), "non-existent")
}

func TestRegistryGetDependents(t *testing.T) {
	r := pipelineRegistry(t)
	assert.Equal(t,
		[]string{StageIDEnigh, StageIDEnco, StageIDInequality, StageIDExport},
		r.GetDependents(StageIDDownload))
	assert.Empty(t, r.GetDependents(StageIDIndicators))
}
