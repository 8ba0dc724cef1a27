package inequality

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateObservations() []Observation {
	var obs []Observation
	for _, period := range []string{"2018", "2020"} {
		for i := 1; i <= 10; i++ {
			obs = append(obs, Observation{Income: float64(i) * 100, Weight: 1, Region: "9", Period: period})
			obs = append(obs, Observation{Income: 700, Weight: 2, Region: "10", Period: period})
		}
	}
	return obs
}

func TestAggregateByGroup(t *testing.T) {
	results, err := AggregateByGroup(context.Background(), stateObservations(), ByRegionPeriod)
	require.NoError(t, err)
	require.Len(t, results, 4)

	cdmx := results[GroupKey{Period: "2018", Region: "9"}]
	assert.InDelta(t, 0.3, cdmx.Gini, 1e-12)
	assert.Equal(t, 10, cdmx.Observations)
	assert.InDelta(t, 10.0, cdmx.TotalWeight, 1e-12)
	assert.Equal(t, GroupKey{Period: "2018", Region: "9"}, cdmx.Key)

	durango := results[GroupKey{Period: "2020", Region: "10"}]
	assert.InDelta(t, 0.0, durango.Gini, 1e-12)
	for _, b := range durango.Deciles {
		assert.InDelta(t, 700.0, b.AverageIncome, 1e-9)
		assert.InDelta(t, 2.0, b.WeightedCount, 1e-9)
	}
}

func TestAggregateByGroupMatchesDirectCalculation(t *testing.T) {
	obs := stateObservations()
	results, err := AggregateByGroup(context.Background(), obs, ByPeriod)
	require.NoError(t, err)

	var only2018 []Observation
	for _, o := range obs {
		if o.Period == "2018" {
			only2018 = append(only2018, o)
		}
	}
	direct, err := Calculate(only2018)
	require.NoError(t, err)

	got := results[GroupKey{Period: "2018"}]
	assert.Equal(t, direct.Gini, got.Gini)
	assert.Equal(t, direct.Deciles, got.Deciles)
}

func TestAggregateByGroupIsOrderIndependent(t *testing.T) {
	obs := stateObservations()
	reversed := make([]Observation, len(obs))
	for i := range obs {
		reversed[len(obs)-1-i] = obs[i]
	}

	a, err := AggregateByGroup(context.Background(), obs, ByRegionPeriod)
	require.NoError(t, err)
	b, err := AggregateByGroup(context.Background(), reversed, ByRegionPeriod)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for k, ra := range a {
		rb, ok := b[k]
		require.True(t, ok, "missing group %s", k)
		assert.InDelta(t, ra.Gini, rb.Gini, 1e-12)
		for i := range ra.Deciles {
			assert.InDelta(t, ra.Deciles[i].AverageIncome, rb.Deciles[i].AverageIncome, 1e-9)
		}
	}
}

func TestAggregateByGroupSkipsZeroWeightGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	obs := []Observation{
		{Income: 100, Weight: 1, Region: "1"},
		{Income: 200, Weight: 1, Region: "1"},
		{Income: 300, Weight: 0, Region: "2"},
		{Income: 0, Weight: 5, Region: "3"},
	}

	results, err := AggregateByGroup(context.Background(), obs, ByRegion, WithLogger(logger))
	require.NoError(t, err)

	assert.Len(t, results, 1)
	assert.Contains(t, results, GroupKey{Region: "1"})
	assert.Contains(t, buf.String(), "Skipping group with zero total weight")
	assert.Contains(t, buf.String(), `"group":"2"`)
	assert.Contains(t, buf.String(), `"group":"3"`)
}

func TestAggregateByGroupMinObservations(t *testing.T) {
	obs := []Observation{
		{Income: 100, Weight: 1, Region: "1"},
		{Income: 200, Weight: 1, Region: "1"},
		{Income: 300, Weight: 1, Region: "1"},
		{Income: 400, Weight: 1, Region: "2"},
	}

	results, err := AggregateByGroup(context.Background(), obs, ByRegion, WithMinObservations(3))
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Contains(t, results, GroupKey{Region: "1"})
}

func TestAggregateByGroupErrors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := AggregateByGroup(context.Background(), nil, National)
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("nil key function", func(t *testing.T) {
		_, err := AggregateByGroup(context.Background(), stateObservations(), nil)
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := AggregateByGroup(ctx, stateObservations(), ByRegionPeriod)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSortedResults(t *testing.T) {
	results, err := AggregateByGroup(context.Background(), stateObservations(), ByRegionPeriod)
	require.NoError(t, err)

	sorted := SortedResults(results)
	require.Len(t, sorted, 4)

	keys := make([]string, len(sorted))
	for i, r := range sorted {
		keys[i] = r.Key.String()
	}
	assert.Equal(t, []string{"2018/9", "2018/10", "2020/9", "2020/10"}, keys)
}

func TestKeyFuncs(t *testing.T) {
	a := Observation{Period: "2018", Region: "9", Subregion: "003"}
	b := Observation{Period: "2022", Region: "9", Subregion: "003"}

	assert.Equal(t, National(a), National(b), "national merges periods")
	assert.NotEqual(t, ByPeriod(a), ByPeriod(b))
	assert.Equal(t, ByRegion(a), ByRegion(b))
	assert.Equal(t, GroupKey{Period: "2018", Region: "9"}, ByRegionPeriod(a))
	assert.Equal(t, GroupKey{Period: "2022", Region: "9", Subregion: "003"}, BySubregionPeriod(b))
}

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "all", GroupKey{}.String())
	assert.Equal(t, "2022/15/106", GroupKey{Period: "2022", Region: "15", Subregion: "106"}.String())

	assert.True(t, GroupKey{Region: "2"}.Less(GroupKey{Region: "10"}))
	assert.True(t, GroupKey{Region: "002"}.Less(GroupKey{Region: "10"}))
	assert.True(t, GroupKey{Region: "CDMX"}.Less(GroupKey{Region: "JAL"}))
	assert.False(t, GroupKey{Period: "2022"}.Less(GroupKey{Period: "2018"}))
}

func TestResultMeanDecileIncome(t *testing.T) {
	result, err := Calculate(observations(
		[]float64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}, ones(10)))
	require.NoError(t, err)

	assert.InDelta(t, 550.0, result.MeanDecileIncome(), 1e-9)
}
