package inequality

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func TestGini(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		weights  []float64
		expected float64
	}{
		{
			name:     "identical incomes",
			values:   []float64{500, 500, 500, 500},
			weights:  []float64{1, 2, 3, 4},
			expected: 0,
		},
		{
			name:     "single observation",
			values:   []float64{1200},
			weights:  []float64{35.5},
			expected: 0,
		},
		{
			name:     "one household holds everything",
			values:   []float64{0, 0, 0, 0, 10},
			weights:  ones(5),
			expected: 0.8,
		},
		{
			name:     "incomes 100 to 1000",
			values:   []float64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000},
			weights:  ones(10),
			expected: 0.3,
		},
		{
			name:     "unsorted input",
			values:   []float64{1000, 300, 100, 800, 500, 200, 900, 400, 700, 600},
			weights:  ones(10),
			expected: 0.3,
		},
		{
			name:    "weights equivalent to repetition",
			values:  []float64{10, 20},
			weights: []float64{3, 1},
			expected: func() float64 {
				g, _ := Gini([]float64{10, 10, 10, 20}, ones(4))
				return g
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Gini(tt.values, tt.weights)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}
}

func TestGiniMaximalInequality(t *testing.T) {
	for _, n := range []int{2, 3, 10, 100, 1000} {
		values := make([]float64, n)
		values[n-1] = 1e6
		got, err := Gini(values, ones(n))
		require.NoError(t, err)
		assert.InDelta(t, float64(n-1)/float64(n), got, 1e-9, "n=%d", n)
	}
}

func TestGiniInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		weights []float64
	}{
		{"empty", nil, nil},
		{"length mismatch", []float64{1, 2}, []float64{1}},
		{"zero total weight", []float64{1, 2}, []float64{0, 0}},
		{"negative weight", []float64{1, 2}, []float64{1, -1}},
		{"nan value", []float64{math.NaN(), 2}, []float64{1, 1}},
		{"all incomes zero", []float64{0, 0, 0}, []float64{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Gini(tt.values, tt.weights)
			require.Error(t, err)
			assert.True(t, IsInvalidInput(err))
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestGiniNegativeIncomesAreNotClamped(t *testing.T) {
	got, err := Gini([]float64{-10, 1}, []float64{1, 1})
	require.NoError(t, err)
	assert.True(t, got < 0 || got > 1, "expected out of range coefficient, got %v", got)
}

func TestGiniDoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}
	weights := []float64{30, 10, 20}

	_, err := Gini(values, weights)
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 1, 2}, values)
	assert.Equal(t, []float64{30, 10, 20}, weights)
}

func TestGiniIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := make([]float64, 500)
	weights := make([]float64, 500)
	for i := range values {
		values[i] = rng.ExpFloat64() * 10000
		weights[i] = 1 + rng.Float64()*300
	}

	first, err := Gini(values, weights)
	require.NoError(t, err)
	second, err := Gini(values, weights)
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(first), math.Float64bits(second))
	assert.Greater(t, first, 0.0)
	assert.Less(t, first, 1.0)
}

func TestGiniPermutationInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 200)
	weights := make([]float64, 200)
	for i := range values {
		values[i] = float64(rng.Intn(50000))
		weights[i] = float64(1 + rng.Intn(400))
	}
	expected, err := Gini(values, weights)
	require.NoError(t, err)

	rng.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
		weights[i], weights[j] = weights[j], weights[i]
	})
	got, err := Gini(values, weights)
	require.NoError(t, err)

	assert.InDelta(t, expected, got, 1e-9)
}

func TestGiniFromDeciles(t *testing.T) {
	var bins [DecileCount]DecileBin
	for i := range bins {
		bins[i] = DecileBin{Decile: i + 1, WeightedCount: 1, AverageIncome: float64(i+1) * 100}
	}

	got, err := GiniFromDeciles(bins)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, got, 1e-12)

	_, err = GiniFromDeciles([DecileCount]DecileBin{})
	assert.True(t, IsInvalidInput(err))
}
