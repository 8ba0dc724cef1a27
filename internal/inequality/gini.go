package inequality

import (
	"math"
	"sort"
)

type weighted struct {
	value  float64
	weight float64
}

// Gini returns the weighted Gini coefficient of values.
//
// Pairs are stably sorted by value, cumulative weight and cumulative value*weight are
// normalized to end at 1, and the area under the resulting Lorenz curve (starting at
// the origin) is integrated with the trapezoidal rule. The result is 1 - 2*area.
//
// The result is not clamped: negative values can produce a coefficient outside [0, 1].
func Gini(values, weights []float64) (float64, error) {
	const op = "gini"

	if len(values) == 0 {
		return 0, invalid(op, "empty input")
	}
	if len(values) != len(weights) {
		return 0, invalid(op, "values and weights differ in length (%d != %d)", len(values), len(weights))
	}

	pairs := make([]weighted, len(values))
	for i := range values {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return 0, invalid(op, "value at index %d is not finite", i)
		}
		if weights[i] < 0 || math.IsNaN(weights[i]) || math.IsInf(weights[i], 0) {
			return 0, invalid(op, "weight at index %d is %v", i, weights[i])
		}
		pairs[i] = weighted{value: values[i], weight: weights[i]}
	}

	return giniOf(op, pairs)
}

// GiniFromDeciles approximates the Gini coefficient from a decile table, treating each
// bin as a single point of mass WeightedCount at AverageIncome. This is the figure
// INEGI style summary tables report next to the decile averages.
func GiniFromDeciles(bins [DecileCount]DecileBin) (float64, error) {
	pairs := make([]weighted, 0, DecileCount)
	for _, b := range bins {
		pairs = append(pairs, weighted{value: b.AverageIncome, weight: b.WeightedCount})
	}
	return giniOf("gini_from_deciles", pairs)
}

func giniOf(op string, pairs []weighted) (float64, error) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	var totalWeight, totalValue float64
	for _, p := range pairs {
		totalWeight += p.weight
		totalValue += p.value * p.weight
	}
	if totalWeight <= 0 {
		return 0, invalid(op, "total weight is zero")
	}
	if totalValue == 0 {
		return 0, invalid(op, "total weighted value is zero, Lorenz curve undefined")
	}

	return 1 - 2*lorenzArea(pairs, totalWeight, totalValue), nil
}

// lorenzArea integrates the normalized Lorenz curve of sorted pairs from (0,0).
func lorenzArea(pairs []weighted, totalWeight, totalValue float64) float64 {
	var cumWeight, cumValue, prevX, prevY, area float64
	for _, p := range pairs {
		cumWeight += p.weight
		cumValue += p.value * p.weight
		x := cumWeight / totalWeight
		y := cumValue / totalValue
		area += (x - prevX) * (y + prevY) / 2
		prevX, prevY = x, y
	}
	return area
}
