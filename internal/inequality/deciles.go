package inequality

import (
	"math"
	"sort"
)

// fragmentTolerance is the share of the total weight below which a leftover fragment
// is absorbed by the bin it is already in rather than spilling into the next one.
const fragmentTolerance = 1e-12

type binAccumulator struct {
	weight      float64
	weightedSum float64
}

func (a *binAccumulator) add(income, weight float64) {
	a.weight += weight
	a.weightedSum += income * weight
}

// Deciles partitions observations into ten equal-weight bins ordered by income.
//
// The bin size is the exact total weight divided by ten. Bin k covers the cumulative
// weight interval [(k-1)*size, k*size) and the last bin is closed. An observation
// whose weight crosses a boundary is split into fragments so bins 1-9 hold exactly one
// tenth of the weight and bin 10 the remainder. Bins without mass report zero.
func Deciles(observations []Observation) ([DecileCount]DecileBin, error) {
	const op = "deciles"
	var bins [DecileCount]DecileBin

	if len(observations) == 0 {
		return bins, invalid(op, "empty input")
	}

	sorted := make([]Observation, len(observations))
	copy(sorted, observations)

	var total float64
	for i, o := range sorted {
		if o.Weight < 0 || math.IsNaN(o.Weight) || math.IsInf(o.Weight, 0) {
			return bins, invalid(op, "weight at index %d is %v", i, o.Weight)
		}
		if math.IsNaN(o.Income) || math.IsInf(o.Income, 0) {
			return bins, invalid(op, "income at index %d is not finite", i)
		}
		total += o.Weight
	}
	if total <= 0 {
		return bins, invalid(op, "total weight is zero")
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Income < sorted[j].Income
	})

	var acc [DecileCount]binAccumulator
	size := total / DecileCount
	tol := total * fragmentTolerance
	last := DecileCount - 1

	bin := 0
	upper := size
	var cum float64
	for _, o := range sorted {
		remaining := o.Weight
		for remaining > 0 {
			if bin < last && upper-cum <= tol {
				bin++
				upper = size * float64(bin+1)
				continue
			}
			take := remaining
			if bin < last && take > upper-cum {
				take = upper - cum
			}
			if remaining-take <= tol {
				take = remaining
			}
			acc[bin].add(o.Income, take)
			cum += take
			remaining -= take
		}
	}

	for i := range bins {
		bins[i].Decile = i + 1
		bins[i].WeightedCount = acc[i].weight
		if acc[i].weight > 0 {
			bins[i].AverageIncome = acc[i].weightedSum / acc[i].weight
		}
	}
	return bins, nil
}
