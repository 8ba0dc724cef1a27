// Package inequality computes weighted income-inequality measures over household
// survey microdata.
//
// The package has three entry points:
//
// Gini: the weighted Gini coefficient of a set of (value, weight) pairs, computed as
// one minus twice the trapezoidal area under the Lorenz curve.
//
// Deciles: a partition of the weighted population into ten equal-weight bins ranked by
// income, each carrying its weighted household count and weighted average income.
// Observations whose cumulative weight crosses a bin boundary are split so every bin
// receives exactly one tenth of the total weight.
//
// AggregateByGroup: partitions observations by a key (state, state and year,
// municipality, ...) and computes both measures per partition.
//
// All functions are pure. They copy their input before sorting, hold no package state
// and are safe for concurrent use as long as each caller owns its slice.
//
// Boundary convention: a decile bin covers the cumulative-weight interval [lo, hi), the
// last bin is closed on both ends. Bins that receive no mass report a zero average
// income and a zero count.
//
// Incomes are not clamped. Negative incomes are accepted and can push the Gini
// coefficient outside [0, 1].
//
// Example usage:
//
//	results, err := inequality.AggregateByGroup(ctx, observations, inequality.ByRegionPeriod)
//	if err != nil {
//	    return err
//	}
//	for _, r := range inequality.SortedResults(results) {
//	    fmt.Println(r.Key, r.Gini, r.Deciles[9].AverageIncome)
//	}
package inequality
