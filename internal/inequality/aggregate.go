package inequality

import (
	"context"
	"log/slog"
	"sort"
)

// Calculate computes the Gini coefficient and the deciles of one group.
func Calculate(observations []Observation) (Result, error) {
	if len(observations) == 0 {
		return Result{}, invalid("calculate", "empty input")
	}

	values := make([]float64, len(observations))
	weights := make([]float64, len(observations))
	var total float64
	for i, o := range observations {
		values[i] = o.Income
		weights[i] = o.Weight
		total += o.Weight
	}

	gini, err := Gini(values, weights)
	if err != nil {
		return Result{}, err
	}
	deciles, err := Deciles(observations)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Gini:         gini,
		Deciles:      deciles,
		TotalWeight:  total,
		Observations: len(observations),
	}, nil
}

type aggregateOptions struct {
	logger          *slog.Logger
	minObservations int
}

// Option configures AggregateByGroup.
type Option func(*aggregateOptions)

// WithLogger sets the logger used to report skipped groups.
func WithLogger(logger *slog.Logger) Option {
	return func(o *aggregateOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMinObservations skips groups with fewer than n observations. Municipal
// tables use DecileCount so every decile can hold at least one household.
func WithMinObservations(n int) Option {
	return func(o *aggregateOptions) {
		o.minObservations = n
	}
}

// AggregateByGroup partitions observations with key and calculates every partition.
//
// Partitions whose total weight is not positive, or whose calculation is rejected as
// invalid input, are logged and skipped. The returned map has no defined iteration
// order; use SortedResults for stable output.
func AggregateByGroup(ctx context.Context, observations []Observation, key KeyFunc, opts ...Option) (map[GroupKey]Result, error) {
	if len(observations) == 0 {
		return nil, invalid("aggregate", "empty input")
	}
	if key == nil {
		return nil, invalid("aggregate", "nil key function")
	}

	options := aggregateOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger.With(slog.String("component", "inequality.aggregate"))

	groups := make(map[GroupKey][]Observation)
	order := make([]GroupKey, 0)
	for _, o := range observations {
		k := key(o)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], o)
	}

	results := make(map[GroupKey]Result, len(groups))
	for _, k := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		members := groups[k]
		if len(members) < options.minObservations {
			logger.DebugContext(ctx, "Skipping small group",
				slog.String("group", k.String()),
				slog.Int("observations", len(members)))
			continue
		}

		var total float64
		for _, o := range members {
			total += o.Weight
		}
		if total <= 0 {
			logger.WarnContext(ctx, "Skipping group with zero total weight",
				slog.String("group", k.String()),
				slog.Int("observations", len(members)))
			continue
		}

		result, err := Calculate(members)
		if err != nil {
			logger.WarnContext(ctx, "Skipping group",
				slog.String("group", k.String()),
				slog.Int("observations", len(members)),
				slog.String("error", err.Error()))
			continue
		}
		result.Key = k
		results[k] = result
	}

	logger.DebugContext(ctx, "Groups aggregated",
		slog.Int("groups", len(groups)),
		slog.Int("computed", len(results)))

	return results, nil
}

// SortedResults returns the results ordered by key.
func SortedResults(results map[GroupKey]Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Less(out[j].Key)
	})
	return out
}
