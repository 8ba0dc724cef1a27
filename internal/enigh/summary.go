package enigh

import (
	"math"

	"ineqmx/internal/tabular"
)

// ColumnSummary holds descriptive statistics of a numeric column.
type ColumnSummary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes statistics for the named columns, skipping cells that do
// not parse.
func Summarize(t *tabular.Table, columns ...string) []ColumnSummary {
	out := make([]ColumnSummary, 0, len(columns))
	for _, col := range columns {
		s := ColumnSummary{Column: col, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum, sumSq float64
		for i := 0; i < t.Len(); i++ {
			v, err := t.Float(i, col)
			if err != nil {
				continue
			}
			s.Count++
			sum += v
			sumSq += v * v
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
		if s.Count == 0 {
			s.Min, s.Max = 0, 0
			out = append(out, s)
			continue
		}
		n := float64(s.Count)
		s.Mean = sum / n
		if s.Count > 1 {
			s.Std = math.Sqrt(math.Max(0, (sumSq-n*s.Mean*s.Mean)/(n-1)))
		}
		out = append(out, s)
	}
	return out
}
