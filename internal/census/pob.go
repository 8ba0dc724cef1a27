package census

import (
	"strconv"

	"ineqmx/internal/tabular"
)

// POBColumns is the population-by-sex selection of ITER.
var POBColumns = []string{ColEntidad, ColMun, ColPobTot, ColPobFem, ColPobMas}

// POBRename maps POB columns to their tidy names.
var POBRename = map[string]string{
	ColEntidad: "ent",
	ColMun:     "mun",
	ColPobTot:  "pob_tot",
	ColPobFem:  "pob_fem",
	ColPobMas:  "pob_mas",
}

var pobBounds = map[string][2]int{
	ColEntidad: {0, 32},
	ColMun:     {0, 570},
	ColPobTot:  {0, MaxPopulation},
	ColPobFem:  {0, MaxPopulation},
	ColPobMas:  {0, MaxPopulation},
}

// POBStats counts what TransformPOB changed.
type POBStats struct {
	Dropped int            `json:"dropped"`
	Clipped map[string]int `json:"clipped"`
}

// TransformPOB keeps municipal and state totals of the population-by-sex
// columns, without the national row. Rows with a non-numeric value are dropped and values outside their
// range are clipped to it.
func TransformPOB(raw *tabular.Table) (*tabular.Table, POBStats, error) {
	stats := POBStats{Clipped: make(map[string]int)}
	if _, err := raw.Select(ColEntidad, ColMun, ColLoc, ColPobTot, ColPobFem, ColPobMas); err != nil {
		return nil, stats, err
	}

	var rows [][]string
	_ = raw.Filter(isTotal).Each(func(r tabular.Row) error {
		if ent, err := r.Int(ColEntidad); err == nil && ent == 0 {
			return nil
		}
		out := make([]string, len(POBColumns))
		for i, col := range POBColumns {
			v, err := r.Int(col)
			if err != nil {
				stats.Dropped++
				return nil
			}
			b := pobBounds[col]
			if v < b[0] || v > b[1] {
				stats.Clipped[col]++
				v = min(max(v, b[0]), b[1])
			}
			out[i] = strconv.Itoa(v)
		}
		rows = append(rows, out)
		return nil
	})
	return tabular.New(POBColumns, rows).Rename(POBRename), stats, nil
}
