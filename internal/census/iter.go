package census

import (
	"fmt"
	"strconv"

	"ineqmx/internal/schema"
	"ineqmx/internal/tabular"
)

// ITER column names as published.
const (
	ColEntidad = "ENTIDAD"
	ColMun     = "MUN"
	ColLoc     = "LOC"
	ColNomLoc  = "NOM_LOC"
	ColAgeb    = "AGEB"
	ColPobTot  = "POBTOT"
	ColPobFem  = "POBFEM"
	ColPobMas  = "POBMAS"
	ColRelHM   = "REL_H_M"
)

// Tidy column names.
const (
	ColCvegeo = "cvegeo"
	ColEnt    = "ent"
	ColMunT   = "mun"
	ColLocT   = "loc"
	ColPobTT  = "pob_tot"
	ColRelHMT = "rel_h_m"
)

// MaxPopulation bounds every population count.
const MaxPopulation = 999999999

// IterColumns is the selection kept from ITER.
var IterColumns = []string{ColEntidad, ColMun, ColLoc, ColPobTot, ColRelHM}

// IterSchema validates the ITER selection. REL_H_M is masked in small
// localities, so it is checked separately on municipal totals only.
func IterSchema() *schema.Schema {
	return &schema.Schema{
		Name: "censo_iter",
		Fields: []schema.Field{
			{Name: ColEntidad, Required: true, Checks: []schema.Check{schema.IntRange(0, 32)}},
			{Name: ColMun, Required: true, Checks: []schema.Check{schema.IntRange(0, 570)}},
			{Name: ColLoc, Required: true, Checks: []schema.Check{schema.IntRange(0, 9999)}},
			{Name: ColPobTot, Required: true, Checks: []schema.Check{schema.IntRange(0, MaxPopulation)}},
			{Name: ColRelHM, Required: true, AllowEmpty: true},
		},
	}
}

// RelHMSchema validates REL_H_M on rows with LOC == 0.
func RelHMSchema() *schema.Schema {
	return &schema.Schema{
		Name: "censo_rel_h_m",
		Fields: []schema.Field{
			{Name: ColRelHM, Required: true, Checks: []schema.Check{
				schema.FloatMin(0, false),
				schema.FloatMax(MaxPopulation),
			}},
		},
	}
}

// Cvegeo builds the geostatistical key of a municipality, or of a state when
// mun is 0.
func Cvegeo(ent, mun int) string {
	if mun == 0 {
		return fmt.Sprintf("%02d", ent)
	}
	return fmt.Sprintf("%02d%03d", ent, mun)
}

// isTotal keeps the aggregate rows of each municipality and state.
func isTotal(r tabular.Row) bool {
	loc, err := r.Int(ColLoc)
	return err == nil && loc == 0
}

// TransformIter validates the ITER table and reduces it to one row per state
// and municipality total: cvegeo, pob_tot, rel_h_m. The national row is dropped.
func TransformIter(raw *tabular.Table) (*tabular.Table, []*schema.Report, error) {
	sel, err := raw.Select(IterColumns...)
	if err != nil {
		return nil, nil, err
	}
	reports := []*schema.Report{IterSchema().Validate(sel)}
	if err := reports[0].Err(); err != nil {
		return nil, reports, err
	}

	totals := sel.Filter(isTotal)
	reports = append(reports, RelHMSchema().Validate(totals))
	if err := reports[1].Err(); err != nil {
		return nil, reports, err
	}

	rows := make([][]string, 0, totals.Len())
	err = totals.Each(func(r tabular.Row) error {
		ent, err := r.Int(ColEntidad)
		if err != nil {
			return err
		}
		if ent == 0 {
			return nil
		}
		mun, err := r.Int(ColMun)
		if err != nil {
			return err
		}
		pob, err := r.Int(ColPobTot)
		if err != nil {
			return err
		}
		rows = append(rows, []string{Cvegeo(ent, mun), strconv.Itoa(pob), r.Get(ColRelHM)})
		return nil
	})
	if err != nil {
		return nil, reports, err
	}
	return tabular.New([]string{ColCvegeo, ColPobTT, ColRelHMT}, rows), reports, nil
}
