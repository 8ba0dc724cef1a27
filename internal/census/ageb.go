package census

import (
	"ineqmx/internal/schema"
	"ineqmx/internal/tabular"
)

// AGEBColumns is the selection kept from the urban AGEB tables.
var AGEBColumns = []string{ColEntidad, ColMun, ColNomLoc, ColAgeb, ColPobTot}

// AGEBRename maps AGEB columns to their tidy names.
var AGEBRename = map[string]string{
	ColEntidad: "ent",
	ColMun:     "mun",
	ColNomLoc:  "nom_loc",
	ColAgeb:    "ageb",
	ColPobTot:  "pob_tot",
}

// AGEBSchema validates the AGEB selection. Codes keep their leading zeros.
func AGEBSchema() *schema.Schema {
	return &schema.Schema{
		Name: "censo_ageb",
		Fields: []schema.Field{
			{Name: ColEntidad, Required: true, Checks: []schema.Check{schema.Digits(2), schema.IntRange(0, 32)}},
			{Name: ColMun, Required: true, Checks: []schema.Check{schema.Digits(3), schema.IntRange(0, 570)}},
			{Name: ColNomLoc, Required: true, Checks: []schema.Check{schema.MaxLen(50)}},
			{Name: ColAgeb, Required: true, Checks: []schema.Check{schema.Alphanumeric(), schema.Tag("len=4")}},
			{Name: ColPobTot, Required: true, Checks: []schema.Check{schema.IntRange(0, MaxPopulation)}},
		},
	}
}

// TransformAGEB validates and renames the AGEB selection.
func TransformAGEB(raw *tabular.Table) (*tabular.Table, *schema.Report, error) {
	sel, err := raw.Select(AGEBColumns...)
	if err != nil {
		return nil, nil, err
	}
	report := AGEBSchema().Validate(sel)
	if err := report.Err(); err != nil {
		return nil, report, err
	}
	return sel.Rename(AGEBRename), report, nil
}
