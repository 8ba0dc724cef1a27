package enigh

import (
	"ineqmx/internal/schema"
)

// Column names of the concentradohogar table and derived columns.
const (
	ColFolioviv  = "folioviv"
	ColFoliohog  = "foliohog"
	ColUbicaGeo  = "ubica_geo"
	ColIngCor    = "ing_cor"
	ColFactor    = "factor"
	ColUPM       = "upm"
	ColEstDis    = "est_dis"
	ColEntidad   = "entidad"
	ColMunicipio = "municipio"
	ColYear      = "year"
)

// IncomeColumns are the income components of a household, all non-negative.
var IncomeColumns = []string{
	ColIngCor, "ingtrab", "trabajo", "negocio", "otros_trab", "rentas", "utilidad",
	"arrenda", "transfer", "jubilacion", "becas", "donativos", "remesas", "bene_gob",
	"transf_hog", "trans_inst", "estim_alqu", "otros_ing",
}

// RequiredColumns is the selection kept from the raw table.
var RequiredColumns = func() []string {
	cols := []string{ColFolioviv, ColFoliohog, ColUbicaGeo}
	cols = append(cols, IncomeColumns...)
	return append(cols, ColFactor, ColUPM, ColEstDis)
}()

// TidyColumns is the layout of the transformed table.
var TidyColumns = append(append([]string(nil), RequiredColumns...), ColEntidad, ColMunicipio, ColYear)

// HighIncomeThreshold flags quarterly incomes that deserve a second look.
const HighIncomeThreshold = 1e6

// RawSchema validates the concentradohogar table as published.
func RawSchema() *schema.Schema {
	fields := []schema.Field{
		{Name: ColFolioviv, Required: true, Checks: []schema.Check{schema.Alphanumeric()}},
		{Name: ColFoliohog, Required: true, Checks: []schema.Check{schema.IntRange(1, 99)}},
		{Name: ColUbicaGeo, Required: true, Checks: []schema.Check{schema.IntRange(1001, 33999)}},
	}
	for _, col := range IncomeColumns {
		checks := []schema.Check{schema.FloatMin(0, false)}
		if col == ColIngCor {
			checks = append(checks, schema.FloatMax(HighIncomeThreshold))
		}
		fields = append(fields, schema.Field{Name: col, Required: true, Checks: checks})
	}
	fields = append(fields,
		schema.Field{Name: ColFactor, Required: true, Checks: []schema.Check{schema.FloatMin(0, true)}},
		schema.Field{Name: ColUPM, Required: true},
		schema.Field{Name: ColEstDis, Required: true},
	)
	return &schema.Schema{
		Name:       "enigh_raw",
		Fields:     fields,
		UniqueKeys: [][]string{{ColFolioviv, ColFoliohog}},
	}
}

// TidySchema validates the derived columns of the transformed table.
func TidySchema() *schema.Schema {
	return &schema.Schema{
		Name: "enigh_tidy",
		Fields: []schema.Field{
			{Name: ColEntidad, Required: true, Checks: []schema.Check{schema.IntRange(1, 32)}},
			{Name: ColMunicipio, Required: true, Checks: []schema.Check{schema.Digits(3)}},
			{Name: ColFactor, Required: true, Checks: []schema.Check{schema.FloatMin(0, true)}},
			{Name: ColIngCor, Required: true, Checks: []schema.Check{
				schema.FloatMin(0, false),
				schema.FloatMax(HighIncomeThreshold),
			}},
			{Name: ColYear, Required: true, Checks: []schema.Check{schema.IntRange(2000, 2100)}},
		},
	}
}
