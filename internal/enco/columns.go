package enco

import (
	"fmt"

	"ineqmx/internal/schema"
)

// KeyColumns identify a household interview in every monthly table.
var KeyColumns = []string{"fol", "ent", "con", "v_sel", "n_hog", "h_mud"}

// Columns added by the loader and read by the share computation.
const (
	ColEnt   = "ent"
	ColMpio  = "mpio"
	ColAgeb  = "ageb"
	ColFecha = "fch_def"
	ColIPer  = "i_per"
	ColIng   = "ing"
	ColYear  = "year"
	ColMonth = "month"
)

// Questions are the questionnaire columns p1..p15.
var Questions = func() []string {
	q := make([]string, 15)
	for i := range q {
		q[i] = fmt.Sprintf("p%d", i+1)
	}
	return q
}()

// VivColumns are kept from the dwelling table.
var VivColumns = append(append([]string(nil), KeyColumns...), ColMpio, ColAgeb, ColFecha)

// CSColumns are kept from the household table.
var CSColumns = append(append([]string(nil), KeyColumns...), ColIPer, ColIng)

// CBColumns are kept from the questionnaire table.
var CBColumns = append(append([]string(nil), KeyColumns...), Questions...)

func keyFields() []schema.Field {
	fields := make([]schema.Field, 0, len(KeyColumns))
	for _, k := range KeyColumns {
		f := schema.Field{Name: k, Required: true}
		if k == ColEnt {
			f.Checks = []schema.Check{schema.IntRange(1, 32)}
		}
		fields = append(fields, f)
	}
	return fields
}

// VivSchema validates the dwelling table.
func VivSchema() *schema.Schema {
	return &schema.Schema{
		Name: "enco_viv",
		Fields: append(keyFields(),
			schema.Field{Name: ColMpio, Required: true, Checks: []schema.Check{schema.IntRange(0, 999)}},
			schema.Field{Name: ColAgeb, Required: true, AllowEmpty: true},
			schema.Field{Name: ColFecha, Required: true, AllowEmpty: true, Checks: []schema.Check{
				schema.Tag("datetime=2006-01-02").AsWarning(),
			}},
		),
		UniqueKeys: [][]string{KeyColumns},
	}
}

// CSSchema validates the household table.
func CSSchema() *schema.Schema {
	return &schema.Schema{
		Name: "enco_cs",
		Fields: append(keyFields(),
			schema.Field{Name: ColIPer, Required: true, AllowEmpty: true, Checks: []schema.Check{schema.Float()}},
			schema.Field{Name: ColIng, Required: true, AllowEmpty: true, Checks: []schema.Check{schema.FloatMin(0, false)}},
		),
		UniqueKeys: [][]string{KeyColumns},
	}
}

// CBSchema validates the questionnaire table.
func CBSchema() *schema.Schema {
	fields := keyFields()
	for _, q := range Questions {
		fields = append(fields, schema.Field{Name: q, Required: true, AllowEmpty: true, Checks: []schema.Check{schema.IntRange(0, 99)}})
	}
	return &schema.Schema{
		Name:       "enco_cb",
		Fields:     fields,
		UniqueKeys: [][]string{KeyColumns},
	}
}
