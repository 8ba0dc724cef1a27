package census

import (
	"fmt"

	"ineqmx/internal/schema"
	"ineqmx/internal/tabular"
)

// Shapefile attribute columns.
const (
	ColCVEGEO  = "CVEGEO"
	ColCVEEnt  = "CVE_ENT"
	ColCVEMun  = "CVE_MUN"
	ColNOMGEO  = "NOMGEO"
	ShpTidyEnt = "cve_ent"
	ShpTidyMun = "cve_mun"
	ShpTidyNom = "nom_geo"
)

// ShpRename maps attribute columns to their tidy names.
var ShpRename = map[string]string{
	ColCVEGEO: ColCvegeo,
	ColCVEEnt: ShpTidyEnt,
	ColCVEMun: ShpTidyMun,
	ColNOMGEO: ShpTidyNom,
}

// ShpColumns returns the attribute selection of the state layer, or of the
// municipality layer when municipal is true.
func ShpColumns(municipal bool) []string {
	if municipal {
		return []string{ColCVEGEO, ColCVEEnt, ColCVEMun, ColNOMGEO}
	}
	return []string{ColCVEGEO, ColCVEEnt, ColNOMGEO}
}

// ShpSchema validates an attribute table.
func ShpSchema(municipal bool) *schema.Schema {
	fields := []schema.Field{
		{Name: ColCVEGEO, Required: true, Checks: []schema.Check{schema.Tag("numeric")}},
		{Name: ColCVEEnt, Required: true, Checks: []schema.Check{schema.Digits(2), schema.IntRange(1, 32)}},
	}
	if municipal {
		fields = append(fields, schema.Field{Name: ColCVEMun, Required: true, Checks: []schema.Check{schema.Digits(3)}})
	}
	fields = append(fields, schema.Field{Name: ColNOMGEO, Required: true})
	return &schema.Schema{
		Name:       "shp",
		Fields:     fields,
		UniqueKeys: [][]string{{ColCVEGEO}},
	}
}

// TransformShp validates an attribute table, checks that CVEGEO is the
// concatenation of its parts and renames the columns.
func TransformShp(raw *tabular.Table) (*tabular.Table, *schema.Report, error) {
	_, municipal := raw.ColumnIndex(ColCVEMun)
	sel, err := raw.Select(ShpColumns(municipal)...)
	if err != nil {
		return nil, nil, err
	}
	report := ShpSchema(municipal).Validate(sel)
	if err := report.Err(); err != nil {
		return nil, report, err
	}
	err = sel.Each(func(r tabular.Row) error {
		want := r.Get(ColCVEEnt)
		if municipal {
			want += r.Get(ColCVEMun)
		}
		if got := r.Get(ColCVEGEO); got != want {
			return fmt.Errorf("row %d: CVEGEO %s does not match %s", r.Index(), got, want)
		}
		return nil
	})
	if err != nil {
		return nil, report, err
	}
	return sel.Rename(ShpRename), report, nil
}
