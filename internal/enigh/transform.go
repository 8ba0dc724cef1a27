package enigh

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ineqmx/internal/inequality"
	"ineqmx/internal/tabular"
)

// SplitUbicaGeo derives the state and municipality codes from ubica_geo. The last
// three digits are the municipality; the leading digits are the state, which loses
// its leading zero when the file stores the code as a number.
func SplitUbicaGeo(ubicaGeo string) (entidad int, municipio string, err error) {
	s := strings.TrimSpace(ubicaGeo)
	if i := strings.IndexByte(s, '.'); i >= 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	if len(s) < 4 || len(s) > 5 {
		return 0, "", fmt.Errorf("ubica_geo %q: expected 4 or 5 digits", ubicaGeo)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, "", fmt.Errorf("ubica_geo %q: non-digit %q", ubicaGeo, r)
		}
	}
	entidad, _ = strconv.Atoi(s[:len(s)-3])
	return entidad, s[len(s)-3:], nil
}

// Transform selects RequiredColumns, derives entidad, municipio and year, and
// sorts households by income then folio.
func Transform(raw *tabular.Table, year int) (*tabular.Table, error) {
	tidy, err := raw.Select(RequiredColumns...)
	if err != nil {
		return nil, err
	}

	yearStr := strconv.Itoa(year)
	ent := make([]string, tidy.Len())
	mun := make([]string, tidy.Len())
	for i := 0; i < tidy.Len(); i++ {
		e, m, err := SplitUbicaGeo(tidy.Value(i, ColUbicaGeo))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		ent[i], mun[i] = strconv.Itoa(e), m
	}
	tidy.AddColumn(ColEntidad, func(r tabular.Row) string { return ent[r.Index()] })
	tidy.AddColumn(ColMunicipio, func(r tabular.Row) string { return mun[r.Index()] })
	tidy.AddColumn(ColYear, func(tabular.Row) string { return yearStr })

	if err := sortHouseholds(tidy); err != nil {
		return nil, err
	}
	return tidy, nil
}

func sortHouseholds(t *tabular.Table) error {
	income := make([]float64, t.Len())
	for i := range income {
		v, err := t.Float(i, ColIngCor)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		income[i] = v
	}
	order := make([]int, t.Len())
	for i := range order {
		order[i] = i
	}
	fv, _ := t.ColumnIndex(ColFolioviv)
	fh, _ := t.ColumnIndex(ColFoliohog)
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if income[i] != income[j] {
			return income[i] < income[j]
		}
		if t.Rows[i][fv] != t.Rows[j][fv] {
			return t.Rows[i][fv] < t.Rows[j][fv]
		}
		return t.Rows[i][fh] < t.Rows[j][fh]
	})
	rows := make([][]string, len(order))
	for k, i := range order {
		rows[k] = t.Rows[i]
	}
	t.Rows = rows
	return nil
}

// Household is one row of the tidy table.
type Household struct {
	Folioviv  string
	Foliohog  string
	Entidad   int
	Municipio string
	Year      int
	Income    float64
	Factor    float64
}

// Households decodes the tidy table.
func Households(tidy *tabular.Table) ([]Household, error) {
	if missing := tidy.Missing(ColFolioviv, ColFoliohog, ColEntidad, ColMunicipio, ColYear, ColIngCor, ColFactor); len(missing) > 0 {
		return nil, fmt.Errorf("tidy table missing columns: %s", strings.Join(missing, ", "))
	}
	out := make([]Household, 0, tidy.Len())
	err := tidy.Each(func(r tabular.Row) error {
		var (
			h   = Household{Folioviv: r.Get(ColFolioviv), Foliohog: r.Get(ColFoliohog), Municipio: r.Get(ColMunicipio)}
			err error
		)
		if h.Entidad, err = r.Int(ColEntidad); err != nil {
			return fmt.Errorf("row %d: %w", r.Index(), err)
		}
		if h.Year, err = r.Int(ColYear); err != nil {
			return fmt.Errorf("row %d: %w", r.Index(), err)
		}
		if h.Income, err = r.Float(ColIngCor); err != nil {
			return fmt.Errorf("row %d: %w", r.Index(), err)
		}
		if h.Factor, err = r.Float(ColFactor); err != nil {
			return fmt.Errorf("row %d: %w", r.Index(), err)
		}
		out = append(out, h)
		return nil
	})
	return out, err
}

// Observation maps a household to the calculator input: quarterly current income
// weighted by the expansion factor, grouped by state, municipality and year.
func (h Household) Observation() inequality.Observation {
	return inequality.Observation{
		Income:    h.Income,
		Weight:    h.Factor,
		Region:    strconv.Itoa(h.Entidad),
		Subregion: h.Municipio,
		Period:    strconv.Itoa(h.Year),
	}
}

// Observations decodes the tidy table straight into calculator input.
func Observations(tidy *tabular.Table) ([]inequality.Observation, error) {
	households, err := Households(tidy)
	if err != nil {
		return nil, err
	}
	obs := make([]inequality.Observation, len(households))
	for i, h := range households {
		obs[i] = h.Observation()
	}
	return obs, nil
}
