package testutil

import (
	"fmt"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"ineqmx/internal/config"
	"ineqmx/internal/tabular"
)

// Paths returns data directories under a fresh temp dir.
func Paths(t *testing.T) *config.Paths {
	t.Helper()
	root := t.TempDir()
	paths, err := config.NewPaths(filepath.Join(root, "data"), filepath.Join(root, "logs"))
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())
	return paths
}

// Household is one row of a tidy ENIGH table.
type Household struct {
	Entidad   int
	Municipio string
	Income    float64
	Factor    float64
}

var tidyHeader = []string{"folioviv", "foliohog", "entidad", "municipio", "year", "ing_cor", "factor"}

// WriteTidyEnigh writes households as the tidy ENIGH table of year, where the
// ENIGH processor and the inequality service look for it. It returns the path.
func WriteTidyEnigh(t *testing.T, paths *config.Paths, year int, households []Household) string {
	t.Helper()
	rows := make([][]string, len(households))
	for i, h := range households {
		rows[i] = []string{
			fmt.Sprintf("%010d", i+1),
			"1",
			strconv.Itoa(h.Entidad),
			h.Municipio,
			strconv.Itoa(year),
			strconv.FormatFloat(h.Income, 'f', -1, 64),
			strconv.FormatFloat(h.Factor, 'f', -1, 64),
		}
	}
	path := filepath.Join(paths.Interim("enigh", year), fmt.Sprintf("enigh_tidy_data_%d.csv", year))
	require.NoError(t, tabular.New(tidyHeader, rows).WriteFile(path))
	return path
}

// TwoStates returns ten households in each of Ciudad de Mexico (9) and
// Mexico (15) with incomes 1000..10000 and unit weights.
func TwoStates() []Household {
	var out []Household
	for _, ent := range []int{9, 15} {
		for i := 1; i <= 10; i++ {
			out = append(out, Household{Entidad: ent, Municipio: "001", Income: float64(1000 * i), Factor: 1})
		}
	}
	return out
}
