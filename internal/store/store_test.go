package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/inequality"
)

func sampleResult(period, region string) inequality.Result {
	r := inequality.Result{
		Key:          inequality.GroupKey{Period: period, Region: region},
		Gini:         0.42,
		TotalWeight:  1000,
		Observations: 25,
	}
	for i := range r.Deciles {
		r.Deciles[i] = inequality.DecileBin{Decile: i + 1, WeightedCount: 100, AverageIncome: float64(i+1) * 1000}
	}
	return r
}

func TestColumns(t *testing.T) {
	require.Len(t, Columns, 20)
	assert.Equal(t, "run_id", Columns[0])
	assert.Equal(t, "decil_1", Columns[7])
	assert.Equal(t, "created_at", Columns[19])
}

func TestCreateTableSQL(t *testing.T) {
	ddl := CreateTableSQL("results")
	assert.True(t, strings.HasPrefix(ddl, `CREATE TABLE IF NOT EXISTS "results" (`))
	assert.Contains(t, ddl, "decil_10 double precision NOT NULL")
	assert.Contains(t, ddl, "PRIMARY KEY (dataset, level, period, region, subregion)")

	assert.Contains(t, CreateTableSQL(`we"ird`), `"we""ird"`)
}

func TestRowValues(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	values := rowValues(id, dataset.KindENIGH, dataset.LevelState, sampleResult("2022", "14"), at)

	require.Len(t, values, len(Columns))
	assert.Equal(t, id.String(), values[0])
	assert.Equal(t, "enigh", values[1])
	assert.Equal(t, "state", values[2])
	assert.Equal(t, "14", values[4])
	assert.Equal(t, 1000.0, values[7])
	assert.Equal(t, 10000.0, values[16])
	assert.Equal(t, 25, values[18])
	assert.Equal(t, at, values[19])
}

func TestSelectSQL(t *testing.T) {
	q, args := selectSQL("results", dataset.KindENIGH, dataset.LevelNational, "")
	assert.Contains(t, q, `FROM "results" WHERE dataset = $1 AND level = $2 ORDER BY`)
	assert.Equal(t, []interface{}{"enigh", "national"}, args)

	q, args = selectSQL("results", dataset.KindENIGH, dataset.LevelNational, "2020")
	assert.Contains(t, q, "AND period = $3")
	assert.Len(t, args, 3)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{}, nil)
	assert.Equal(t, apperrors.ErrTypeConfig, apperrors.TypeOf(err))
}

// TestPostgresRoundTrip runs against a real database when INEQMX_TEST_DSN is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("INEQMX_TEST_DSN")
	if dsn == "" {
		t.Skip("INEQMX_TEST_DSN not set")
	}
	ctx := context.Background()
	table := "inequality_results_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")

	s, err := Open(ctx, config.StoreConfig{DSN: dsn, Table: table}, nil)
	require.NoError(t, err)
	defer s.Close()
	defer s.db.ExecContext(ctx, `DROP TABLE IF EXISTS "`+table+`"`)

	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx), "schema creation is idempotent")

	_, err = s.Save(ctx, dataset.KindENIGH, dataset.LevelState, []inequality.Result{
		sampleResult("2022", "14"), sampleResult("2020", "9"),
	})
	require.NoError(t, err)
	// Saving again replaces rather than duplicating.
	_, err = s.Save(ctx, dataset.KindENIGH, dataset.LevelState, []inequality.Result{sampleResult("2022", "14")})
	require.NoError(t, err)

	got, err := s.Load(ctx, dataset.KindENIGH, dataset.LevelState, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "14", got[0].Key.Region)
	assert.Equal(t, 10, got[0].Deciles[9].Decile)
	assert.InDelta(t, 0.42, got[0].Gini, 1e-12)
}
