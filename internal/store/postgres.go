package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/inequality"
	"ineqmx/internal/infrastructure"
)

// Columns of the results table, in COPY order.
var Columns = func() []string {
	cols := []string{"run_id", "dataset", "level", "period", "region", "subregion", "gini"}
	for i := 1; i <= inequality.DecileCount; i++ {
		cols = append(cols, fmt.Sprintf("decil_%d", i))
	}
	return append(cols, "total_weight", "observations", "created_at")
}()

// Store writes results into one table.
type Store struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the configured database and checks the connection.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, apperrors.NewConfigError("store requires a DSN", nil)
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid store DSN", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to connect to store", err)
	}
	return New(db, cfg.Table, logger), nil
}

// New wraps an open database handle.
func New(db *sql.DB, table string, logger *slog.Logger) *Store {
	if table == "" {
		table = "inequality_results"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		table:  table,
		logger: infrastructure.WithComponent(logger, "store"),
		now:    time.Now,
	}
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTableSQL is the DDL of table.
func CreateTableSQL(table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", pq.QuoteIdentifier(table))
	b.WriteString("\trun_id uuid NOT NULL,\n")
	b.WriteString("\tdataset text NOT NULL,\n")
	b.WriteString("\tlevel text NOT NULL,\n")
	b.WriteString("\tperiod text NOT NULL,\n")
	b.WriteString("\tregion text NOT NULL,\n")
	b.WriteString("\tsubregion text NOT NULL,\n")
	b.WriteString("\tgini double precision NOT NULL,\n")
	for i := 1; i <= inequality.DecileCount; i++ {
		fmt.Fprintf(&b, "\tdecil_%d double precision NOT NULL,\n", i)
	}
	b.WriteString("\ttotal_weight double precision NOT NULL,\n")
	b.WriteString("\tobservations integer NOT NULL,\n")
	b.WriteString("\tcreated_at timestamptz NOT NULL,\n")
	b.WriteString("\tPRIMARY KEY (dataset, level, period, region, subregion)\n)")
	return b.String()
}

// EnsureSchema creates the results table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, CreateTableSQL(s.table)); err != nil {
		return apperrors.NewStorageError("failed to create results table", err).WithContext("table", s.table)
	}
	return nil
}

// rowValues flattens a result into COPY arguments.
func rowValues(runID uuid.UUID, kind dataset.Kind, level dataset.Level, r inequality.Result, at time.Time) []interface{} {
	values := []interface{}{runID.String(), string(kind), string(level), r.Key.Period, r.Key.Region, r.Key.Subregion, r.Gini}
	for _, b := range r.Deciles {
		values = append(values, b.AverageIncome)
	}
	return append(values, r.TotalWeight, r.Observations, at)
}

// Save replaces the stored rows of kind and level with results and returns
// the id of the run that wrote them.
func (s *Store) Save(ctx context.Context, kind dataset.Kind, level dataset.Level, results []inequality.Result) (uuid.UUID, error) {
	ctx, span := infrastructure.StartSpan(ctx, "store.save")
	defer span.End()

	runID := uuid.New()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf("DELETE FROM %s WHERE dataset = $1 AND level = $2", pq.QuoteIdentifier(s.table))
	if _, err := tx.ExecContext(ctx, del, string(kind), string(level)); err != nil {
		return uuid.Nil, apperrors.NewStorageError("failed to delete previous results", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(s.table, Columns...))
	if err != nil {
		return uuid.Nil, apperrors.NewStorageError("failed to prepare copy", err)
	}
	at := s.now().UTC()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, rowValues(runID, kind, level, r, at)...); err != nil {
			stmt.Close()
			return uuid.Nil, apperrors.NewStorageError("failed to copy result", err).WithContext("group", r.Key.String())
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return uuid.Nil, apperrors.NewStorageError("failed to flush copy", err)
	}
	if err := stmt.Close(); err != nil {
		return uuid.Nil, apperrors.NewStorageError("failed to close copy", err)
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, apperrors.NewStorageError("failed to commit results", err)
	}

	s.logger.InfoContext(ctx, "Stored inequality results",
		slog.String("run_id", runID.String()),
		slog.String("dataset", string(kind)),
		slog.String("level", string(level)),
		slog.Int("rows", len(results)))
	return runID, nil
}

// Load returns the stored results of kind and level, optionally limited to one
// period, ordered by key.
func (s *Store) Load(ctx context.Context, kind dataset.Kind, level dataset.Level, period string) ([]inequality.Result, error) {
	query, args := selectSQL(s.table, kind, level, period)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query results", err)
	}
	defer rows.Close()

	var out []inequality.Result
	for rows.Next() {
		var r inequality.Result
		dest := []interface{}{&r.Key.Period, &r.Key.Region, &r.Key.Subregion, &r.Gini}
		for i := range r.Deciles {
			r.Deciles[i].Decile = i + 1
			dest = append(dest, &r.Deciles[i].AverageIncome)
		}
		dest = append(dest, &r.TotalWeight, &r.Observations)
		if err := rows.Scan(dest...); err != nil {
			return nil, apperrors.NewStorageError("failed to scan result", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read results", err)
	}
	return out, nil
}

func selectSQL(table string, kind dataset.Kind, level dataset.Level, period string) (string, []interface{}) {
	cols := []string{"period", "region", "subregion", "gini"}
	for i := 1; i <= inequality.DecileCount; i++ {
		cols = append(cols, fmt.Sprintf("decil_%d", i))
	}
	cols = append(cols, "total_weight", "observations")

	query := fmt.Sprintf("SELECT %s FROM %s WHERE dataset = $1 AND level = $2",
		strings.Join(cols, ", "), pq.QuoteIdentifier(table))
	args := []interface{}{string(kind), string(level)}
	if period != "" {
		query += " AND period = $3"
		args = append(args, period)
	}
	return query + " ORDER BY period, region, subregion", args
}
