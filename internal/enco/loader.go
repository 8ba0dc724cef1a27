package enco

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/files"
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/schema"
	"ineqmx/internal/tabular"
)

// TidyFileName is the interim file holding every joined month of a year.
func TidyFileName(year int) string {
	return fmt.Sprintf("enco_interim_tidy_%d.csv", year)
}

// JoinMonth reduces the three monthly tables to their kept columns, validates
// them and inner-joins them on KeyColumns. Year and month columns are appended.
func JoinMonth(cs, viv, cb *tabular.Table, year, month int) (*tabular.Table, error) {
	parts := []struct {
		table  *tabular.Table
		cols   []string
		schema *schema.Schema
	}{
		{cs, CSColumns, CSSchema()},
		{viv, VivColumns, VivSchema()},
		{cb, CBColumns, CBSchema()},
	}
	selected := make([]*tabular.Table, len(parts))
	for i, p := range parts {
		t, err := p.table.Select(p.cols...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.schema.Name, err)
		}
		if err := p.schema.Validate(t).Err(); err != nil {
			return nil, err
		}
		selected[i] = t
	}

	joined, err := selected[0].Join(selected[1], KeyColumns...)
	if err != nil {
		return nil, err
	}
	if joined, err = joined.Join(selected[2], KeyColumns...); err != nil {
		return nil, err
	}

	y, m := strconv.Itoa(year), strconv.Itoa(month)
	joined.AddColumn(ColYear, func(tabular.Row) string { return y })
	joined.AddColumn(ColMonth, func(tabular.Row) string { return m })
	return joined, nil
}

// YearResult is the stacked ENCO table of one year.
type YearResult struct {
	Year     int
	Table    *tabular.Table
	Months   []int
	Skipped  []int
	TidyPath string
}

// Loader reads ENCO tables through the dataset manifest.
type Loader struct {
	paths    *config.Paths
	manifest *dataset.Manifest
	logger   *slog.Logger
	now      func() time.Time
}

// NewLoader creates a loader.
func NewLoader(paths *config.Paths, manifest *dataset.Manifest, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		paths:    paths,
		manifest: manifest,
		logger:   infrastructure.WithComponent(logger, "enco"),
		now:      time.Now,
	}
}

func (l *Loader) tablePath(year, month int, table string) (string, error) {
	rel, err := l.manifest.Lookup(dataset.KindENCO, year, month, table)
	if err != nil {
		return "", apperrors.NewNotFoundError("enco table").
			WithContext("year", year).
			WithContext("month", month).
			WithContext("table", table)
	}
	return filepath.Join(l.paths.Raw(string(dataset.KindENCO), year), filepath.FromSlash(rel)), nil
}

// LoadMonth reads and joins the tables of one month.
func (l *Loader) LoadMonth(ctx context.Context, year, month int) (*tabular.Table, error) {
	tables := make(map[string]*tabular.Table, 3)
	for _, name := range []string{dataset.TableEncoCS, dataset.TableEncoViv, dataset.TableEncoCB} {
		path, err := l.tablePath(year, month, name)
		if err != nil {
			return nil, err
		}
		if !config.FileExists(path) {
			return nil, apperrors.NewNotFoundError("enco file").WithContext("path", path)
		}
		t, err := tabular.ReadFile(path, tabular.ReadOptions{})
		if err != nil {
			return nil, apperrors.NewParsingError("failed to read enco table", err).WithContext("path", path)
		}
		l.logger.DebugContext(ctx, "Loaded ENCO table",
			slog.String("table", name),
			slog.Int("month", month),
			slog.Int("rows", t.Len()))
		tables[name] = t
	}

	joined, err := JoinMonth(tables[dataset.TableEncoCS], tables[dataset.TableEncoViv], tables[dataset.TableEncoCB], year, month)
	if err != nil {
		return nil, apperrors.NewAppValidationError(err.Error()).
			WithContext("year", year).
			WithContext("month", month)
	}
	return joined, nil
}

// LoadYear stacks every month of year listed in the manifest. Months whose
// files are not on disk are skipped with a warning.
func (l *Loader) LoadYear(ctx context.Context, year int) (*YearResult, error) {
	months := l.manifest.Months(dataset.KindENCO, year, dataset.TableEncoCS)
	if len(months) == 0 {
		return nil, apperrors.NewNotFoundError("enco year").WithContext("year", year)
	}

	res := &YearResult{Year: year}
	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := l.LoadMonth(ctx, year, month)
		if apperrors.IsNotFound(err) {
			l.logger.WarnContext(ctx, "Skipping month due to missing data",
				slog.Int("year", year),
				slog.Int("month", month))
			res.Skipped = append(res.Skipped, month)
			continue
		}
		if err != nil {
			return nil, err
		}
		if res.Table == nil {
			res.Table = t
		} else {
			res.Table.Append(t)
		}
		res.Months = append(res.Months, month)
	}
	if res.Table == nil {
		return nil, apperrors.NewNotFoundError("enco data").WithContext("year", year)
	}
	return res, nil
}

// Process loads a year and writes the interim tidy table with its metadata.
func (l *Loader) Process(ctx context.Context, year int) (*YearResult, error) {
	ctx, span := infrastructure.StartSpan(ctx, "enco.process")
	defer span.End()

	res, err := l.LoadYear(ctx, year)
	if err != nil {
		return nil, err
	}

	dir := l.paths.Interim(string(dataset.KindENCO), year)
	res.TidyPath = filepath.Join(dir, TidyFileName(year))
	if err := res.Table.WriteFile(res.TidyPath); err != nil {
		return nil, apperrors.NewStorageError("failed to write enco table", err).WithContext("path", res.TidyPath)
	}

	md := files.NewMetadata("ENCO Data Transformation").
		Add("Source", l.paths.Raw(string(dataset.KindENCO), year)).
		Add("Tidy data saved at", res.TidyPath).
		Add("Months", fmt.Sprint(res.Months)).
		Add("Rows", res.Table.Len()).
		AddList("Selected columns", res.Table.Header)
	if err := files.WriteMetadata(filepath.Join(dir, fmt.Sprintf("enco_transform_metadata_%d.txt", year)), md, l.now()); err != nil {
		l.logger.WarnContext(ctx, "Failed to write metadata", slog.String("error", err.Error()))
	}

	l.logger.InfoContext(ctx, "Saved tidy ENCO data",
		slog.Int("year", year),
		slog.Int("months", len(res.Months)),
		slog.Int("rows", res.Table.Len()),
		slog.String("path", res.TidyPath))
	return res, nil
}

// LoadTidy reads the tidy table that Process wrote for year.
func (l *Loader) LoadTidy(ctx context.Context, year int) (*tabular.Table, error) {
	path := filepath.Join(l.paths.Interim(string(dataset.KindENCO), year), TidyFileName(year))
	if !config.FileExists(path) {
		return nil, apperrors.NewNotFoundError("enco tidy table").WithContext("path", path)
	}
	t, err := tabular.ReadFile(path, tabular.ReadOptions{})
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read tidy table", err).WithContext("path", path)
	}
	l.logger.DebugContext(ctx, "Loaded tidy ENCO data", slog.Int("year", year), slog.Int("rows", t.Len()))
	return t, nil
}
