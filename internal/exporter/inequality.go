package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	"ineqmx/internal/files"
	"ineqmx/internal/inequality"
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/tabular"
)

// Column names of the result tables.
const (
	ColYear      = "year"
	ColEstado    = "estado"
	ColEntidad   = "entidad"
	ColMunicipio = "municipio"
	ColGini      = "gini"
	// ColGiniDeciles is the Gini of the decile table itself, reported in
	// national and state tables.
	ColGiniDeciles = "gini_deciles"
	ColMean        = "ingreso_promedio_total"
)

// DecileColumn is the name of decile i (1-based), e.g. decil_3.
func DecileColumn(i int) string {
	return fmt.Sprintf("decil_%d", i)
}

// KeyFunc returns the grouping that produces the table of level.
func KeyFunc(level dataset.Level) inequality.KeyFunc {
	switch level {
	case dataset.LevelState:
		return inequality.ByRegionPeriod
	case dataset.LevelMunicipal:
		return inequality.BySubregionPeriod
	default:
		return inequality.ByPeriod
	}
}

// KeyColumns lists the leading columns of a level's table.
func KeyColumns(level dataset.Level) []string {
	switch level {
	case dataset.LevelState:
		return []string{ColYear, ColEstado, ColEntidad}
	case dataset.LevelMunicipal:
		return []string{ColYear, ColEstado, ColEntidad, ColMunicipio}
	default:
		return []string{ColYear}
	}
}

// InequalityExporter writes inequality results as resultados_* tables.
type InequalityExporter struct {
	paths       *config.Paths
	format      Formatter
	includeMean bool
	bom         bool
	logger      *slog.Logger
	now         func() time.Time
}

// InequalityOption customizes an InequalityExporter.
type InequalityOption func(*InequalityExporter)

// WithPrecision sets the number of decimals of numeric columns.
func WithPrecision(p int32) InequalityOption {
	return func(e *InequalityExporter) { e.format.Precision = p }
}

// WithMeanColumn toggles the ingreso_promedio_total column.
func WithMeanColumn(on bool) InequalityOption {
	return func(e *InequalityExporter) { e.includeMean = on }
}

// WithBOM prefixes files with a UTF-8 byte order mark.
func WithBOM(on bool) InequalityOption {
	return func(e *InequalityExporter) { e.bom = on }
}

// WithExportLogger sets the logger.
func WithExportLogger(logger *slog.Logger) InequalityOption {
	return func(e *InequalityExporter) { e.logger = logger }
}

// NewInequalityExporter creates an exporter writing into paths.
func NewInequalityExporter(paths *config.Paths, opts ...InequalityOption) *InequalityExporter {
	e := &InequalityExporter{
		paths:       paths,
		format:      Formatter{Precision: DefaultPrecision},
		includeMean: true,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = infrastructure.WithComponent(e.logger, "exporter")
	return e
}

// FromPipelineConfig maps pipeline settings onto exporter options.
func FromPipelineConfig(cfg config.PipelineConfig) []InequalityOption {
	return []InequalityOption{
		WithPrecision(cfg.Precision),
		WithMeanColumn(cfg.IncludeMeanColumn),
		WithBOM(cfg.WriteBOM),
	}
}

// Headers returns the column layout of level.
func (e *InequalityExporter) Headers(level dataset.Level) []string {
	headers := append(KeyColumns(level), ColGini)
	if level != dataset.LevelMunicipal {
		headers = append(headers, ColGiniDeciles)
	}
	for i := 1; i <= inequality.DecileCount; i++ {
		headers = append(headers, DecileColumn(i))
	}
	if e.includeMean {
		headers = append(headers, ColMean)
	}
	return headers
}

// sortForLevel orders national tables by year and regional tables by state
// name, then municipality, then year.
func sortForLevel(results []inequality.Result, level dataset.Level) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Key, results[j].Key
		if level != dataset.LevelNational {
			na, nb := dataset.StateNameOf(a.Region), dataset.StateNameOf(b.Region)
			if na != nb {
				return na < nb
			}
			if a.Subregion != b.Subregion {
				return a.Subregion < b.Subregion
			}
		}
		return a.Less(b)
	})
}

// Table lays results out for level. Rows are sorted and results is not modified.
func (e *InequalityExporter) Table(results []inequality.Result, level dataset.Level) *tabular.Table {
	sorted := append([]inequality.Result(nil), results...)
	sortForLevel(sorted, level)

	records := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		records = append(records, e.record(r, level))
	}
	return tabular.New(e.Headers(level), records)
}

func (e *InequalityExporter) record(r inequality.Result, level dataset.Level) []string {
	var rec []string
	rec = append(rec, r.Key.Period)
	if level != dataset.LevelNational {
		rec = append(rec, dataset.StateNameOf(r.Key.Region), r.Key.Region)
	}
	if level == dataset.LevelMunicipal {
		rec = append(rec, r.Key.Subregion)
	}
	rec = append(rec, e.format.Float(r.Gini))
	if level != dataset.LevelMunicipal {
		// Left empty when every decile average is zero.
		var cell string
		if g, err := inequality.GiniFromDeciles(r.Deciles); err == nil {
			cell = e.format.Float(g)
		}
		rec = append(rec, cell)
	}

	for _, b := range r.Deciles {
		rec = append(rec, e.format.Float(b.AverageIncome))
	}
	if e.includeMean {
		rec = append(rec, e.format.Float(r.MeanDecileIncome()))
	}
	return rec
}

// Export writes the table of level for kind and a metadata file next to it.
// It returns the CSV path.
func (e *InequalityExporter) Export(ctx context.Context, results []inequality.Result, level dataset.Level, kind dataset.Kind) (string, error) {
	_, span := infrastructure.StartSpan(ctx, "exporter.inequality")
	defer span.End()

	table := e.Table(results, level)
	path, err := e.WriteTable(dataset.ResultFileName(level, kind), table)
	if err != nil {
		return "", err
	}

	md := files.NewMetadata(filepath.Base(path)).
		Add("Level", string(level)).
		Add("Dataset", string(kind)).
		Add("Groups", table.Len()).
		Add("Precision", e.format.Precision).
		AddList("Columns", table.Header)
	if err := files.WriteMetadata(metadataPath(path), md, e.now()); err != nil {
		return "", err
	}
	e.logger.InfoContext(ctx, "Exported inequality table",
		slog.String("level", string(level)),
		slog.String("path", path),
		slog.Int("groups", table.Len()))
	return path, nil
}

// WriteTable writes table to name, resolved with Resolve, and returns the
// full path.
func (e *InequalityExporter) WriteTable(name string, table *tabular.Table) (string, error) {
	path := Resolve(e.paths, name)
	e.logger.Debug("Writing CSV file", slog.String("path", path), slog.Int("rows", table.Len()))
	if err := WriteCSV(path, table, e.bom); err != nil {
		return "", err
	}
	return path, nil
}

func metadataPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + "_metadata.txt"
}

// ExportWorkbook writes the level tables of kind into one XLSX file.
func (e *InequalityExporter) ExportWorkbook(ctx context.Context, tables map[dataset.Level]*tabular.Table, kind dataset.Kind) (string, error) {
	_, span := infrastructure.StartSpan(ctx, "exporter.workbook")
	defer span.End()

	path := Resolve(e.paths, WorkbookFileName(kind))
	if err := WriteWorkbook(path, tables); err != nil {
		return "", fmt.Errorf("failed to write workbook: %w", err)
	}
	e.logger.InfoContext(ctx, "Exported workbook",
		slog.String("path", path),
		slog.Int("sheets", len(tables)))
	return path, nil
}
