package enigh

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/files"
	"ineqmx/internal/inequality"
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/schema"
	"ineqmx/internal/tabular"
)

// TidyFileName is the interim file written for a survey year.
func TidyFileName(year int) string {
	return fmt.Sprintf("enigh_tidy_data_%d.csv", year)
}

// Output is the result of processing one survey year.
type Output struct {
	Year         int
	Source       string
	TidyPath     string
	Table        *tabular.Table
	Observations []inequality.Observation
	Raw          *schema.Report
	Tidy         *schema.Report
	Summary      []ColumnSummary
}

// Processor cleans the ENIGH table of each configured year.
type Processor struct {
	paths    *config.Paths
	manifest *dataset.Manifest
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor creates a processor reading raw files through manifest.
func NewProcessor(paths *config.Paths, manifest *dataset.Manifest, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		paths:    paths,
		manifest: manifest,
		logger:   infrastructure.WithComponent(logger, "enigh"),
		now:      time.Now,
	}
}

// RawPath returns the concentradohogar file of year.
func (p *Processor) RawPath(year int) (string, error) {
	rel, err := p.manifest.Lookup(dataset.KindENIGH, year, 0, dataset.TableConcentradoHogar)
	if err != nil {
		return "", apperrors.NewNotFoundError("enigh table").WithContext("year", year).WithContext("cause", err.Error())
	}
	return filepath.Join(p.paths.Raw(string(dataset.KindENIGH), year), filepath.FromSlash(rel)), nil
}

// Process loads, validates, transforms and writes the tidy table of year.
func (p *Processor) Process(ctx context.Context, year int) (*Output, error) {
	ctx, span := infrastructure.StartSpan(ctx, "enigh.process")
	defer span.End()

	src, err := p.RawPath(year)
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "Loading raw ENIGH data", slog.Int("year", year), slog.String("path", src))

	raw, err := tabular.ReadFile(src, tabular.ReadOptions{})
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read enigh table", err).WithContext("path", src)
	}

	out, err := p.ProcessTable(ctx, raw, year)
	if err != nil {
		return nil, err
	}
	out.Source = src

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out.TidyPath = filepath.Join(p.paths.Interim(string(dataset.KindENIGH), year), TidyFileName(year))
	if err := out.Table.WriteFile(out.TidyPath); err != nil {
		return nil, apperrors.NewStorageError("failed to write tidy table", err).WithContext("path", out.TidyPath)
	}
	meta := filepath.Join(p.paths.Interim(string(dataset.KindENIGH), year), fmt.Sprintf("enigh_transform_metadata_%d.txt", year))
	md := files.NewMetadata("ENIGH Data Transformation").
		Add("Source", src).
		Add("Tidy data saved at", out.TidyPath).
		Add("Rows", out.Table.Len()).
		AddList("Selected columns", RequiredColumns)
	if err := files.WriteMetadata(meta, md, p.now()); err != nil {
		p.logger.WarnContext(ctx, "Failed to write metadata", slog.String("error", err.Error()))
	}

	p.logger.InfoContext(ctx, "Saved tidy ENIGH data",
		slog.Int("year", year),
		slog.String("path", out.TidyPath),
		slog.Int("rows", out.Table.Len()))
	return out, nil
}

// ProcessTable validates and transforms an already loaded raw table.
func (p *Processor) ProcessTable(ctx context.Context, raw *tabular.Table, year int) (*Output, error) {
	out := &Output{Year: year}

	out.Raw = RawSchema().Validate(raw)
	p.logFindings(ctx, out.Raw)
	if err := out.Raw.Err(); err != nil {
		return nil, apperrors.NewAppValidationError(err.Error()).WithContext("year", year)
	}

	tidy, err := Transform(raw, year)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to transform enigh table", err).WithContext("year", year)
	}
	out.Tidy = TidySchema().Validate(tidy)
	p.logFindings(ctx, out.Tidy)
	if err := out.Tidy.Err(); err != nil {
		return nil, apperrors.NewAppValidationError(err.Error()).WithContext("year", year)
	}
	out.Table = tidy

	if out.Observations, err = Observations(tidy); err != nil {
		return nil, apperrors.NewParsingError("failed to decode households", err).WithContext("year", year)
	}

	out.Summary = Summarize(tidy, ColIngCor, "ingtrab", ColFactor)
	for _, s := range out.Summary {
		p.logger.DebugContext(ctx, "Column summary",
			slog.String("column", s.Column),
			slog.Int("count", s.Count),
			slog.Float64("mean", s.Mean),
			slog.Float64("min", s.Min),
			slog.Float64("max", s.Max))
	}
	return out, nil
}

func (p *Processor) logFindings(ctx context.Context, r *schema.Report) {
	for _, f := range r.Warnings() {
		p.logger.WarnContext(ctx, "Validation warning",
			slog.String("schema", r.Schema),
			slog.String("field", f.Field),
			slog.String("check", f.Check),
			slog.Int("row", f.Row),
			slog.String("value", f.Value))
	}
	for _, f := range r.Errors() {
		p.logger.ErrorContext(ctx, "Validation error",
			slog.String("schema", r.Schema),
			slog.String("field", f.Field),
			slog.String("check", f.Check),
			slog.Int("row", f.Row),
			slog.String("message", f.Message))
	}
}

// LoadObservations reads the tidy table that Process wrote for year.
func (p *Processor) LoadObservations(ctx context.Context, year int) ([]inequality.Observation, error) {
	path := filepath.Join(p.paths.Interim(string(dataset.KindENIGH), year), TidyFileName(year))
	if !config.FileExists(path) {
		return nil, apperrors.NewNotFoundError("enigh tidy table").WithContext("path", path)
	}
	tidy, err := tabular.ReadFile(path, tabular.ReadOptions{})
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read tidy table", err).WithContext("path", path)
	}
	obs, err := Observations(tidy)
	if err != nil {
		return nil, apperrors.NewParsingError("invalid tidy table", err).WithContext("path", path)
	}
	p.logger.DebugContext(ctx, "Loaded tidy ENIGH data", slog.Int("year", year), slog.Int("rows", len(obs)))
	return obs, nil
}
