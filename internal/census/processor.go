package census

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
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/schema"
	"ineqmx/internal/tabular"
)

// Tidy file names under processed/.
const (
	IterFileName   = "censo_tidy_data.csv"
	POBFileName    = "pob_tidy_data.csv"
	AGEBFileName   = "ageb_tidy_data.csv"
	ShpEntFileName = "shp_ent_tidy_data.csv"
	ShpMunFileName = "shp_mun_tidy_data.csv"
)

// Output lists the tidy tables written by Process, keyed by product.
type Output struct {
	Year  int
	Files map[string]string
	Rows  map[string]int
}

func (o *Output) add(product, path string, rows int) {
	o.Files[product] = path
	o.Rows[product] = rows
}

// Processor cleans the census and shapefile products of a census year.
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
		logger:   infrastructure.WithComponent(logger, "censo"),
		now:      time.Now,
	}
}

func (p *Processor) rawPath(kind dataset.Kind, year int, table string) (string, error) {
	rel, err := p.manifest.Lookup(kind, year, 0, table)
	if err != nil {
		return "", apperrors.NewNotFoundError(string(kind)+" table").
			WithContext("year", year).
			WithContext("table", table)
	}
	path := filepath.Join(p.paths.Raw(string(kind), year), filepath.FromSlash(rel))
	if !config.FileExists(path) {
		return "", apperrors.NewNotFoundError(string(kind)+" file").WithContext("path", path)
	}
	return path, nil
}

// Process cleans every product of year that is present on disk. ITER is
// required; AGEB tables and shapefiles are optional.
func (p *Processor) Process(ctx context.Context, year int) (*Output, error) {
	ctx, span := infrastructure.StartSpan(ctx, "censo.process")
	defer span.End()

	out := &Output{Year: year, Files: make(map[string]string), Rows: make(map[string]int)}
	if err := p.processIter(ctx, year, out); err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		fn   func(context.Context, int, *Output) error
	}{
		{"ageb", p.processAGEB},
		{"shp", p.processShp},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := s.fn(ctx, year, out)
		if apperrors.IsNotFound(err) {
			p.logger.WarnContext(ctx, "Skipping census product", slog.String("product", s.name), slog.String("reason", err.Error()))
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Processor) processIter(ctx context.Context, year int, out *Output) error {
	src, err := p.rawPath(dataset.KindCenso, year, dataset.TableIter)
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "Loading ITER table", slog.String("path", src))
	raw, err := tabular.ReadFile(src, tabular.ReadOptions{Encoding: tabular.Latin1})
	if err != nil {
		return apperrors.NewParsingError("failed to read iter table", err).WithContext("path", src)
	}

	tidy, reports, err := TransformIter(raw)
	p.logReports(ctx, reports...)
	if err != nil {
		return apperrors.NewAppValidationError(err.Error()).WithContext("path", src)
	}
	path := filepath.Join(p.paths.Processed(string(dataset.KindCenso)), IterFileName)
	if err := p.write(ctx, tidy, path, "CENSO Data Transformation", src, IterColumns); err != nil {
		return err
	}
	out.add("iter", path, tidy.Len())

	pob, stats, err := TransformPOB(raw)
	if err != nil {
		return apperrors.NewAppValidationError(err.Error()).WithContext("path", src)
	}
	for col, n := range stats.Clipped {
		p.logger.WarnContext(ctx, "Clipped out of range values", slog.String("column", col), slog.Int("rows", n))
	}
	if stats.Dropped > 0 {
		p.logger.WarnContext(ctx, "Dropped rows with non-numeric population", slog.Int("rows", stats.Dropped))
	}
	path = filepath.Join(p.paths.Processed(string(dataset.KindCenso)), POBFileName)
	if err := p.write(ctx, pob, path, "POB Data Transformation", src, POBColumns); err != nil {
		return err
	}
	out.add("pob", path, pob.Len())
	return nil
}

func (p *Processor) processAGEB(ctx context.Context, year int, out *Output) error {
	entries := p.manifest.Tables(dataset.KindCenso, year, dataset.TableAGEBPrefix)
	if len(entries) == 0 {
		return apperrors.NewNotFoundError("ageb tables").WithContext("year", year)
	}

	var all *tabular.Table
	for _, e := range entries {
		src, err := p.rawPath(dataset.KindCenso, year, e.Table)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		t, err := tabular.ReadFile(src, tabular.ReadOptions{Encoding: tabular.Latin1})
		if err != nil {
			return apperrors.NewParsingError("failed to read ageb table", err).WithContext("path", src)
		}
		if all == nil {
			all = t
		} else {
			all.Append(t)
		}
	}
	if all == nil {
		return apperrors.NewNotFoundError("ageb files").WithContext("year", year)
	}

	tidy, report, err := TransformAGEB(all)
	p.logReports(ctx, report)
	if err != nil {
		return apperrors.NewAppValidationError(err.Error()).WithContext("product", "ageb")
	}
	path := filepath.Join(p.paths.Processed(string(dataset.KindCenso)), AGEBFileName)
	src := p.paths.Raw(string(dataset.KindCenso), year)
	if err := p.write(ctx, tidy, path, "AGEB Data Transformation", src, AGEBColumns); err != nil {
		return err
	}
	out.add("ageb", path, tidy.Len())
	return nil
}

func (p *Processor) processShp(ctx context.Context, year int, out *Output) error {
	layers := []struct {
		table, product, file string
	}{
		{dataset.TableShpEnt, "shp_ent", ShpEntFileName},
		{dataset.TableShpMun, "shp_mun", ShpMunFileName},
	}
	for _, l := range layers {
		src, err := p.rawPath(dataset.KindSHP, year, l.table)
		if err != nil {
			return err
		}
		raw, _, err := ReadDBFFile(src)
		if err != nil {
			return apperrors.NewParsingError("failed to read shapefile attributes", err).WithContext("path", src)
		}
		tidy, report, err := TransformShp(raw)
		p.logReports(ctx, report)
		if err != nil {
			return apperrors.NewAppValidationError(err.Error()).WithContext("path", src)
		}
		path := filepath.Join(p.paths.Processed(string(dataset.KindSHP)), l.file)
		if err := p.write(ctx, tidy, path, "SHP Data Transformation", src, tidy.Header); err != nil {
			return err
		}
		out.add(l.product, path, tidy.Len())
	}
	return nil
}

func (p *Processor) write(ctx context.Context, t *tabular.Table, path, title, src string, columns []string) error {
	if err := t.WriteFile(path); err != nil {
		return apperrors.NewStorageError("failed to write tidy table", err).WithContext("path", path)
	}
	md := files.NewMetadata(title).
		Add("Source", src).
		Add("Tidy data saved at", path).
		Add("Rows", t.Len()).
		AddList("Selected columns", columns)
	meta := path[:len(path)-len(filepath.Ext(path))] + "_metadata.txt"
	if err := files.WriteMetadata(meta, md, p.now()); err != nil {
		p.logger.WarnContext(ctx, "Failed to write metadata", slog.String("error", err.Error()))
	}
	p.logger.InfoContext(ctx, "Saved tidy data", slog.String("path", path), slog.Int("rows", t.Len()))
	return nil
}

func (p *Processor) logReports(ctx context.Context, reports ...*schema.Report) {
	for _, r := range reports {
		if r == nil {
			continue
		}
		for _, f := range r.Findings {
			level := slog.LevelWarn
			if f.Level == schema.LevelError {
				level = slog.LevelError
			}
			p.logger.Log(ctx, level, "Validation finding",
				slog.String("schema", r.Schema),
				slog.String("field", f.Field),
				slog.String("check", f.Check),
				slog.Int("row", f.Row),
				slog.String("message", fmt.Sprintf("%s %s", f.Message, f.Value)))
		}
	}
}
