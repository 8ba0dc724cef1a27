package exporter

import (
	"context"
	"log/slog"
	"path/filepath"

	"ineqmx/internal/dataset"
	"ineqmx/internal/enco"
	"ineqmx/internal/files"
	"ineqmx/internal/infrastructure"
)

// ExportShares writes the ENCO answer percentages of level as
// resultados_<level>_enco.csv and returns its path.
func (e *InequalityExporter) ExportShares(ctx context.Context, shares []enco.Share, level dataset.Level) (string, error) {
	_, span := infrastructure.StartSpan(ctx, "exporter.shares")
	defer span.End()

	sorted := append([]enco.Share(nil), shares...)
	enco.SortShares(sorted)
	table := enco.SharesTable(sorted, level, e.format.Percent)

	path, err := e.WriteTable(dataset.ResultFileName(level, dataset.KindENCO), table)
	if err != nil {
		return "", err
	}
	md := files.NewMetadata(filepath.Base(path)).
		Add("Level", string(level)).
		Add("Dataset", string(dataset.KindENCO)).
		Add("Rows", table.Len()).
		AddList("Columns", table.Header)
	if err := files.WriteMetadata(metadataPath(path), md, e.now()); err != nil {
		return "", err
	}
	e.logger.InfoContext(ctx, "Exported answer shares",
		slog.String("level", string(level)),
		slog.String("path", path),
		slog.Int("rows", table.Len()))
	return path, nil
}

// ExportPerception writes the perception scores as percepcion_<level>.csv.
func (e *InequalityExporter) ExportPerception(ctx context.Context, scores []enco.PerceptionScore, level dataset.Level) (string, error) {
	table := enco.PerceptionTable(scores, level, e.format.Percent)
	return e.WriteTable("percepcion_"+level.Suffix()+".csv", table)
}
