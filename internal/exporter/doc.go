// Package exporter writes result tables to disk.
//
// This package contains three main components:
//
// WriteCSV and Resolve: place a table in the data tree and write it, optionally
// with a UTF-8 BOM for Excel.
//
// InequalityExporter: Lays out inequality results as the resultados_* tables
// (group keys, gini, decil_1..decil_10) and writes one CSV per aggregation level.
//
// Workbook: Collects the level tables into a single XLSX file with one sheet
// per level.
//
// Example usage:
//
//	exp := exporter.NewInequalityExporter(paths, exporter.WithPrecision(4))
//	path, err := exp.Export(ctx, results, dataset.LevelState, dataset.KindENIGH)
package exporter
