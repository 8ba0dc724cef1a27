package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"ineqmx/internal/dataset"
	"ineqmx/internal/tabular"
)

// WorkbookFileName is the XLSX holding every level of a dataset.
func WorkbookFileName(kind dataset.Kind) string {
	return fmt.Sprintf("resultados_%s.xlsx", kind)
}

// WriteWorkbook writes one sheet per level, in dataset.Levels order. Cells that
// parse as numbers are stored as numbers. Levels without a table are skipped.
func WriteWorkbook(path string, tables map[dataset.Level]*tabular.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	first := true
	for _, level := range dataset.Levels {
		table, ok := tables[level]
		if !ok || table == nil {
			continue
		}
		sheet := level.Sheet()
		if first {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
			first = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		if err := writeSheet(f, sheet, table, header); err != nil {
			return fmt.Errorf("sheet %s: %w", sheet, err)
		}
	}
	if first {
		return fmt.Errorf("no tables to write")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, sheet string, table *tabular.Table, headerStyle int) error {
	head := make([]interface{}, len(table.Header))
	for i, h := range table.Header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(table.Header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range table.Rows {
		values := make([]interface{}, len(table.Header))
		for j := range table.Header {
			values[j] = cellValue(table.Header[j], row[j])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// cellValue keeps code columns as text so leading zeros survive.
func cellValue(column, v string) interface{} {
	switch column {
	case ColEntidad, ColMunicipio, ColEstado:
		return v
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// ReadWorkbookSheet returns the rows of one sheet, header first.
func ReadWorkbookSheet(path string, level dataset.Level) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetRows(level.Sheet())
}
