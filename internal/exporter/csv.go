package exporter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ineqmx/internal/config"
	"ineqmx/internal/tabular"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Resolve maps a file name onto the data tree. Absolute paths are kept,
// "reports/" and "processed/" prefixes select those directories, and
// anything else lands in the external results directory.
func Resolve(paths *config.Paths, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	slashed := filepath.ToSlash(name)
	if rest, ok := strings.CutPrefix(slashed, "reports/"); ok {
		return paths.Report(rest)
	}
	if rest, ok := strings.CutPrefix(slashed, "processed/"); ok {
		return filepath.Join(paths.ProcessedDir, filepath.FromSlash(rest))
	}
	return paths.External(name)
}

// WriteCSV writes table to path, replacing any existing file. With bom the
// file starts with a UTF-8 byte order mark so spreadsheet tools pick the
// right encoding for state names.
func WriteCSV(path string, table *tabular.Table, bom bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if bom {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}
	if err := table.Write(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
