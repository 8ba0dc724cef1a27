package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Encoding of a CSV file on disk.
type Encoding int

const (
	UTF8 Encoding = iota
	// Latin1 is used by the census ITER and AGEB tables.
	Latin1
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadOptions tune Read.
type ReadOptions struct {
	Encoding Encoding
	Comma    rune
}

// Read parses a CSV stream whose first record is the header. A UTF-8 byte order
// mark is stripped and header names are trimmed. Quotes are parsed leniently
// because INEGI files occasionally carry stray quotes inside names.
func Read(r io.Reader, opts ReadOptions) (*Table, error) {
	if opts.Encoding == Latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv: no header")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		rows = append(rows, rec)
	}
	return New(header, rows), nil
}

// ReadFile reads a CSV file.
func ReadFile(path string, opts ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadDir reads and appends every *.csv file of dir in name order. The first
// file's header is used.
func ReadDir(dir string, opts ReadOptions) (*Table, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no csv files in %s", dir)
	}

	var out *Table
	for _, m := range matches {
		t, err := ReadFile(m, opts)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = t
			continue
		}
		out.Append(t)
	}
	return out, nil
}

// Write encodes the table as CSV with a header row.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row[:len(t.Header)]); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the table to path, creating parent directories.
func (t *Table) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
