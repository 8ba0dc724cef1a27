// Package tabular holds header-indexed CSV tables and the column operations the
// cleaning steps need: select, rename, filter, join and append.
package tabular

import (
	"fmt"
	"strconv"
	"strings"
)

// Table is an in-memory CSV table. Rows are never shorter than Header.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// New builds a table, padding short rows with empty cells.
func New(header []string, rows [][]string) *Table {
	t := &Table{Header: append([]string(nil), header...)}
	t.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		t.Rows = append(t.Rows, t.pad(r))
	}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}
}

func (t *Table) pad(r []string) []string {
	if len(r) >= len(t.Header) {
		return r
	}
	out := make([]string, len(t.Header))
	copy(out, r)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[name]
	return i, ok
}

// Missing returns the names not present in the header.
func (t *Table) Missing(names ...string) []string {
	var missing []string
	for _, n := range names {
		if _, ok := t.ColumnIndex(n); !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Column returns a copy of a column's cells.
func (t *Table) Column(name string) ([]string, error) {
	i, ok := t.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// Value returns the trimmed cell at row and column, or "" when the column is absent.
func (t *Table) Value(row int, col string) string {
	i, ok := t.ColumnIndex(col)
	if !ok {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][i])
}

// Float parses a cell as float64.
func (t *Table) Float(row int, col string) (float64, error) {
	v := t.Value(row, col)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("row %d column %s: %w", row, col, err)
	}
	return f, nil
}

// Int parses a cell as int. Values written as floats ("12.0") are accepted when integral.
func (t *Table) Int(row int, col string) (int, error) {
	return ParseInt(t.Value(row, col))
}

// ParseInt parses integers that may carry a trailing ".0" from a float export.
func ParseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int(f), nil
}

// Row gives access to one row by column name.
type Row struct {
	t *Table
	i int
}

// Index is the row position within its table.
func (r Row) Index() int {
	return r.i
}

// Get returns the trimmed cell of col.
func (r Row) Get(col string) string {
	return r.t.Value(r.i, col)
}

// Float parses the cell of col.
func (r Row) Float(col string) (float64, error) {
	return r.t.Float(r.i, col)
}

// Int parses the cell of col.
func (r Row) Int(col string) (int, error) {
	return r.t.Int(r.i, col)
}

// Each calls fn for every row until it returns an error.
func (t *Table) Each(fn func(Row) error) error {
	for i := range t.Rows {
		if err := fn(Row{t: t, i: i}); err != nil {
			return err
		}
	}
	return nil
}

// Select returns a new table with only the named columns, in that order.
func (t *Table) Select(columns ...string) (*Table, error) {
	if missing := t.Missing(columns...); len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i], _ = t.ColumnIndex(c)
	}
	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]string, len(idx))
		for i, j := range idx {
			out[i] = row[j]
		}
		rows[r] = out
	}
	return New(columns, rows), nil
}

// Rename returns a table whose columns are renamed through mapping. Unmapped
// columns keep their name. Rows are shared with t.
func (t *Table) Rename(mapping map[string]string) *Table {
	header := make([]string, len(t.Header))
	for i, h := range t.Header {
		if n, ok := mapping[h]; ok {
			header[i] = n
		} else {
			header[i] = h
		}
	}
	out := &Table{Header: header, Rows: t.Rows}
	out.reindex()
	return out
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{Header: append([]string(nil), t.Header...)}
	for i, row := range t.Rows {
		if keep(Row{t: t, i: i}) {
			out.Rows = append(out.Rows, row)
		}
	}
	out.reindex()
	return out
}

// AddColumn appends a column computed from each row.
func (t *Table) AddColumn(name string, value func(Row) string) {
	for i := range t.Rows {
		v := value(Row{t: t, i: i})
		t.Rows[i] = append(t.Rows[i][:len(t.Header):len(t.Header)], v)
	}
	t.Header = append(t.Header, name)
	t.reindex()
}

// Append adds the rows of other, matched by column name. Columns of other that t
// lacks are dropped; columns other lacks are left empty.
func (t *Table) Append(other *Table) {
	idx := make([]int, len(t.Header))
	for i, h := range t.Header {
		j, ok := other.ColumnIndex(h)
		if !ok {
			j = -1
		}
		idx[i] = j
	}
	for _, row := range other.Rows {
		out := make([]string, len(t.Header))
		for i, j := range idx {
			if j >= 0 {
				out[i] = row[j]
			}
		}
		t.Rows = append(t.Rows, out)
	}
}

// Join is an inner join on the key columns. The result holds the columns of t
// followed by the non-key columns of other; a non-key column present in both
// tables is suffixed with "_y" on the right side. Output follows t's row order,
// and for each left row the matching right rows in their order.
func (t *Table) Join(other *Table, keys ...string) (*Table, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("join requires at least one key column")
	}
	if missing := t.Missing(keys...); len(missing) > 0 {
		return nil, fmt.Errorf("left table missing join keys: %s", strings.Join(missing, ", "))
	}
	if missing := other.Missing(keys...); len(missing) > 0 {
		return nil, fmt.Errorf("right table missing join keys: %s", strings.Join(missing, ", "))
	}

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	header := append([]string(nil), t.Header...)
	var rightCols []int
	for j, h := range other.Header {
		if isKey[h] {
			continue
		}
		rightCols = append(rightCols, j)
		if _, clash := t.ColumnIndex(h); clash {
			h += "_y"
		}
		header = append(header, h)
	}

	right := make(map[string][]int)
	for r := range other.Rows {
		k := other.keyOf(r, keys)
		right[k] = append(right[k], r)
	}

	var rows [][]string
	for l, lrow := range t.Rows {
		for _, r := range right[t.keyOf(l, keys)] {
			out := make([]string, 0, len(header))
			out = append(out, lrow[:len(t.Header)]...)
			for _, j := range rightCols {
				out = append(out, other.Rows[r][j])
			}
			rows = append(rows, out)
		}
	}
	return New(header, rows), nil
}

func (t *Table) keyOf(row int, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = t.Value(row, k)
	}
	return strings.Join(parts, "\x1f")
}
