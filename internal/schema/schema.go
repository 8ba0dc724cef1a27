// Package schema validates tables against declarative field rules.
//
// A Schema lists fields and the checks each cell must pass. Validate walks a
// tabular.Table once and returns a Report separating errors from warnings, so
// the cleaning steps decide whether to stop or only log.
package schema

import (
	"fmt"
	"strings"

	"ineqmx/internal/tabular"
)

// Level is the severity of a finding.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Finding is one failed check.
type Finding struct {
	Level   Level  `json:"level"`
	Field   string `json:"field"`
	Check   string `json:"check"`
	Row     int    `json:"row"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// Report is the outcome of Validate. Findings beyond MaxFindings per field and
// check are counted but not kept.
type Report struct {
	Schema   string         `json:"schema"`
	Rows     int            `json:"rows"`
	Findings []Finding      `json:"findings"`
	Counts   map[string]int `json:"counts"`
}

// OK reports whether no error-level finding was recorded.
func (r *Report) OK() bool {
	return len(r.Errors()) == 0
}

// Errors returns error-level findings.
func (r *Report) Errors() []Finding {
	return r.filter(LevelError)
}

// Warnings returns warning-level findings.
func (r *Report) Warnings() []Finding {
	return r.filter(LevelWarning)
}

func (r *Report) filter(level Level) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Level == level {
			out = append(out, f)
		}
	}
	return out
}

// Err returns nil when the report is OK, otherwise an error summarizing the
// failing checks.
func (r *Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var parts []string
	for _, f := range errs {
		k := f.Field + ":" + f.Check
		if seen[k] {
			continue
		}
		seen[k] = true
		parts = append(parts, fmt.Sprintf("%s %s (%d rows)", f.Field, f.Check, r.Counts[k]))
	}
	return fmt.Errorf("%s validation failed: %s", r.Schema, strings.Join(parts, "; "))
}

func (r *Report) add(f Finding, limit int) {
	k := f.Field + ":" + f.Check
	r.Counts[k]++
	if r.Counts[k] <= limit {
		r.Findings = append(r.Findings, f)
	}
}

// Field declares the rules of one column.
type Field struct {
	Name     string
	Required bool
	// AllowEmpty skips checks on empty cells. Otherwise an empty cell in a
	// required field is an error.
	AllowEmpty bool
	Checks     []Check
}

// Schema is a named set of field rules plus optional composite unique keys.
type Schema struct {
	Name       string
	Fields     []Field
	UniqueKeys [][]string
	// UniqueLevel is the severity of duplicate keys. Defaults to LevelError.
	UniqueLevel Level
	// MaxFindings caps the findings kept per field and check. Defaults to 20.
	MaxFindings int
}

// Columns returns the names of all declared fields.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Validate checks every row of t.
func (s *Schema) Validate(t *tabular.Table) *Report {
	limit := s.MaxFindings
	if limit <= 0 {
		limit = 20
	}
	report := &Report{Schema: s.Name, Rows: t.Len(), Counts: make(map[string]int)}

	var present []Field
	for _, f := range s.Fields {
		if _, ok := t.ColumnIndex(f.Name); !ok {
			if f.Required {
				report.add(Finding{
					Level:   LevelError,
					Field:   f.Name,
					Check:   "present",
					Row:     -1,
					Message: fmt.Sprintf("missing column %s", f.Name),
				}, limit)
			}
			continue
		}
		present = append(present, f)
	}

	for row := 0; row < t.Len(); row++ {
		for _, f := range present {
			v := t.Value(row, f.Name)
			if v == "" {
				if f.Required && !f.AllowEmpty {
					report.add(Finding{
						Level:   LevelError,
						Field:   f.Name,
						Check:   "not_empty",
						Row:     row,
						Message: "value is empty",
					}, limit)
				}
				continue
			}
			for _, c := range f.Checks {
				if err := c.Fn(v); err != nil {
					report.add(Finding{
						Level:   c.level(),
						Field:   f.Name,
						Check:   c.Name,
						Row:     row,
						Value:   v,
						Message: err.Error(),
					}, limit)
				}
			}
		}
	}

	level := s.UniqueLevel
	if level == "" {
		level = LevelError
	}
	for _, key := range s.UniqueKeys {
		s.checkUnique(t, key, level, limit, report)
	}

	return report
}

func (s *Schema) checkUnique(t *tabular.Table, key []string, level Level, limit int, report *Report) {
	if missing := t.Missing(key...); len(missing) > 0 {
		return
	}
	field := strings.Join(key, "+")
	seen := make(map[string]int, t.Len())
	for row := 0; row < t.Len(); row++ {
		parts := make([]string, len(key))
		for i, k := range key {
			parts[i] = t.Value(row, k)
		}
		k := strings.Join(parts, "|")
		if first, dup := seen[k]; dup {
			report.add(Finding{
				Level:   level,
				Field:   field,
				Check:   "unique",
				Row:     row,
				Value:   k,
				Message: fmt.Sprintf("duplicate of row %d", first),
			}, limit)
			continue
		}
		seen[k] = row
	}
}
