package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ineqmx/internal/tabular"
)

func table(t *testing.T, s string) *tabular.Table {
	t.Helper()
	tbl, err := tabular.Read(strings.NewReader(s), tabular.ReadOptions{})
	require.NoError(t, err)
	return tbl
}

func householdSchema() *Schema {
	return &Schema{
		Name: "households",
		Fields: []Field{
			{Name: "folioviv", Required: true},
			{Name: "foliohog", Required: true},
			{Name: "entidad", Required: true, Checks: []Check{IntRange(1, 32)}},
			{Name: "municipio", Required: true, Checks: []Check{Digits(3)}},
			{Name: "ing_cor", Required: true, Checks: []Check{FloatMin(0, false), FloatMax(1e6)}},
			{Name: "factor", Required: true, Checks: []Check{FloatMin(0, true)}},
			{Name: "optional"},
		},
		UniqueKeys: [][]string{{"folioviv", "foliohog"}},
	}
}

func TestValidateClean(t *testing.T) {
	tbl := table(t, "folioviv,foliohog,entidad,municipio,ing_cor,factor\n"+
		"100,1,9,002,15000.5,250\n"+
		"100,2,9,002,0,250\n")

	report := householdSchema().Validate(tbl)
	assert.True(t, report.OK())
	assert.Empty(t, report.Findings)
	assert.NoError(t, report.Err())
	assert.Equal(t, 2, report.Rows)
}

func TestValidateFindings(t *testing.T) {
	tbl := table(t, "folioviv,foliohog,entidad,municipio,ing_cor,factor\n"+
		"100,1,33,02,-5,0\n"+
		"100,1,9,002,2000000,10\n"+
		",2,9,002,10,10\n")

	report := householdSchema().Validate(tbl)
	require.False(t, report.OK())

	checks := map[string]Level{}
	for _, f := range report.Findings {
		checks[f.Field+":"+f.Check] = f.Level
	}
	assert.Equal(t, LevelError, checks["entidad:int_range[1,32]"])
	assert.Equal(t, LevelError, checks["municipio:digits[3]"])
	assert.Equal(t, LevelError, checks["ing_cor:min>=0"])
	assert.Equal(t, LevelWarning, checks["ing_cor:max<=1e+06"])
	assert.Equal(t, LevelError, checks["factor:min>0"])
	assert.Equal(t, LevelError, checks["folioviv:not_empty"])
	assert.Equal(t, LevelError, checks["folioviv+foliohog:unique"])

	assert.Len(t, report.Warnings(), 1)
	assert.ErrorContains(t, report.Err(), "households validation failed")
}

func TestValidateMissingColumn(t *testing.T) {
	tbl := table(t, "folioviv,foliohog\n1,1\n")
	report := householdSchema().Validate(tbl)

	var missing []string
	for _, f := range report.Errors() {
		if f.Check == "present" {
			missing = append(missing, f.Field)
		}
	}
	assert.ElementsMatch(t, []string{"entidad", "municipio", "ing_cor", "factor"}, missing)
}

func TestValidateCapsFindings(t *testing.T) {
	var b strings.Builder
	b.WriteString("entidad\n")
	for i := 0; i < 50; i++ {
		b.WriteString("99\n")
	}
	s := &Schema{Name: "cap", MaxFindings: 5, Fields: []Field{{Name: "entidad", Checks: []Check{IntRange(0, 32)}}}}

	report := s.Validate(table(t, b.String()))
	assert.Len(t, report.Findings, 5)
	assert.Equal(t, 50, report.Counts["entidad:int_range[0,32]"])
	assert.ErrorContains(t, report.Err(), "(50 rows)")
}

func TestUniqueAsWarning(t *testing.T) {
	s := &Schema{
		Name:        "enco",
		Fields:      []Field{{Name: "fol"}},
		UniqueKeys:  [][]string{{"fol"}},
		UniqueLevel: LevelWarning,
	}
	report := s.Validate(table(t, "fol\nA\nA\n"))
	assert.True(t, report.OK())
	require.Len(t, report.Warnings(), 1)
	assert.Equal(t, "duplicate of row 0", report.Warnings()[0].Message)
}

func TestChecks(t *testing.T) {
	tests := []struct {
		name  string
		check Check
		value string
		ok    bool
	}{
		{"int in range", IntRange(0, 570), "570", true},
		{"int float form", IntRange(0, 570), "12.0", true},
		{"int out of range", IntRange(0, 570), "571", false},
		{"int garbage", IntRange(0, 570), "abc", false},
		{"float", Float(), "1e3", true},
		{"float garbage", Float(), "1,000", false},
		{"min inclusive", FloatMin(0, false), "0", true},
		{"min exclusive", FloatMin(0, true), "0", false},
		{"max", FloatMax(10), "10.5", false},
		{"digits", Digits(4), "0010", true},
		{"digits letters", Digits(4), "001A", false},
		{"digits length", Digits(2), "1", false},
		{"max len", MaxLen(5), "Mérida", false},
		{"max len runes", MaxLen(6), "Mérida", true},
		{"alphanumeric", Alphanumeric(), "010A", true},
		{"alphanumeric dash", Alphanumeric(), "01-A", false},
		{"one of", OneOf("1", "2"), "2", true},
		{"one of miss", OneOf("1", "2"), "3", false},
		{"tag date", Tag("datetime=2006-01-02"), "2022-03-15", true},
		{"tag date bad", Tag("datetime=2006-01-02"), "15/03/2022", false},
		{"tag numeric", Tag("numeric"), "12.5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check.Fn(tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	assert.Equal(t, LevelWarning, IntRange(0, 1).AsWarning().level())
	assert.Equal(t, LevelError, IntRange(0, 1).level())
}

func TestColumns(t *testing.T) {
	assert.Equal(t, []string{"folioviv", "foliohog", "entidad", "municipio", "ing_cor", "factor", "optional"},
		householdSchema().Columns())
}
