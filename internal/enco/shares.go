package enco

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ineqmx/internal/dataset"
	"ineqmx/internal/tabular"
)

// Share is the percentage of interviews in a group that gave one answer.
type Share struct {
	Question     string  `json:"question"`
	Year         string  `json:"year"`
	State        string  `json:"state,omitempty"`
	Municipality string  `json:"municipality,omitempty"`
	Answer       string  `json:"answer"`
	Percent      float64 `json:"percent"`
}

type shareGroup struct {
	year, state, mpio string
}

func groupOf(t *tabular.Table, row int, level dataset.Level) shareGroup {
	g := shareGroup{year: t.Value(row, ColYear)}
	if level == dataset.LevelState || level == dataset.LevelMunicipal {
		g.state = dataset.StateNameOf(t.Value(row, ColEnt))
	}
	if level == dataset.LevelMunicipal {
		g.mpio = normalizeCode(t.Value(row, ColMpio))
	}
	return g
}

// normalizeCode renders "3", "3.0" and "003" alike.
func normalizeCode(s string) string {
	if s == "" {
		return "0"
	}
	if n, err := tabular.ParseInt(s); err == nil {
		return strconv.Itoa(n)
	}
	return s
}

// AnswerShares returns, for every group of level, the percentage of rows giving
// each answer to question. Missing answers count as answer "0".
func AnswerShares(t *tabular.Table, question string, level dataset.Level) ([]Share, error) {
	need := []string{ColYear, question}
	switch level {
	case dataset.LevelState:
		need = append(need, ColEnt)
	case dataset.LevelMunicipal:
		need = append(need, ColEnt, ColMpio)
	}
	if missing := t.Missing(need...); len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	totals := make(map[shareGroup]int)
	counts := make(map[shareGroup]map[string]int)
	for i := 0; i < t.Len(); i++ {
		g := groupOf(t, i, level)
		answer := normalizeCode(t.Value(i, question))
		totals[g]++
		if counts[g] == nil {
			counts[g] = make(map[string]int)
		}
		counts[g][answer]++
	}

	out := make([]Share, 0, len(counts))
	for g, answers := range counts {
		for answer, n := range answers {
			out = append(out, Share{
				Question:     question,
				Year:         g.year,
				State:        g.state,
				Municipality: g.mpio,
				Answer:       answer,
				Percent:      float64(n) / float64(totals[g]) * 100,
			})
		}
	}
	SortShares(out)
	return out, nil
}

// AllShares computes AnswerShares for every question in Questions.
func AllShares(t *tabular.Table, level dataset.Level) ([]Share, error) {
	var out []Share
	for _, q := range Questions {
		s, err := AnswerShares(t, q, level)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	SortShares(out)
	return out, nil
}

// SortShares orders shares by question number, year, state, municipality and answer.
func SortShares(s []Share) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Question != b.Question {
			return questionNumber(a.Question) < questionNumber(b.Question)
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.State != b.State {
			return a.State < b.State
		}
		if a.Municipality != b.Municipality {
			return numericLess(a.Municipality, b.Municipality)
		}
		return numericLess(a.Answer, b.Answer)
	})
}

func questionNumber(q string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(q, "p"))
	if err != nil {
		return 1 << 30
	}
	return n
}

func numericLess(a, b string) bool {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return x < y
	}
	return a < b
}

// SharesTable lays shares out as the published result files: Pregunta, Año,
// [Estado], Respuesta, Porcentaje; municipal tables start with Año and carry
// Municipio after Estado.
func SharesTable(shares []Share, level dataset.Level, format func(float64) string) *tabular.Table {
	if format == nil {
		format = func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	}
	var header []string
	switch level {
	case dataset.LevelState:
		header = []string{"Pregunta", "Año", "Estado", "Respuesta", "Porcentaje"}
	case dataset.LevelMunicipal:
		header = []string{"Año", "Pregunta", "Estado", "Municipio", "Respuesta", "Porcentaje"}
	default:
		header = []string{"Pregunta", "Año", "Respuesta", "Porcentaje"}
	}
	rows := make([][]string, 0, len(shares))
	for _, s := range shares {
		var row []string
		switch level {
		case dataset.LevelState:
			row = []string{s.Question, s.Year, s.State, s.Answer, format(s.Percent)}
		case dataset.LevelMunicipal:
			row = []string{s.Year, s.Question, s.State, s.Municipality, s.Answer, format(s.Percent)}
		default:
			row = []string{s.Question, s.Year, s.Answer, format(s.Percent)}
		}
		rows = append(rows, row)
	}
	return tabular.New(header, rows)
}
