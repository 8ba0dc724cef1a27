package enco

import (
	"fmt"
	"sort"
	"strconv"

	"ineqmx/internal/dataset"
	"ineqmx/internal/tabular"
)

// Category groups answers that express the same perception.
type Category struct {
	Name    string
	Answers []string
}

// Categories maps answers, written as "pN_Respuesta_M", to perception categories.
var Categories = []Category{
	{Name: "Percepcion_Economica_Personal_Positiva", Answers: answers(map[int][]int{1: {1, 2, 3}, 2: {1, 2, 3}, 3: {1, 2, 3}, 4: {1, 2, 3}})},
	{Name: "Percepcion_Economica_Personal_Negativa", Answers: answers(map[int][]int{1: {4, 5}, 2: {4, 5}, 3: {4, 5}, 4: {4, 5}})},
	{Name: "Percepcion_Nacional_Positiva", Answers: answers(map[int][]int{5: {1, 2, 3}, 6: {1, 2, 3}, 12: {1, 2, 3}, 13: {1, 2, 3}})},
	{Name: "Percepcion_Nacional_Negativa", Answers: answers(map[int][]int{5: {4, 5}, 6: {4, 5}, 12: {4, 5}, 13: {4, 5}})},
	{Name: "Consumo_Ahorro_Positivo", Answers: answers(map[int][]int{7: {1, 2}, 8: {1, 2}, 9: {1}, 10: {1}, 11: {1, 2, 3}, 14: {1, 2}, 15: {1, 2}})},
	{Name: "Consumo_Ahorro_Negativo", Answers: answers(map[int][]int{7: {3}, 8: {3}, 9: {2}, 10: {2, 4}, 11: {4, 5}, 14: {3}, 15: {4}})},
	{Name: "Incertidumbre_Economica_Personal", Answers: answers(map[int][]int{1: {6}, 2: {6}, 3: {6}, 4: {6}, 7: {4}, 8: {4}, 9: {3}, 10: {3}, 11: {6}, 14: {4}, 15: {4}})},
	{Name: "Incertidumbre_Economica_Nacional", Answers: answers(map[int][]int{5: {6}, 6: {6}, 12: {7}, 13: {6}})},
}

func answers(m map[int][]int) []string {
	qs := make([]int, 0, len(m))
	for q := range m {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	var out []string
	for _, q := range qs {
		for _, a := range m[q] {
			out = append(out, AnswerKey(fmt.Sprintf("p%d", q), fmt.Sprint(a)))
		}
	}
	return out
}

// AnswerKey is the pivoted column name of an answer.
func AnswerKey(question, answer string) string {
	return question + "_Respuesta_" + answer
}

// PerceptionScore is the mean share of a category's answers within a group.
type PerceptionScore struct {
	Year         string  `json:"year"`
	State        string  `json:"state,omitempty"`
	Municipality string  `json:"municipality,omitempty"`
	Category     string  `json:"category"`
	Score        float64 `json:"score"`
	Answers      int     `json:"answers"`
}

// Perception averages, per group and category, the percentages of the
// category's answers that were observed in the group. Answers nobody gave are
// left out of the mean; a category with no observed answer is omitted.
func Perception(shares []Share) []PerceptionScore {
	pivot := make(map[shareGroup]map[string]float64)
	var order []shareGroup
	for _, s := range shares {
		g := shareGroup{year: s.Year, state: s.State, mpio: s.Municipality}
		if pivot[g] == nil {
			pivot[g] = make(map[string]float64)
			order = append(order, g)
		}
		pivot[g][AnswerKey(s.Question, s.Answer)] = s.Percent
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.year != b.year {
			return a.year < b.year
		}
		if a.state != b.state {
			return a.state < b.state
		}
		return numericLess(a.mpio, b.mpio)
	})

	var out []PerceptionScore
	for _, g := range order {
		for _, c := range Categories {
			var sum float64
			var n int
			for _, key := range c.Answers {
				if v, ok := pivot[g][key]; ok {
					sum += v
					n++
				}
			}
			if n == 0 {
				continue
			}
			out = append(out, PerceptionScore{
				Year:         g.year,
				State:        g.state,
				Municipality: g.mpio,
				Category:     c.Name,
				Score:        sum / float64(n),
				Answers:      n,
			})
		}
	}
	return out
}

// PerceptionTable lays scores out with one row per group and category.
func PerceptionTable(scores []PerceptionScore, level dataset.Level, format func(float64) string) *tabular.Table {
	if format == nil {
		format = func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	}
	header := []string{"Año"}
	switch level {
	case dataset.LevelState:
		header = append(header, "Estado")
	case dataset.LevelMunicipal:
		header = append(header, "Estado", "Municipio")
	}
	header = append(header, "Categoria", "Puntaje", "Respuestas")

	rows := make([][]string, 0, len(scores))
	for _, s := range scores {
		row := []string{s.Year}
		switch level {
		case dataset.LevelState:
			row = append(row, s.State)
		case dataset.LevelMunicipal:
			row = append(row, s.State, s.Municipality)
		}
		row = append(row, s.Category, format(s.Score), strconv.Itoa(s.Answers))
		rows = append(rows, row)
	}
	return tabular.New(header, rows)
}
