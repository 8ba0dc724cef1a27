package dataset

import (
	"fmt"
	"strings"
)

// Level is the geographic aggregation of a result table.
type Level string

const (
	LevelNational  Level = "national"
	LevelState     Level = "state"
	LevelMunicipal Level = "municipal"
)

// Levels lists the aggregation levels from coarsest to finest.
var Levels = []Level{LevelNational, LevelState, LevelMunicipal}

// ParseLevel accepts English names and the Spanish file suffixes.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "national", "nacional", "nacionales":
		return LevelNational, nil
	case "state", "estatal", "estatales":
		return LevelState, nil
	case "municipal", "municipales":
		return LevelMunicipal, nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// Suffix is the Spanish word used in result file names.
func (l Level) Suffix() string {
	switch l {
	case LevelState:
		return "estatales"
	case LevelMunicipal:
		return "municipales"
	default:
		return "nacionales"
	}
}

// Sheet is the workbook sheet name of the level.
func (l Level) Sheet() string {
	switch l {
	case LevelState:
		return "estatal"
	case LevelMunicipal:
		return "municipal"
	default:
		return "nacional"
	}
}

// ResultFileName is the CSV name of a result table, e.g. resultados_estatales_enigh.csv.
func ResultFileName(l Level, kind Kind) string {
	return fmt.Sprintf("resultados_%s_%s.csv", l.Suffix(), kind)
}
