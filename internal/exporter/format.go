package exporter

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of decimals written for income and Gini values.
const DefaultPrecision int32 = 6

// Formatter renders floats with a fixed number of decimals.
type Formatter struct {
	Precision int32
}

// Float formats f rounded half away from zero. NaN and infinities are empty.
func (f Formatter) Float(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(f.Precision)
}

// Percent formats a share that is already expressed in percent.
func (f Formatter) Percent(v float64) string {
	return f.Float(v)
}

func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}
