package inequality

import "strings"

// DecileCount is the number of bins produced by Deciles.
const DecileCount = 10

// Observation is one household record: its income, its survey expansion factor and
// the keys used to group it.
type Observation struct {
	Income    float64 `json:"income"`
	Weight    float64 `json:"weight"`
	Region    string  `json:"region,omitempty"`
	Subregion string  `json:"subregion,omitempty"`
	Period    string  `json:"period,omitempty"`
}

// DecileBin is one of the ten weighted income partitions.
type DecileBin struct {
	Decile        int     `json:"decile"`
	WeightedCount float64 `json:"weighted_count"`
	AverageIncome float64 `json:"average_income"`
}

// GroupKey identifies the partition a Result was computed for. Unused parts are empty.
type GroupKey struct {
	Period    string `json:"period,omitempty"`
	Region    string `json:"region,omitempty"`
	Subregion string `json:"subregion,omitempty"`
}

// String renders the non-empty parts of the key joined by "/".
func (k GroupKey) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{k.Period, k.Region, k.Subregion} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, "/")
}

// Less orders keys by period, then region, then subregion.
func (k GroupKey) Less(other GroupKey) bool {
	if k.Period != other.Period {
		return k.Period < other.Period
	}
	if k.Region != other.Region {
		return lessNumeric(k.Region, other.Region)
	}
	return lessNumeric(k.Subregion, other.Subregion)
}

// Result holds the inequality measures of one group.
type Result struct {
	Key          GroupKey               `json:"key"`
	Gini         float64                `json:"gini"`
	Deciles      [DecileCount]DecileBin `json:"deciles"`
	TotalWeight  float64                `json:"total_weight"`
	Observations int                    `json:"observations"`
}

// MeanDecileIncome is the unweighted mean of the ten decile averages, reported as
// ingreso_promedio_total in exported tables.
func (r Result) MeanDecileIncome() float64 {
	var sum float64
	for _, b := range r.Deciles {
		sum += b.AverageIncome
	}
	return sum / DecileCount
}

// KeyFunc maps an observation to the group it belongs to.
type KeyFunc func(Observation) GroupKey

// National puts all observations, across periods, into one group. Use ByPeriod
// for one national figure per survey year.
func National(o Observation) GroupKey {
	return GroupKey{}
}

// ByPeriod groups observations by period only.
func ByPeriod(o Observation) GroupKey {
	return GroupKey{Period: o.Period}
}

// ByRegion groups observations by region across all periods.
func ByRegion(o Observation) GroupKey {
	return GroupKey{Region: o.Region}
}

// ByRegionPeriod groups observations by region and period.
func ByRegionPeriod(o Observation) GroupKey {
	return GroupKey{Period: o.Period, Region: o.Region}
}

// BySubregionPeriod groups observations by region, subregion and period.
func BySubregionPeriod(o Observation) GroupKey {
	return GroupKey{Period: o.Period, Region: o.Region, Subregion: o.Subregion}
}

// lessNumeric compares codes such as "9" and "10" numerically when both are digits.
func lessNumeric(a, b string) bool {
	if isDigits(a) && isDigits(b) {
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			return len(ta) < len(tb)
		}
		return ta < tb
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
