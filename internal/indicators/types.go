package indicators

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Value is an observation value. The API sends numbers as strings and uses
// null for missing observations.
type Value string

// UnmarshalJSON accepts strings, numbers and null.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = Value(n.String())
	return nil
}

// Float parses the value.
func (v Value) Float() (float64, bool) {
	f, err := strconv.ParseFloat(string(v), 64)
	return f, err == nil
}

// Observation is one data point of a series.
type Observation struct {
	TimePeriod string `json:"TIME_PERIOD"`
	Value      Value  `json:"OBS_VALUE"`
	Exception  string `json:"OBS_EXCEPTION"`
	Status     string `json:"OBS_STATUS"`
	Source     string `json:"OBS_SOURCE"`
	Note       string `json:"OBS_NOTE"`
	CoverGeo   string `json:"COBER_GEO"`
}

// Series is one indicator for one geographic area.
type Series struct {
	Indicator    string        `json:"INDICADOR"`
	Frequency    string        `json:"FREQ"`
	Topic        string        `json:"TOPIC"`
	Unit         string        `json:"UNIT"`
	UnitMult     string        `json:"UNIT_MULT"`
	LastUpdate   string        `json:"LASTUPDATE"`
	Status       string        `json:"STATUS"`
	Source       string        `json:"SOURCE"`
	Note         string        `json:"NOTE"`
	Observations []Observation `json:"OBSERVATIONS"`
}

// Response is the JSON document returned by the API.
type Response struct {
	Header struct {
		Name  string `json:"NAME"`
		Email string `json:"EMAIL"`
	} `json:"Header"`
	Series []Series `json:"Series"`
}

// Row is one flattened observation.
type Row struct {
	Estado          string `json:"estado"`
	Indicador       string `json:"indicador"`
	Periodo         string `json:"periodo"`
	Valor           string `json:"valor"`
	Unidad          string `json:"unidad"`
	ClaveGeografica string `json:"clave_geografica"`
}

// Columns is the header of the indicators CSV.
var Columns = []string{"ESTADO", "INDICADOR", "PERIODO", "VALOR", "UNIDAD", "CLAVE_GEOGRAFICA"}

func (r Row) record() []string {
	return []string{r.Estado, r.Indicador, r.Periodo, r.Valor, r.Unidad, r.ClaveGeografica}
}
