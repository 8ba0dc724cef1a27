package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// UnspecifiedState is the INEGI code for records without a state.
const UnspecifiedState = 33

var estados = map[int]string{
	1:  "AGUASCALIENTES",
	2:  "BAJA CALIFORNIA",
	3:  "BAJA CALIFORNIA SUR",
	4:  "CAMPECHE",
	5:  "COAHUILA DE ZARAGOZA",
	6:  "COLIMA",
	7:  "CHIAPAS",
	8:  "CHIHUAHUA",
	9:  "DISTRITO FEDERAL",
	10: "DURANGO",
	11: "GUANAJUATO",
	12: "GUERRERO",
	13: "HIDALGO",
	14: "JALISCO",
	15: "MEXICO",
	16: "MICHOACAN DE OCAMPO",
	17: "MORELOS",
	18: "NAYARIT",
	19: "NUEVO LEON",
	20: "OAXACA",
	21: "PUEBLA",
	22: "QUERETARO DE ARTEAGA",
	23: "QUINTANA ROO",
	24: "SAN LUIS POTOSI",
	25: "SINALOA",
	26: "SONORA",
	27: "TABASCO",
	28: "TAMAULIPAS",
	29: "TLAXCALA",
	30: "VERACRUZ DE IGNACIO DE LA LLAVE",
	31: "YUCATAN",
	32: "ZACATECAS",
	33: "ENTIDAD FEDERATIVA NO ESPECIFICADA",
}

// StateName returns the official name of a state code.
func StateName(code int) (string, bool) {
	name, ok := estados[code]
	return name, ok
}

// StateNameOf accepts codes as they appear in the tables ("9", "09") and
// falls back to the code itself when it is unknown.
func StateNameOf(code string) string {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	if name, ok := estados[n]; ok {
		return name
	}
	return code
}

// StateCode formats a state code as the two-digit CVE_ENT.
func StateCode(code int) string {
	return fmt.Sprintf("%02d", code)
}
