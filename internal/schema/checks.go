package schema

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"ineqmx/internal/tabular"
)

// Check is a named predicate over a non-empty cell.
type Check struct {
	Name  string
	Level Level
	Fn    func(string) error
}

func (c Check) level() Level {
	if c.Level == "" {
		return LevelError
	}
	return c.Level
}

// AsWarning returns a copy of c reported at warning level.
func (c Check) AsWarning() Check {
	c.Level = LevelWarning
	return c
}

// IntRange requires an integer in [min, max].
func IntRange(min, max int) Check {
	return Check{
		Name: fmt.Sprintf("int_range[%d,%d]", min, max),
		Fn: func(s string) error {
			n, err := tabular.ParseInt(s)
			if err != nil {
				return fmt.Errorf("not an integer")
			}
			if n < min || n > max {
				return fmt.Errorf("%d outside [%d, %d]", n, min, max)
			}
			return nil
		},
	}
}

// Float requires a parseable number.
func Float() Check {
	return Check{
		Name: "float",
		Fn: func(s string) error {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				return fmt.Errorf("not a number")
			}
			return nil
		},
	}
}

// FloatMin requires a number >= min, or > min when exclusive.
func FloatMin(min float64, exclusive bool) Check {
	op := ">="
	if exclusive {
		op = ">"
	}
	return Check{
		Name: fmt.Sprintf("min%s%g", op, min),
		Fn: func(s string) error {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("not a number")
			}
			if f < min || (exclusive && f == min) {
				return fmt.Errorf("%g is not %s %g", f, op, min)
			}
			return nil
		},
	}
}

// FloatMax flags numbers above max. It is a warning: large values are
// suspicious, not invalid.
func FloatMax(max float64) Check {
	return Check{
		Name:  fmt.Sprintf("max<=%g", max),
		Level: LevelWarning,
		Fn: func(s string) error {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("not a number")
			}
			if f > max {
				return fmt.Errorf("%g above %g", f, max)
			}
			return nil
		},
	}
}

// Digits requires exactly n ASCII digits.
func Digits(n int) Check {
	return Check{
		Name: fmt.Sprintf("digits[%d]", n),
		Fn: func(s string) error {
			if len(s) != n {
				return fmt.Errorf("expected %d digits, got %d characters", n, len(s))
			}
			for _, r := range s {
				if r < '0' || r > '9' {
					return fmt.Errorf("non-digit %q", r)
				}
			}
			return nil
		},
	}
}

// MaxLen requires at most n characters.
func MaxLen(n int) Check {
	return Check{
		Name: fmt.Sprintf("max_len[%d]", n),
		Fn: func(s string) error {
			if l := len([]rune(s)); l > n {
				return fmt.Errorf("%d characters exceeds %d", l, n)
			}
			return nil
		},
	}
}

// Alphanumeric requires letters and digits only.
func Alphanumeric() Check {
	return Check{
		Name: "alphanumeric",
		Fn: func(s string) error {
			for _, r := range s {
				if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					return fmt.Errorf("unexpected character %q", r)
				}
			}
			return nil
		},
	}
}

// OneOf requires one of the listed values.
func OneOf(values ...string) Check {
	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[v] = true
	}
	return Check{
		Name: "one_of[" + strings.Join(values, ",") + "]",
		Fn: func(s string) error {
			if !allowed[s] {
				return fmt.Errorf("%q not allowed", s)
			}
			return nil
		},
	}
}

var tagValidator = validator.New()

// Tag applies a go-playground/validator tag to the cell, e.g. "datetime=2006-01-02".
func Tag(tag string) Check {
	return Check{
		Name: tag,
		Fn: func(s string) error {
			if err := tagValidator.Var(s, tag); err != nil {
				return fmt.Errorf("failed %s", tag)
			}
			return nil
		},
	}
}
