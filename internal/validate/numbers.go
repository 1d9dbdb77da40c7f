package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

var (
	plainNumber  = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	groupedDot   = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
	groupedComma = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
	yearPattern  = regexp.MustCompile(`^\d{4}$`)
	monthPeriod  = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
)

// ParseDecimal parses a number written with either "." or "," as decimal
// separator. When both appear, the last one is the decimal separator and the
// other groups thousands; a separator repeated more than once groups thousands.
// Grouped digits must come in threes ("1.234.567", not "12.5.2024").
// Spaces (including non-breaking) are ignored.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\u202f' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, eris.New("empty number")
	}

	raw := s
	sign := ""
	if s[0] == '+' || s[0] == '-' {
		sign, s = s[:1], s[1:]
	}

	intPart, frac := s, ""
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		dec, grouped := ",", groupedDot
		if dot > comma {
			dec, grouped = ".", groupedComma
		}
		i := strings.LastIndex(s, dec)
		intPart, frac = s[:i], s[i+1:]
		if strings.Contains(intPart, dec) || !grouped.MatchString(intPart) {
			return decimal.Zero, eris.Errorf("not a number: %q", raw)
		}
	case strings.Count(s, ",") > 1:
		if !groupedComma.MatchString(s) {
			return decimal.Zero, eris.Errorf("not a number: %q", raw)
		}
	case strings.Count(s, ".") > 1:
		if !groupedDot.MatchString(s) {
			return decimal.Zero, eris.Errorf("not a number: %q", raw)
		}
	case comma >= 0:
		intPart, frac = s[:comma], s[comma+1:]
	case dot >= 0:
		intPart, frac = s[:dot], s[dot+1:]
	}

	num := sign + strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if frac != "" || intPart != s {
		num += "." + frac
	}
	if !plainNumber.MatchString(num) {
		return decimal.Zero, eris.Errorf("not a number: %q", raw)
	}
	return decimal.NewFromString(num)
}

// ParseInt parses a whole number using ParseDecimal's separator rules.
func ParseInt(s string) (int, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, eris.Errorf("not a whole number: %s", d)
	}
	if !decimal.NewFromInt(d.IntPart()).Equal(d) {
		return 0, eris.Errorf("number out of range: %s", d)
	}
	return int(d.IntPart()), nil
}

// IsYear reports whether s is a bare four-digit year.
func IsYear(s string) bool {
	return yearPattern.MatchString(s)
}

// IsPeriod reports whether s is a bare year or a year-month ("2024", "2024-03").
func IsPeriod(s string) bool {
	return yearPattern.MatchString(s) || monthPeriod.MatchString(s)
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006"}

// ParseDate accepts ISO dates and day-first slash dates.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("not a date: %q", s)
}
