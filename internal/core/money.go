// Package core provides amount parsing and formatting for user input.
//
// Amounts arrive as text from the command line and from spreadsheet cells.
// They are parsed through integer cents so "0.1" and "0,10" both land on the
// same float64 the engine sees.
package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidNamedAmount = errors.New("invalid name=amount pair")
)

// ParseDecimalToCents converts a decimal string to cents with half-up
// rounding on the third decimal place.
//
// Dot and comma both work as the decimal separator. A comma followed by
// exactly three digits, or mixed with a dot, separates thousands instead.
// Spaces and underscores are ignored. Negative values are rejected; zero is
// accepted.
//
// Examples:
//
//	ParseDecimalToCents("12.34")      -> 1234
//	ParseDecimalToCents("12,34")      -> 1234
//	ParseDecimalToCents("1,000,000")  -> 100000000
//	ParseDecimalToCents("1,234.565")  -> 123457
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	s = normalizeSeparators(s)

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64-1 {
		return 0, ErrInvalidAmount
	}

	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// normalizeSeparators rewrites thousands commas away and a decimal comma to
// a dot.
func normalizeSeparators(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	if strings.Contains(s, ".") {
		return strings.ReplaceAll(s, ",", "")
	}
	groups := strings.Split(s, ",")
	thousands := len(groups) > 2
	if len(groups) == 2 && len(groups[1]) == 3 {
		thousands = true
	}
	if thousands {
		return strings.Join(groups, "")
	}
	return strings.Replace(s, ",", ".", 1)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseAmount parses a non-negative amount in major units.
func ParseAmount(s string) (float64, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return float64(cents) / 100, nil
}

// ParseNamedAmounts turns ["pension=60000", "nhf=2,500"] into a map. A name
// given twice is summed.
func ParseNamedAmounts(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNamedAmount, p)
		}
		v, err := ParseAmount(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidNamedAmount, p, err)
		}
		out[name] += v
	}
	return out, nil
}

// FormatAmount renders v with two decimals and comma thousands separators.
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	neg := v < 0
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg && s != "0.00" {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatRate renders 0.075 as "7.5%".
func FormatRate(r float64) string {
	return strconv.FormatFloat(math.Round(r*1e8)/1e6, 'f', -1, 64) + "%"
}
