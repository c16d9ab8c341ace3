package google

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"budgetly/internal/core"
	"budgetly/internal/rules"
	"budgetly/internal/tax"
)

// Column headers of a rule tab. Matching is case-insensitive and column
// order is free.
const (
	colKind  = "kind"
	colName  = "name"
	colValue = "value"
	colFrom  = "from"
	colTo    = "to"
	colRate  = "rate"
	colCap   = "cap"
)

// parseRuleSheet converts a rule tab (as returned by the Sheets API) into a
// rule. Each row has a Kind:
//
//	meta       Name is version, effective_date, currency or notes; Value holds it
//	bracket    From, To (blank = unbounded) and Rate ("7%" or 0.07)
//	allowance  Name and Value
//	deduction  Name and optional Cap
//
// Blank rows and rows whose Kind starts with "#" are skipped.
func parseRuleSheet(country string, values [][]interface{}) (tax.Rule, error) {
	rule := tax.Rule{Country: country}
	if len(values) == 0 {
		return rule, fmt.Errorf("%w: sheet %s is empty", rules.ErrMalformedRule, country)
	}

	headers := toStrings(values[0])
	idx := map[string]int{}
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx[colKind]; !ok {
		return rule, fmt.Errorf("%w: sheet %s has no %q column; got headers=%v", rules.ErrMalformedRule, country, "Kind", headers)
	}
	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok {
			return ""
		}
		return safeGet(row, i)
	}

	for n := 1; n < len(values); n++ {
		row := toStrings(values[n])
		kind := strings.ToLower(cell(row, colKind))
		if kind == "" || strings.HasPrefix(kind, "#") {
			continue
		}
		fail := func(format string, args ...any) error {
			return fmt.Errorf("%w: sheet %s row %d: %s", rules.ErrMalformedRule, country, n+1, fmt.Sprintf(format, args...))
		}
		name := cell(row, colName)

		switch kind {
		case "meta":
			value := cell(row, colValue)
			switch strings.ToLower(strings.ReplaceAll(name, " ", "_")) {
			case "version":
				rule.Version = value
			case "effective_date", "effectivedate":
				rule.EffectiveDate = value
			case "currency":
				rule.Currency = value
			case "notes":
				rule.Notes = value
			default:
				return rule, fail("unknown meta field %q", name)
			}

		case "bracket":
			from, err := optionalAmount(cell(row, colFrom))
			if err != nil {
				return rule, fail("from: %v", err)
			}
			to, err := optionalAmount(cell(row, colTo))
			if err != nil {
				return rule, fail("to: %v", err)
			}
			rate, err := parseRate(cell(row, colRate))
			if err != nil {
				return rule, fail("rate: %v", err)
			}
			rule.Brackets = append(rule.Brackets, tax.Bracket{From: from, To: to, Rate: rate})

		case "allowance":
			if name == "" {
				return rule, fail("allowance without a name")
			}
			v, err := core.ParseAmount(cell(row, colValue))
			if err != nil {
				return rule, fail("allowance %s: %v", name, err)
			}
			if rule.Allowances == nil {
				rule.Allowances = map[string]float64{}
			}
			rule.Allowances[name] += v

		case "deduction":
			if name == "" {
				return rule, fail("deduction without a name")
			}
			c, err := optionalAmount(cell(row, colCap))
			if err != nil {
				return rule, fail("deduction %s cap: %v", name, err)
			}
			if rule.Deductions == nil {
				rule.Deductions = map[string]tax.DeductionRule{}
			}
			rule.Deductions[name] = tax.DeductionRule{Cap: c}

		default:
			return rule, fail("unknown kind %q", kind)
		}
	}
	return rule, nil
}

func optionalAmount(s string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := core.ParseAmount(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseRate accepts "7%", "7.5 %" or a plain fraction such as 0.07. Rates
// keep full precision, unlike amounts.
func parseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing rate")
	}
	pct, isPct := strings.CutSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(pct), ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	if isPct {
		v /= 100
	}
	return v, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}
