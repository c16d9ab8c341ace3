package rules

import (
	"fmt"
	"math"
	"sort"

	"budgetly/internal/tax"
)

// Severity grades a lint finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one problem found in a rule table.
type Issue struct {
	Severity Severity
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Severity, i.Message)
}

// Lint reviews a rule for tables that would make Compute return plausible but
// wrong totals: gaps and overlaps between brackets, inverted bounds,
// out-of-range rates and negative allowances or caps. Compute itself accepts
// any table; Lint is for authors and importers.
func Lint(rule tax.Rule) []Issue {
	var issues []Issue
	add := func(sev Severity, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if rule.Version == "" {
		add(SeverityWarning, "rule has no version")
	}
	if len(rule.Brackets) == 0 {
		add(SeverityError, "rule has no brackets; every income would be taxed at zero")
	}

	brackets := append([]tax.Bracket(nil), rule.Brackets...)
	sort.SliceStable(brackets, func(i, j int) bool {
		return from(brackets[i]) < from(brackets[j])
	})

	unbounded := 0
	for i, b := range brackets {
		lower := from(b)
		if b.From == nil {
			add(SeverityWarning, "bracket %d has no lower bound; treated as 0", i+1)
		}
		if b.Rate < 0 || b.Rate > 1 || math.IsNaN(b.Rate) {
			add(SeverityError, "bracket %d rate %v is outside [0, 1]", i+1, b.Rate)
		}
		if b.To == nil {
			unbounded++
		} else if *b.To <= lower {
			add(SeverityError, "bracket %d upper bound %v is not above its lower bound %v", i+1, *b.To, lower)
		}
		if i == 0 && lower > 0 {
			add(SeverityWarning, "first bracket starts at %v; income below it is untaxed", lower)
		}
		if i > 0 {
			prev := brackets[i-1]
			if prev.To == nil {
				add(SeverityError, "bracket %d starts at %v after an unbounded bracket", i+1, lower)
				continue
			}
			switch {
			case lower > *prev.To:
				add(SeverityError, "gap between %v and %v is untaxed", *prev.To, lower)
			case lower < *prev.To:
				add(SeverityError, "brackets overlap between %v and %v", lower, *prev.To)
			}
		}
	}
	if len(brackets) > 0 && unbounded == 0 {
		last := brackets[len(brackets)-1]
		add(SeverityWarning, "no unbounded top bracket; income above %v is untaxed", *last.To)
	}
	if unbounded > 1 {
		add(SeverityError, "%d brackets are unbounded", unbounded)
	}

	for _, name := range sortedNames(rule.Allowances) {
		if v := rule.Allowances[name]; v < 0 {
			add(SeverityError, "allowance %q is negative (%v)", name, v)
		}
	}
	for _, name := range sortedNames(rule.Deductions) {
		if c := rule.Deductions[name].Cap; c != nil && *c < 0 {
			add(SeverityError, "deduction %q has a negative cap (%v)", name, *c)
		}
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func from(b tax.Bracket) float64 {
	if b.From == nil {
		return 0
	}
	return *b.From
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
