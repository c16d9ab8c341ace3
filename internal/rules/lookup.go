package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	applog "budgetly/internal/log"
	"budgetly/internal/tax"
)

// NormalizeCountry trims and upper-cases a country code. Codes are two or
// three ASCII letters; anything else is rejected so a code can be used safely
// as a file name or sheet title.
func NormalizeCountry(country string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(country))
	if len(c) < 2 || len(c) > 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCountry, country)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCountry, country)
		}
	}
	return c, nil
}

// LoadRuleForCountry resolves the rule for country and returns nil on any
// failure: unknown or invalid code, malformed data, or an unavailable source.
// The cause is logged; callers only need to check for nil and report the
// country as unsupported.
func LoadRuleForCountry(ctx context.Context, src Source, country string) *tax.Rule {
	if src == nil {
		slog.WarnContext(ctx, "No rule source configured",
			applog.FieldComponent, applog.ComponentRules,
			applog.FieldOperation, applog.OpLookup,
			applog.FieldCountry, country)
		return nil
	}
	rule, err := src.Rule(ctx, country)
	if err != nil {
		slog.WarnContext(ctx, "Tax rule lookup failed",
			applog.FieldComponent, applog.ComponentRules,
			applog.FieldOperation, applog.OpLookup,
			applog.FieldCountry, country,
			applog.FieldError, err)
		return nil
	}
	return rule
}
