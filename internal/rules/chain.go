package rules

import (
	"context"
	"errors"
	"sort"

	"budgetly/internal/tax"
)

// Chain consults sources in order; the first one that knows a country wins.
// ErrRuleNotFound from one source falls through to the next, any other error
// is returned immediately.
type Chain []Source

func (c Chain) Rule(ctx context.Context, country string) (*tax.Rule, error) {
	if _, err := NormalizeCountry(country); err != nil {
		return nil, err
	}
	for _, src := range c {
		if src == nil {
			continue
		}
		rule, err := src.Rule(ctx, country)
		if errors.Is(err, ErrRuleNotFound) {
			continue
		}
		return rule, err
	}
	return nil, ErrRuleNotFound
}

// Countries is the sorted union of all sources' countries.
func (c Chain) Countries(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, src := range c {
		if src == nil {
			continue
		}
		codes, err := src.Countries(ctx)
		if err != nil {
			return nil, err
		}
		for _, code := range codes {
			seen[code] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}
