package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"budgetly/internal/rules"
	"budgetly/internal/tax"
)

var _ rules.Store = (*Store)(nil)

// Store keeps one rule per country in memory. Rules are copied on the way in
// and out so callers cannot mutate shared state.
type Store struct {
	mu    sync.RWMutex
	items map[string]tax.Rule
}

// New seeds a store. Seeds with an invalid country are skipped; a later seed
// for the same country replaces an earlier one.
func New(seed ...tax.Rule) *Store {
	s := &Store{items: make(map[string]tax.Rule, len(seed))}
	for _, r := range seed {
		code, err := rules.NormalizeCountry(r.Country)
		if err != nil {
			continue
		}
		r = r.Clone()
		r.Country = code
		s.items[code] = r
	}
	return s
}

func (s *Store) Rule(_ context.Context, country string) (*tax.Rule, error) {
	code, err := rules.NormalizeCountry(country)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rules.ErrRuleNotFound, code)
	}
	out := r.Clone()
	return &out, nil
}

func (s *Store) Countries(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for code := range s.items {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

// SaveRule replaces the country's rule. Saving an identical rule is a no-op.
func (s *Store) SaveRule(_ context.Context, rule tax.Rule) (bool, error) {
	code, err := rules.NormalizeCountry(rule.Country)
	if err != nil {
		return false, err
	}
	rule = rule.Clone()
	rule.Country = code

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.items[code]; ok && reflect.DeepEqual(cur, rule) {
		return false, nil
	}
	s.items[code] = rule
	return true, nil
}
