// Package cached puts an LRU+TTL cache in front of a rule source. Concurrent
// misses for the same country share one lookup.
package cached

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"budgetly/internal/cache"
	applog "budgetly/internal/log"
	"budgetly/internal/rules"
	"budgetly/internal/tax"
)

var _ rules.Source = (*Source)(nil)

type Source struct {
	next   rules.Source
	rules  *cache.LRUCache[tax.Rule]
	group  singleflight.Group
	logger *slog.Logger
}

// New wraps next. Only successful lookups are cached.
func New(next rules.Source, size int, ttl time.Duration, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		next:   next,
		rules:  cache.NewLRUCache[tax.Rule](size, ttl),
		logger: logger,
	}
}

// Cache exposes the underlying cache so a cache.Manager can sweep it.
func (s *Source) Cache() *cache.LRUCache[tax.Rule] { return s.rules }

func (s *Source) Rule(ctx context.Context, country string) (*tax.Rule, error) {
	code, err := rules.NormalizeCountry(country)
	if err != nil {
		return nil, err
	}
	if r, ok := s.rules.Get(code); ok {
		out := r.Clone()
		return &out, nil
	}

	// The shared lookup outlives any single caller; each caller stops
	// waiting on its own context.
	ch := s.group.DoChan(code, func() (any, error) {
		r, err := s.next.Rule(context.WithoutCancel(ctx), code)
		if err != nil {
			return nil, err
		}
		s.rules.Set(code, r.Clone())
		return r.Clone(), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.DebugContext(ctx, "Shared rule lookup",
				applog.FieldComponent, applog.ComponentCache,
				applog.FieldCountry, code)
		}
		out := res.Val.(tax.Rule).Clone()
		return &out, nil
	}
}

func (s *Source) Countries(ctx context.Context) ([]string, error) {
	return s.next.Countries(ctx)
}

// Invalidate drops cached rules, all of them when no country is given.
func (s *Source) Invalidate(countries ...string) {
	if len(countries) == 0 {
		s.rules.Clear()
		return
	}
	for _, c := range countries {
		if code, err := rules.NormalizeCountry(c); err == nil {
			s.rules.Delete(code)
		}
	}
}

// Preload warms the cache for every country the source knows, a few at a
// time. The first failure cancels the rest.
func (s *Source) Preload(ctx context.Context, parallel int) (int, error) {
	codes, err := s.next.Countries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list countries: %w", err)
	}
	if parallel < 1 {
		parallel = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, code := range codes {
		g.Go(func() error {
			if _, err := s.Rule(gctx, code); err != nil {
				return fmt.Errorf("preload %s: %w", code, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "Rule cache warmed",
		applog.FieldComponent, applog.ComponentCache,
		applog.FieldOperation, applog.OpLookup,
		applog.FieldCount, len(codes))
	return len(codes), nil
}
