package cached

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"budgetly/internal/rules"
	"budgetly/internal/rules/memory"
	"budgetly/internal/tax"
)

type countingSource struct {
	rules.Source
	calls   atomic.Int32
	release chan struct{}
}

func (c *countingSource) Rule(ctx context.Context, country string) (*tax.Rule, error) {
	c.calls.Add(1)
	if c.release != nil {
		<-c.release
	}
	return c.Source.Rule(ctx, country)
}

func newCounting() *countingSource {
	return &countingSource{Source: memory.New(
		tax.Rule{Country: "NG", Version: "1", Brackets: []tax.Bracket{{From: tax.Amount(0), Rate: 0.1}}},
		tax.Rule{Country: "GB", Version: "1"},
	)}
}

func TestCachedServesRepeatLookupsFromCache(t *testing.T) {
	next := newCounting()
	src := New(next, 8, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if r, err := src.Rule(ctx, "ng"); err != nil || r.Version != "1" {
			t.Fatalf("lookup %d: %+v %v", i, r, err)
		}
	}
	if n := next.calls.Load(); n != 1 {
		t.Fatalf("backing source called %d times, want 1", n)
	}

	src.Invalidate("NG")
	src.Rule(ctx, "NG")
	if n := next.calls.Load(); n != 2 {
		t.Fatalf("expected a fresh lookup after invalidation, calls=%d", n)
	}
	src.Invalidate()
	if src.Cache().Size() != 0 {
		t.Fatalf("expected empty cache")
	}
}

func TestCachedReturnsCopies(t *testing.T) {
	src := New(newCounting(), 8, time.Hour, nil)
	ctx := context.Background()

	r, _ := src.Rule(ctx, "NG")
	r.Brackets[0].Rate = 0.9
	again, _ := src.Rule(ctx, "NG")
	if again.Brackets[0].Rate != 0.1 {
		t.Fatalf("cached rule was mutated through a returned copy")
	}
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	next := newCounting()
	src := New(next, 8, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := src.Rule(ctx, "FR"); !errors.Is(err, rules.ErrRuleNotFound) {
			t.Fatalf("expected ErrRuleNotFound, got %v", err)
		}
	}
	if n := next.calls.Load(); n != 2 {
		t.Fatalf("misses should not be cached, calls=%d", n)
	}
	if _, err := src.Rule(ctx, "!!"); !errors.Is(err, rules.ErrInvalidCountry) {
		t.Fatalf("expected ErrInvalidCountry, got %v", err)
	}
}

func TestCachedCoalescesConcurrentMisses(t *testing.T) {
	next := newCounting()
	next.release = make(chan struct{})
	src := New(next, 8, time.Hour, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := src.Rule(ctx, "NG"); err != nil {
				t.Errorf("lookup: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()

	if n := next.calls.Load(); n < 1 || n > 8 {
		t.Fatalf("unexpected call count %d", n)
	}
	if src.Cache().Size() != 1 {
		t.Fatalf("expected one cached entry")
	}
}

func TestPreload(t *testing.T) {
	next := newCounting()
	src := New(next, 8, time.Hour, nil)
	n, err := src.Preload(context.Background(), 2)
	if err != nil || n != 2 {
		t.Fatalf("preload: n=%d err=%v", n, err)
	}
	if src.Cache().Size() != 2 {
		t.Fatalf("expected both countries cached, size=%d", src.Cache().Size())
	}
	codes, _ := src.Countries(context.Background())
	if len(codes) != 2 {
		t.Fatalf("unexpected countries %v", codes)
	}
}

func TestCachedCancelledCallerDoesNotFailOthers(t *testing.T) {
	next := newCounting()
	next.release = make(chan struct{})
	src := New(next, 8, time.Hour, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := src.Rule(first, "NG")
		firstErr <- err
	}()
	for next.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	secondErr := make(chan error, 1)
	go func() {
		r, err := src.Rule(context.Background(), "NG")
		if err == nil && r.Country != "NG" {
			err = errors.New("wrong rule " + r.Country)
		}
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v, want context.Canceled", err)
	}
	close(next.release)
	if err := <-secondErr; err != nil {
		t.Fatalf("live caller err = %v", err)
	}
	if src.Cache().Size() != 1 {
		t.Fatalf("shared lookup should still fill the cache")
	}
}
