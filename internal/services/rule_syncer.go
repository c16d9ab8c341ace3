package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	applog "budgetly/internal/log"
	"budgetly/internal/rules"
	"budgetly/internal/tax"
)

// SyncReport summarises one sync run.
type SyncReport struct {
	Countries int
	Saved     []string
	Unchanged []string
	Skipped   []string
	Failed    map[string]error
	Duration  time.Duration
}

// Err joins the per-country failures, nil when everything succeeded.
func (r SyncReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, code := range sortedCodes(r.Failed) {
		errs = append(errs, fmt.Errorf("%s: %w", code, r.Failed[code]))
	}
	return errors.Join(errs...)
}

// RuleSyncer copies every country's rule from one source into a writer.
// Rules with lint errors are skipped rather than published.
type RuleSyncer struct {
	from     rules.Source
	to       rules.Writer
	parallel int
	logger   *applog.Logger

	// Serialises runs started by the worker and by hand.
	mu sync.Mutex
}

func NewRuleSyncer(from rules.Source, to rules.Writer, parallel int, logger *applog.Logger) *RuleSyncer {
	if parallel < 1 {
		parallel = 1
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &RuleSyncer{
		from:     from,
		to:       to,
		parallel: parallel,
		logger:   logger.WithComponent(applog.ComponentSync),
	}
}

// Sync fetches rules concurrently and saves them one at a time. A failure for
// one country does not stop the others; only failing to list countries or a
// cancelled context aborts the run.
func (s *RuleSyncer) Sync(ctx context.Context) (SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	report := SyncReport{Failed: map[string]error{}}

	codes, err := s.from.Countries(ctx)
	if err != nil {
		return report, fmt.Errorf("list source countries: %w", err)
	}
	report.Countries = len(codes)

	fetched := make([]*tax.Rule, len(codes))
	fetchErr := make([]error, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, code := range codes {
		g.Go(func() error {
			fetched[i], fetchErr[i] = s.from.Rule(gctx, code)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, err
	}

	for i, code := range codes {
		if fetchErr[i] != nil {
			report.Failed[code] = fetchErr[i]
			s.logger.WarnContext(ctx, "Rule fetch failed", applog.FieldCountry, code, applog.FieldError, fetchErr[i])
			continue
		}
		rule := fetched[i]
		if issues := rules.Lint(*rule); rules.HasErrors(issues) {
			report.Skipped = append(report.Skipped, code)
			s.logger.WarnContext(ctx, "Rule has lint errors, not saved",
				applog.FieldCountry, code,
				applog.FieldRuleVersion, rule.Version,
				"issues", fmt.Sprint(issues))
			continue
		}
		changed, err := s.to.SaveRule(ctx, *rule)
		switch {
		case err != nil:
			report.Failed[code] = err
			s.logger.ErrorContext(ctx, "Rule save failed", applog.FieldCountry, code, applog.FieldError, err)
		case changed:
			report.Saved = append(report.Saved, code)
		default:
			report.Unchanged = append(report.Unchanged, code)
		}
	}

	report.Duration = time.Since(start)
	s.logger.InfoContext(ctx, "Rule sync finished",
		applog.FieldOperation, applog.OpSync,
		applog.FieldCount, report.Countries,
		"saved", len(report.Saved),
		"unchanged", len(report.Unchanged),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		applog.FieldDuration, report.Duration.Milliseconds())
	return report, nil
}

func sortedCodes(m map[string]error) []string {
	return slices.Sorted(maps.Keys(m))
}
