package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "budgetly/internal/log"
	"budgetly/internal/services"
)

// Syncer is the unit of work the worker repeats.
type Syncer interface {
	Sync(ctx context.Context) (services.SyncReport, error)
}

// RuleSyncWorker runs a rule sync at startup and then on every interval
// until stopped.
type RuleSyncWorker struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	runs    int
	last    services.SyncReport
	lastErr error
}

func NewRuleSyncWorker(syncer Syncer, interval time.Duration, logger *slog.Logger) *RuleSyncWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleSyncWorker{
		syncer:   syncer,
		interval: interval,
		logger:   logger.With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// Start begins the loop. Returns an error if already running.
func (w *RuleSyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("rule sync worker is already running")
	}
	if w.interval <= 0 {
		return fmt.Errorf("invalid sync interval %v", w.interval)
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.runLoop(ctx)

	w.logger.InfoContext(ctx, "Rule sync worker started", "interval", w.interval)
	return nil
}

// Stop signals the loop and waits for the current run to finish, or for ctx
// to expire.
func (w *RuleSyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Rule sync worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Rule sync worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *RuleSyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastRun reports how many runs completed and the outcome of the latest.
func (w *RuleSyncWorker) LastRun() (int, services.SyncReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs, w.last, w.lastErr
}

func (w *RuleSyncWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RuleSyncWorker) runOnce(ctx context.Context) {
	report, err := w.syncer.Sync(ctx)
	if err == nil {
		err = report.Err()
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Rule sync run failed", applog.FieldOperation, applog.OpSync, applog.FieldError, err)
	}

	w.mu.Lock()
	w.runs++
	w.last = report
	w.lastErr = err
	w.mu.Unlock()
}
