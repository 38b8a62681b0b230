package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/1broseidon/wmcore/internal/engine"
	"github.com/1broseidon/wmcore/internal/wm"
)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically closes toplevels the engine still considers
// live but whose client the driver no longer knows about. That happens
// when a destroy notification is lost, e.g. across an X server grab.
type Reconciler struct {
	interval time.Duration
	sink     Sink
	driver   Driver
	logger   *slog.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, sink Sink, driver Driver) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval: interval,
		sink:     sink,
		driver:   driver,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("reconciler stopped")
			return
		case <-ticker.C:
			if err := r.ReconcileNow(); err != nil {
				r.logger.Warn("reconciler pass failed", "error", err)
			}
		}
	}
}

// ReconcileNow performs a single pass on the loop and waits for it.
func (r *Reconciler) ReconcileNow() error {
	return r.sink.Do(func(e *engine.Engine) error {
		r.reconcile(e)
		return nil
	})
}

func (r *Reconciler) reconcile(e *engine.Engine) {
	actual := make(map[wm.ToplevelID]bool)
	for _, id := range r.driver.Toplevels() {
		actual[id] = true
	}

	for _, id := range e.LiveToplevels() {
		if actual[id] {
			continue
		}
		r.logger.Info("reconciler: closing orphaned toplevel", "toplevel", id)
		if err := e.ToplevelClosed(id); err != nil {
			r.logger.Warn("reconciler: failed to close toplevel", "toplevel", id, "error", err)
		}
	}
}
