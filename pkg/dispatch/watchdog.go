package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/pillcell/dispatcher/pkg/config"
	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// Watchdog periodically re-checks the dispatch gate so a missed readiness
// edge can never park the backlog: if a state message arrived before the
// core was wired up, or a completion race left flags stale, the next tick
// picks the queue up. It also fires one startup dispatch shortly after
// boot, once the nodes' retained state messages have had a moment to land.
type Watchdog struct {
	store      *store.Store
	readiness  *Tracker
	dispatcher *Dispatcher
	cfg        config.DispatchConfig
	logger     *slog.Logger
}

// NewWatchdog builds the watchdog.
func NewWatchdog(s *store.Store, readiness *Tracker, dispatcher *Dispatcher, cfg config.DispatchConfig, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{store: s, readiness: readiness, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	startup := time.NewTimer(w.cfg.StartupDispatchDelay)
	defer startup.Stop()
	ticker := time.NewTicker(w.cfg.WatchdogInterval)
	defer ticker.Stop()

	w.logger.Info("Watchdog started",
		"interval", w.cfg.WatchdogInterval,
		"startup_delay", w.cfg.StartupDispatchDelay)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watchdog stopped")
			return
		case <-startup.C:
			w.logger.Info("Startup dispatch")
			w.dispatcher.Dispatch(ctx)
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick pre-checks the gate with cheap reads before invoking Dispatch, so
// an idle cell does not log a dispatch attempt every interval.
func (w *Watchdog) tick(ctx context.Context) {
	pending, err := w.store.CountByStatus(ctx, models.QueuePending)
	if err != nil {
		w.logger.Error("Watchdog failed to count pending queues", "error", err)
		return
	}
	pendingQueuesGauge.Set(float64(pending))
	if pending == 0 {
		return
	}

	active, err := w.store.ListInProgress(ctx)
	if err != nil {
		w.logger.Error("Watchdog failed to list in-progress queues", "error", err)
		return
	}
	if len(active) > 0 {
		return
	}

	ready, _, err := w.readiness.BothReady(ctx)
	if err != nil {
		w.logger.Error("Watchdog failed to evaluate readiness", "error", err)
		return
	}
	if !ready {
		return
	}

	w.logger.Debug("Watchdog triggering dispatch", "pending", pending)
	w.dispatcher.Dispatch(ctx)
}
