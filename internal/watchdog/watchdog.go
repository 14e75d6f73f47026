package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ktrade/sentinel/internal/alert"
	"github.com/ktrade/sentinel/internal/heartbeat"
	"github.com/ktrade/sentinel/internal/lockfile"
	"github.com/ktrade/sentinel/internal/metrics"
	"github.com/ktrade/sentinel/internal/supervisor"
)

// Notifier is the alert surface the watchdog needs; satisfied by
// *alert.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, msg alert.Message)
}

// Watchdog wires the heartbeat monitor and the supervisor for one tick.
// It is constructed fresh per invocation; all cross-tick state lives in
// the heartbeat, pidfile, stamp and lock files.
type Watchdog struct {
	monitor      *heartbeat.Monitor
	sup          *supervisor.Supervisor
	notifier     Notifier
	lock         *lockfile.Lock
	startupGrace time.Duration
	logger       *slog.Logger
}

func New(monitor *heartbeat.Monitor, sup *supervisor.Supervisor, notifier Notifier,
	lock *lockfile.Lock, startupGrace time.Duration, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		monitor:      monitor,
		sup:          sup,
		notifier:     notifier,
		lock:         lock,
		startupGrace: startupGrace,
		logger:       logger,
	}
}

// Tick runs one watchdog pass: classify the heartbeat, repair the process
// if needed, notify. A tick that finds the lock held by a live owner skips
// silently; a busy job must never make the next tick block.
func (w *Watchdog) Tick(ctx context.Context) error {
	if err := w.lock.Acquire("watchdog"); err != nil {
		if errors.Is(err, lockfile.ErrHeld) {
			w.logger.Info("watchdog tick skipped, previous tick still running")
			return nil
		}
		return fmt.Errorf("watchdog lock: %w", err)
	}
	defer w.lock.Release()

	now := time.Now()
	c := w.monitor.Classify(now)
	metrics.IncHeartbeatCheck(c.String())
	w.logger.Debug("heartbeat classified", "result", c.String())

	switch c {
	case heartbeat.Fresh:
		// Heartbeat is current but the process may have died since the
		// last beat; EnsureRunning is an idempotent no-op otherwise.
		return w.ensure(ctx, "process down with fresh heartbeat")
	case heartbeat.Missing:
		if w.sup.StartedWithin(now, w.startupGrace) {
			w.logger.Info("heartbeat missing inside startup grace, waiting")
			return nil
		}
		if w.sup.State() != supervisor.Running {
			return w.ensure(ctx, "heartbeat missing")
		}
		return w.restart(ctx, "missing heartbeat")
	case heartbeat.Stale:
		return w.restart(ctx, "stale heartbeat")
	}
	return nil
}

func (w *Watchdog) ensure(ctx context.Context, cause string) error {
	if w.sup.State() == supervisor.Running {
		return nil
	}
	w.logger.Warn("bot not running", "cause", cause)
	if err := w.sup.EnsureRunning(ctx); err != nil {
		w.notifier.Send(ctx, alert.Urgent("Bot Start Failed",
			fmt.Sprintf("%s, and starting it failed: %v", cause, err)))
		return err
	}
	w.notifier.Send(ctx, alert.Info("Bot Started",
		fmt.Sprintf("Bot was down (*%s*) and has been started.", cause)))
	return nil
}

func (w *Watchdog) restart(ctx context.Context, reason string) error {
	err := w.sup.Restart(ctx, reason)
	switch {
	case err == nil:
		w.notifier.Send(ctx, alert.Info("Bot Restarted",
			fmt.Sprintf("Heartbeat was *%s*; the bot has been restarted.", reason)))
		return nil
	case errors.Is(err, supervisor.ErrCoolingDown):
		// A restart already happened this window; one restart, one alert.
		return nil
	default:
		w.notifier.Send(ctx, alert.Urgent("Bot Restart Failed",
			fmt.Sprintf("Restart (%s) failed: %v", reason, err)))
		return err
	}
}
