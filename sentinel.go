// Package sentinel is the embeddable facade over the supervision layer:
// heartbeat classification, idempotent process supervision, alerting with a
// durable fallback, crontab registration and the guarded optimization cycle.
// The sentinel CLI is a thin wrapper over this surface.
package sentinel

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ktrade/sentinel/internal/alert"
	"github.com/ktrade/sentinel/internal/config"
	"github.com/ktrade/sentinel/internal/heartbeat"
	"github.com/ktrade/sentinel/internal/lockfile"
	"github.com/ktrade/sentinel/internal/optimizer"
	"github.com/ktrade/sentinel/internal/schedule"
	"github.com/ktrade/sentinel/internal/server"
	"github.com/ktrade/sentinel/internal/store"
	"github.com/ktrade/sentinel/internal/store/factory"
	"github.com/ktrade/sentinel/internal/supervisor"
	"github.com/ktrade/sentinel/internal/watchdog"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = config.Config

type Classification = heartbeat.Classification

const (
	Fresh   = heartbeat.Fresh
	Stale   = heartbeat.Stale
	Missing = heartbeat.Missing
)

type ProcessState = supervisor.State

const (
	Stopped  = supervisor.Stopped
	Starting = supervisor.Starting
	Running  = supervisor.Running
	Unknown  = supervisor.Unknown
)

var (
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrNotRunning     = supervisor.ErrNotRunning
	ErrLockHeld       = lockfile.ErrHeld
)

type AlertMessage = alert.Message

type ScheduleEntry = schedule.Entry

type OptimizationRun = optimizer.Run

type Store = store.Store

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// OpenStore opens the outcome store named by the DSN and ensures its schema.
func OpenStore(ctx context.Context, dsn string) (Store, error) {
	st, err := factory.NewFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// Sentinel wires the supervision components for one bot from its config.
type Sentinel struct {
	cfg      *Config
	sup      *supervisor.Supervisor
	monitor  *heartbeat.Monitor
	notifier *alert.Dispatcher
	logger   *slog.Logger
}

func New(cfg *Config, logger *slog.Logger) *Sentinel {
	if logger == nil {
		logger = slog.Default()
	}
	sup := supervisor.New(supervisor.Options{
		Command:      cfg.Bot.Command,
		WorkDir:      cfg.Bot.WorkDir,
		PIDFile:      cfg.Bot.PIDFile,
		ProcessMatch: cfg.Bot.ProcessMatch,
		LogDir:       cfg.Log.Dir,
		StopGrace:    cfg.Bot.StopGrace,
		Cooldown:     cfg.Watchdog.Cooldown,
		StampPath:    filepath.Join(cfg.Watchdog.LockDir, "restart.stamp"),
	}, logger)
	return &Sentinel{
		cfg:     cfg,
		sup:     sup,
		monitor: heartbeat.NewMonitor(cfg.Watchdog.HeartbeatPath, cfg.Watchdog.Threshold),
		notifier: alert.NewDispatcher(alert.Config{
			WebhookURL:   cfg.Alert.WebhookURL,
			Timeout:      cfg.Alert.Timeout,
			FallbackPath: cfg.Alert.FallbackPath,
		}, logger),
		logger: logger,
	}
}

// State reports the bot's current process state.
func (s *Sentinel) State() ProcessState { return s.sup.State() }

// Classify reports the heartbeat classification at now.
func (s *Sentinel) Classify(now time.Time) Classification { return s.monitor.Classify(now) }

// LastBeat returns the recorded heartbeat time, if one could be parsed.
func (s *Sentinel) LastBeat() (time.Time, bool) { return s.monitor.Last() }

// Router returns the read-only HTTP surface backed by st.
func (s *Sentinel) Router(st Store) *server.Router {
	return server.NewRouter(s.monitor, s.sup, st)
}

// Start starts the bot; ErrAlreadyRunning when it is up.
func (s *Sentinel) Start(ctx context.Context) error { return s.sup.Start(ctx) }

// Stop stops the bot; ErrNotRunning when it is down.
func (s *Sentinel) Stop(ctx context.Context) error { return s.sup.Stop(ctx) }

// EnsureRunning starts the bot only if it is not running.
func (s *Sentinel) EnsureRunning(ctx context.Context) error { return s.sup.EnsureRunning(ctx) }

// Notify sends one alert through the dispatcher.
func (s *Sentinel) Notify(ctx context.Context, msg AlertMessage) { s.notifier.Send(ctx, msg) }

// WatchOnce runs one watchdog tick.
func (s *Sentinel) WatchOnce(ctx context.Context) error {
	lock := lockfile.New(filepath.Join(s.cfg.Watchdog.LockDir, "watchdog.lock"), 5*time.Minute)
	wd := watchdog.New(s.monitor, s.sup, s.notifier, lock, s.cfg.Watchdog.StartupGrace, s.logger)
	return wd.Tick(ctx)
}

// OptimizeOnce runs one guarded optimization cycle against st. A nil run
// with nil error means another cycle was already active.
func (s *Sentinel) OptimizeOnce(ctx context.Context, st Store) (*OptimizationRun, error) {
	lock := lockfile.New(filepath.Join(s.cfg.Watchdog.LockDir, "optimizer.lock"),
		s.cfg.Optimizer.CycleTimeout)
	orch := optimizer.New(optimizer.Options{
		CycleTimeout:  s.cfg.Optimizer.CycleTimeout,
		Window:        s.cfg.Optimizer.Window,
		ReportDir:     s.cfg.Optimizer.ReportDir,
		BotConfigPath: s.cfg.Bot.ConfigPath,
		WorkDir:       s.cfg.Bot.WorkDir,
	}, optimizer.Envelope{
		MaxPositionSizePct: s.cfg.Envelope.MaxPositionSizePct,
		StrategyFlags:      s.cfg.Envelope.StrategyFlags,
		RiskFields:         s.cfg.Envelope.RiskFields,
	}, s.sup, st, optimizer.NewCLIAgent(s.cfg.Optimizer.AgentCommand), s.notifier, lock, s.logger)
	return orch.RunCycle(ctx)
}
