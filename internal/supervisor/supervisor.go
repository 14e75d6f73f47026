package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ktrade/sentinel/internal/metrics"
	"github.com/ktrade/sentinel/internal/runner"
)

var (
	// ErrAlreadyRunning is returned by Start when the bot is up.
	ErrAlreadyRunning = errors.New("bot already running")
	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("bot not running")
	// ErrCoolingDown is returned by Restart inside the cool-down window;
	// repeated stale detections collapse into a single restart.
	ErrCoolingDown = errors.New("restart suppressed by cool-down")
)

// Options configures the supervisor. StampPath is the durable marker whose
// mtime records the last supervised start; it drives both the restart
// cool-down and the startup grace window.
type Options struct {
	Command      string
	WorkDir      string
	PIDFile      string
	ProcessMatch string
	LogDir       string
	StopGrace    time.Duration
	Cooldown     time.Duration
	StampPath    string
}

// Supervisor idempotently keeps the bot process running. It holds no
// cross-tick state in memory; everything durable lives in the pidfile and
// the stamp file.
type Supervisor struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Supervisor {
	if opts.StopGrace <= 0 {
		opts.StopGrace = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{opts: opts, logger: logger}
}

// EnsureRunning starts the bot when it is not running. Repeated calls
// while Running are no-ops and must not emit anything alert-worthy.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	if s.State() == Running {
		s.logger.Debug("bot already running")
		return nil
	}
	return s.start(ctx)
}

// Start starts the bot, failing with ErrAlreadyRunning when it is up.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.State() == Running {
		return ErrAlreadyRunning
	}
	return s.start(ctx)
}

// Restart performs graceful-then-forced stop and a fresh start, guarded by
// the cool-down window. reason is recorded in logs and metrics.
func (s *Supervisor) Restart(ctx context.Context, reason string) error {
	if !s.cooldownElapsed(time.Now()) {
		s.logger.Info("restart suppressed by cool-down", "reason", reason)
		return ErrCoolingDown
	}
	s.logger.Warn("restarting bot", "reason", reason)
	if err := s.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return fmt.Errorf("stop before restart: %w", err)
	}
	// Re-query after any stop before acting further; a concurrently
	// scheduled start may have raced us.
	if s.State() == Running {
		s.logger.Info("bot came back during restart, leaving it alone")
		return nil
	}
	if err := s.start(ctx); err != nil {
		return err
	}
	metrics.IncRestart(reason)
	return nil
}

// Stop sends SIGTERM to the bot's process group, waits up to StopGrace,
// then escalates to SIGKILL.
func (s *Supervisor) Stop(ctx context.Context) error {
	pid, ok := s.readPIDFile()
	if !ok || !pidAlive(pid) {
		if s.State() != Running {
			return ErrNotRunning
		}
		pid, ok = s.readPIDFile()
		if !ok {
			return ErrNotRunning
		}
	}
	s.logger.Info("stopping bot", "pid", pid)
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	deadline := time.Now().Add(s.opts.StopGrace)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			s.removePIDFile()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	s.logger.Warn("graceful stop timed out, killing", "pid", pid)
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	time.Sleep(200 * time.Millisecond)
	s.removePIDFile()
	return nil
}

// StartedWithin reports whether the last supervised start happened within
// d of now. The watchdog uses it as the startup grace window for Missing
// heartbeats.
func (s *Supervisor) StartedWithin(now time.Time, d time.Duration) bool {
	fi, err := os.Stat(s.opts.StampPath)
	if err != nil {
		return false
	}
	return now.Sub(fi.ModTime()) < d
}

func (s *Supervisor) cooldownElapsed(now time.Time) bool {
	if s.opts.Cooldown <= 0 {
		return true
	}
	fi, err := os.Stat(s.opts.StampPath)
	if err != nil {
		return true
	}
	return now.Sub(fi.ModTime()) >= s.opts.Cooldown
}

func (s *Supervisor) stamp() {
	if s.opts.StampPath == "" {
		return
	}
	_ = os.MkdirAll(filepath.Dir(s.opts.StampPath), 0o750)
	now := time.Now()
	if err := os.Chtimes(s.opts.StampPath, now, now); err != nil {
		_ = os.WriteFile(s.opts.StampPath, []byte(now.UTC().Format(time.RFC3339)+"\n"), 0o600)
	}
}

// start launches the bot detached in its own process group, writes the
// pidfile, and verifies it survives a short settle window.
func (s *Supervisor) start(ctx context.Context) error {
	cmd := runner.BuildCommand(s.opts.Command)
	if s.opts.WorkDir != "" {
		cmd.Dir = s.opts.WorkDir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if s.opts.LogDir != "" {
		if err := os.MkdirAll(s.opts.LogDir, 0o750); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		out, err := os.OpenFile(filepath.Join(s.opts.LogDir, "bot.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return fmt.Errorf("open bot log: %w", err)
		}
		defer func() { _ = out.Close() }()
		cmd.Stdout = out
		cmd.Stderr = out
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start bot: %w", err)
	}
	pid := cmd.Process.Pid
	s.writePIDFile(pid)
	s.stamp()
	// Detach: the bot outlives this short-lived invocation.
	_ = cmd.Process.Release()

	// The process must stay up briefly to count as started.
	settle := time.NewTimer(500 * time.Millisecond)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-settle.C:
	}
	if !pidAlive(pid) {
		s.removePIDFile()
		return fmt.Errorf("bot exited immediately after start (pid %d)", pid)
	}
	s.logger.Info("bot started", "pid", pid)
	return nil
}
