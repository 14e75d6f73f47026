package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ktrade/sentinel"
	"github.com/ktrade/sentinel/internal/config"
	"github.com/ktrade/sentinel/internal/logger"
	"github.com/ktrade/sentinel/internal/metrics"
)

// Deterministic exit codes for the bot control surface.
const (
	exitAlreadyRunning = 2
	exitFailedToStart  = 3
	exitNotRunning     = 4
)

// exitError carries a specific process exit code up to main.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

type command struct {
	flags *GlobalFlags
}

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg *config.Config
	s   *sentinel.Sentinel
}

func (c command) loadConfigOnly() (*config.Config, error) {
	cfg, err := config.Load(c.flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Log)
	return cfg, nil
}

func (c command) app() (*app, error) {
	cfg, err := c.loadConfigOnly()
	if err != nil {
		return nil, err
	}
	// Register here so the short-lived watch/optimize invocations count
	// too, not only the serve process that exposes /metrics.
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, s: sentinel.New(cfg, nil)}, nil
}

func createStartCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the bot if it is not already running",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			if err := a.s.Start(cmd.Context()); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyRunning) {
					return exitError{exitAlreadyRunning, err}
				}
				return exitError{exitFailedToStart, err}
			}
			fmt.Println("bot started")
			return nil
		},
	}
}

func createStopCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the bot gracefully, escalating after the grace window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			if err := a.s.Stop(cmd.Context()); err != nil {
				if errors.Is(err, sentinel.ErrNotRunning) {
					return exitError{exitNotRunning, err}
				}
				return err
			}
			fmt.Println("bot stopped")
			return nil
		},
	}
}

func createRestartCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the bot (operator restart, not subject to the cool-down)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.s.Stop(ctx); err != nil && !errors.Is(err, sentinel.ErrNotRunning) {
				return err
			}
			if err := a.s.Start(ctx); err != nil {
				return exitError{exitFailedToStart, err}
			}
			fmt.Println("bot restarted")
			return nil
		},
	}
}

func createStatusCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show process state and heartbeat classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			st := a.s.State()
			now := time.Now()
			fmt.Printf("process:   %s\n", st)
			fmt.Printf("heartbeat: %s", a.s.Classify(now))
			if last, ok := a.s.LastBeat(); ok {
				fmt.Printf(" (age %s)", now.Sub(last).Round(time.Second))
			}
			fmt.Println()
			if st != sentinel.Running {
				return exitError{exitNotRunning, errors.New("bot is not running")}
			}
			return nil
		},
	}
}

func createWatchCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run one watchdog tick (classify heartbeat, repair, alert)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			return a.s.WatchOnce(cmd.Context())
		},
	}
}

func createOptimizeCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Run one guarded optimization cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			if a.cfg.Optimizer.AgentCommand == "" {
				return errors.New("optimizer.agent_command is not configured")
			}
			ctx := cmd.Context()
			st, err := sentinel.OpenStore(ctx, a.cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			run, err := a.s.OptimizeOnce(ctx, st)
			if err != nil {
				return err
			}
			if run == nil {
				fmt.Println("skipped: another cycle is active")
				return nil
			}
			fmt.Printf("outcome: %s\nreport:  %s\n", run.Outcome, run.ReportPath)
			return nil
		},
	}
}
