package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// buildRoot assembles the CLI command tree.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	scheduleFlags := &ScheduleFlags{}
	runsFlags := &RunsFlags{}

	c := command{flags: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(c),
		createStopCommand(c),
		createRestartCommand(c),
		createStatusCommand(c),
		createWatchCommand(c),
		createOptimizeCommand(c),
		createScheduleCommand(c, scheduleFlags),
		createRunsCommand(c, runsFlags),
		createServeCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Supervision layer for a long-running trading bot",
		Long: `Sentinel keeps a trading bot alive and honest: it watches the bot's
heartbeat, restarts it when it crashes or goes silent, alerts on every
intervention, and periodically runs a guarded self-optimization cycle.

Examples:
  sentinel --config /etc/sentinel/config.toml status
  sentinel --config /etc/sentinel/config.toml watch
  sentinel --config /etc/sentinel/config.toml schedule install`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "/etc/sentinel/config.toml",
		"path to TOML config file")
	return root
}
