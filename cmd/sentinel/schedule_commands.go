package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ktrade/sentinel/internal/schedule"
)

func createScheduleCommand(c command, flags *ScheduleFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the crontab entries driving the watchdog and optimizer",
	}
	cmd.PersistentFlags().StringVar(&flags.Binary, "binary", "",
		"executable path to write into crontab (default: this binary)")
	cmd.AddCommand(
		createScheduleInstallCommand(c, flags),
		createScheduleRemoveCommand(c),
		createScheduleListCommand(c),
	)
	return cmd
}

// entries builds the two managed timers from config. The commands embed the
// config path so the cron-invoked runs see the same configuration.
func (c command) entries(binary string) ([]schedule.Entry, error) {
	cfg, err := c.loadConfigOnly()
	if err != nil {
		return nil, err
	}
	if binary == "" {
		binary, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
	}
	return []schedule.Entry{
		{
			Expr:    cfg.Watchdog.Schedule,
			Command: fmt.Sprintf("%s --config %s watch", binary, c.flags.ConfigPath),
			Label:   "watchdog",
		},
		{
			Expr:    cfg.Optimizer.Schedule,
			Command: fmt.Sprintf("%s --config %s optimize", binary, c.flags.ConfigPath),
			Label:   "optimizer",
		},
	}, nil
}

func createScheduleInstallCommand(c command, flags *ScheduleFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install (or replace) the watchdog and optimizer timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := c.entries(flags.Binary)
			if err != nil {
				return err
			}
			reg := schedule.NewCrontab(nil, nil)
			if err := reg.Install(cmd.Context(), entries); err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("installed %-10s %s\n", e.Label, e.Expr)
			}
			return nil
		},
	}
}

func createScheduleRemoveCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [label...]",
		Short: "Remove managed crontab entries (all of them when no label is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := schedule.NewCrontab(nil, nil)
			if err := reg.Remove(cmd.Context(), args...); err != nil {
				return err
			}
			fmt.Println("managed entries removed")
			return nil
		},
	}
}

func createScheduleListCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "list [label...]",
		Short: "List the installed managed entries, optionally filtered by label",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := schedule.NewCrontab(nil, nil)
			entries, err := reg.List(cmd.Context(), args...)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no managed entries installed")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-10s %-16s %s\n", e.Label, e.Expr, e.Command)
			}
			return nil
		},
	}
}
