package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ktrade/sentinel"
	"github.com/ktrade/sentinel/internal/server"
)

func createServeCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API and prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			st, err := sentinel.OpenStore(cmd.Context(), a.cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			srv := server.NewServer(a.cfg.Server.Addr, a.s.Router(st))
			fmt.Printf("listening on %s\n", a.cfg.Server.Addr)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

func createRunsCommand(c command, flags *RunsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent optimization runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			st, err := sentinel.OpenStore(cmd.Context(), a.cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			runs, err := st.RecentRuns(cmd.Context(), flags.Limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no optimization runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%-24s %-10s %-28s %s\n",
					r.ID, r.Outcome, r.Phases, r.ReportPath)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 20, "maximum runs to show")
	return cmd
}
