package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"townhall/internal/daemonctl"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start or stop a background townhalld",
	}
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var (
		wait     time.Duration
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch townhalld in the background and wait for its API",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := ctx.client(cmd.Context()); err == nil {
				fmt.Fprintln(out, "townhalld already running")
				return nil
			}
			executable, err := daemonctl.ResolveExecutable()
			if err != nil {
				return err
			}
			pid, err := daemonctl.Launch(executable, daemonctl.LaunchOptions{
				ConfigPath: strings.TrimSpace(ctx.flags.config),
				LogLevel:   logLevel,
			})
			if err != nil {
				return err
			}
			ping := func(pingCtx context.Context) error {
				_, err := ctx.client(pingCtx)
				return err
			}
			if err := daemonctl.WaitHealthy(cmd.Context(), ping, wait); err != nil {
				return fmt.Errorf("townhalld (pid %d) started but %w", pid, err)
			}
			fmt.Fprintf(out, "townhalld started (pid %d, api %s)\n", pid, ctx.apiBind())
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 15*time.Second, "How long to wait for the API to answer")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background townhalld, killing it after the grace period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cfg.PIDPath(), cfg.LockPath(), grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "townhalld is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "townhalld (pid %d) killed after %s\n", result.PID, grace)
				return nil
			}
			fmt.Fprintf(out, "townhalld (pid %d) stopped\n", result.PID)
			return nil
		},
	}
	// Must exceed worker.shutdown_timeout.
	cmd.Flags().DurationVar(&grace, "grace", 90*time.Second, "Time to wait after SIGTERM before SIGKILL")
	return cmd
}
