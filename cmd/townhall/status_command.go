package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"townhall/internal/api"
	"townhall/internal/deps"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			client, err := ctx.client(cmd.Context())
			if err != nil {
				if ctx.JSONMode() {
					return writeJSON(cmd, api.DaemonStatus{Running: false})
				}
				lines := renderSectionHeader("Daemon", colorize)
				lines = append(lines, renderStatusLine("townhalld", statusError, "Not running ("+ctx.apiBind()+")", colorize))
				cfg, cfgErr := ctx.ensureConfig()
				if cfgErr == nil {
					lines = append(lines, "")
					lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
					lines = append(lines, dependencyLines(api.FromDependencies(deps.CheckSystem(cfg)), colorize)...)
				}
				fmt.Fprintln(out, strings.Join(lines, "\n"))
				return nil
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, status)
			}
			fmt.Fprintln(out, strings.Join(daemonStatusLines(status, colorize), "\n"))
			return nil
		},
	}
}

func daemonStatusLines(status api.DaemonStatus, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	lines = append(lines, renderStatusLine("townhalld", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	lines = append(lines, renderStatusLine("Queue DB", statusInfo, status.QueueDBPath, colorize))
	lines = append(lines, renderStatusLine("Video records", statusInfo, status.VideosDriver, colorize))

	worker := status.Worker
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Worker", colorize)...)
	workerKind := statusOK
	if worker.State != "RUNNING" {
		workerKind = statusWarn
	}
	lines = append(lines, renderStatusLine("State", workerKind, worker.State, colorize))
	if worker.EncoderAvailable {
		lines = append(lines, renderStatusLine("Encoder", statusOK, "Available", colorize))
	} else {
		lines = append(lines, renderStatusLine("Encoder", statusWarn, "Unavailable (fallback copy in use)", colorize))
	}
	lines = append(lines, renderStatusLine("In flight", statusInfo, fmt.Sprintf("%d", worker.InFlight), colorize))
	q := worker.Queue
	lines = append(lines, renderStatusLine("Queue", statusInfo,
		fmt.Sprintf("%d queued, %d in progress, %d completed, %d failed", q.Queued, q.InProgress, q.Completed, q.Failed), colorize))
	if worker.LastJob != nil {
		lines = append(lines, renderStatusLine("Last job", statusInfo,
			fmt.Sprintf("%s (video %s, attempt %d)", shortID(worker.LastJob.ID), worker.LastJob.VideoID, worker.LastJob.Attempts), colorize))
	}
	if worker.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, worker.LastError, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	lines = append(lines, dependencyLines(status.Dependencies, colorize)...)
	return lines
}


func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check encoder binaries and directory access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckSystem(cfg)
			if ctx.JSONMode() {
				return writeJSON(cmd, api.FromDependencies(statuses))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.Join(dependencyLines(api.FromDependencies(statuses), shouldColorize(out)), "\n"))
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}
