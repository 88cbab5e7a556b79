package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"townhall/internal/api"
	"townhall/internal/queue"
	"townhall/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the encoding job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueEnqueueCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueCleanupCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	queueCmd.AddCommand(newQueueWatchCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, stats)
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(statusCountColumns, rows))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List encoding jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := queueaccess.ParseStatuses(statuses); err != nil {
				return err
			}
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				jobs, err := access.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(jobListColumns, buildJobListRows(jobs)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil,
		"Filter by status, repeatable ("+strings.Join(sortedStatusNames(), ", ")+")")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <jobID>",
		Short: "Show one encoding job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireArg(args, "job id")
			if err != nil {
				return err
			}
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				job, err := access.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", id)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.JobResponse{Job: *job})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderDetails(jobDetails(*job)))
				return nil
			})
		},
	}
}

func newQueueEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <videoID> <inputLocator>",
		Short: "Queue a video for encoding",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				resp, err := access.Enqueue(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Created {
					fmt.Fprintf(out, "Queued job %s for video %s\n", resp.Job.ID, resp.Job.VideoID)
				} else {
					fmt.Fprintf(out, "Video %s already has active job %s (%s)\n",
						resp.Job.VideoID, resp.Job.ID, formatStatusLabel(resp.Job.Status))
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [jobID...]",
		Short: "Retry failed jobs with a fresh attempt budget (all failed jobs when no ids are given)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				result, err := access.Retry(cmd.Context(), args)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					fmt.Fprintf(out, "Retried %d failed jobs\n", result.UpdatedCount)
					return nil
				}
				for _, job := range result.Jobs {
					fmt.Fprintln(out, retryOutcomeMessage(job))
				}
				return nil
			})
		},
	}
}

func retryOutcomeMessage(result api.RetryJobResult) string {
	switch result.Outcome {
	case api.RetryJobNotFound:
		return fmt.Sprintf("Job %s not found", result.ID)
	case api.RetryJobNotFailed:
		return fmt.Sprintf("Job %s is not failed (only failed jobs can be retried)", result.ID)
	case api.RetryJobConflict:
		return fmt.Sprintf("Job %s skipped: its video already has an active job", result.ID)
	default:
		return fmt.Sprintf("Job %s reset for retry", result.ID)
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <jobID...>",
		Short: "Delete jobs that are not in progress",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				removed, err := access.Remove(cmd.Context(), args)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.RemoveResponse{Removed: removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d of %d jobs\n", removed, len(args))
				return nil
			})
		},
	}
}

func newQueueCleanupCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete terminal jobs past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				var (
					removed int64
					err     error
				)
				if all {
					removed, err = store.ClearTerminal(cmd.Context())
				} else {
					removed, err = store.Cleanup(cmd.Context())
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.RemoveResponse{Removed: removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d terminal jobs\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every completed and failed job regardless of age")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health (schema, integrity, columns)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				resp, err := store.CheckHealth(cmd.Context())
				if err != nil && resp.DBPath == "" {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database path: %s\n", resp.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(resp.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(resp.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %d\n", resp.SchemaVersion)
				fmt.Fprintf(out, "encoding_jobs table present: %s\n", yesNo(resp.TableExists))
				if len(resp.MissingColumns) > 0 {
					missing := append([]string(nil), resp.MissingColumns...)
					sort.Strings(missing)
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
				} else {
					fmt.Fprintln(out, "Missing columns: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(resp.IntegrityCheck))
				fmt.Fprintf(out, "Total jobs: %d\n", resp.TotalJobs)
				if resp.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", resp.Error)
				}
				if err != nil {
					return errors.Join(errors.New("queue database unhealthy"), err)
				}
				return nil
			})
		},
	}
}
