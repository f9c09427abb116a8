package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vidqueue/internal/daemonctl"
	"vidqueue/internal/jobs"
	"vidqueue/internal/queue"
)

var queueStateOrder = []string{"queued", "delayed", "active", "completed", "failed"}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the processing queue",
	}

	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueuePruneCommand(ctx))
	queueCmd.AddCommand(newQueueRecoverCommand(ctx))

	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job record and queue task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				stats, err := rt.service.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Jobs")
				fmt.Fprint(out, renderTable([]string{"Status", "Count"},
					buildCountRows(stats.Jobs, jobStatusOrder()),
					[]columnAlignment{alignLeft, alignRight}))
				fmt.Fprintf(out, "Queue (%s)\n", rt.cfg.Queue.Backend)
				fmt.Fprint(out, renderTable([]string{"State", "Count"},
					buildCountRows(queueStatsMap(stats.Queue), queueStateOrder),
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueuePruneCommand(ctx *commandContext) *cobra.Command {
	var keepCompleted, keepFailed int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Trim settled tasks down to the retention bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				keep := queue.Retention{
					Completed: rt.cfg.Workers.RetainCompleted,
					Failed:    rt.cfg.Workers.RetainFailed,
				}
				if cmd.Flags().Changed("keep-completed") {
					keep.Completed = keepCompleted
				}
				if cmd.Flags().Changed("keep-failed") {
					keep.Failed = keepFailed
				}
				if keep.Completed < 0 || keep.Failed < 0 {
					return errors.New("retention bounds must not be negative")
				}
				removed, err := rt.transport.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d settled tasks (kept up to %d completed, %d failed)\n",
					removed, keep.Completed, keep.Failed)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keepCompleted, "keep-completed", 0, "Completed tasks to keep (defaults to workers.retain_completed)")
	cmd.Flags().IntVar(&keepFailed, "keep-failed", 0, "Failed tasks to keep (defaults to workers.retain_failed)")
	return cmd
}

func newQueueRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Requeue tasks left active by a daemon that exited uncleanly",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if running, pid := daemonctl.ProcessInfo(cfg); running {
				if pid > 0 {
					return fmt.Errorf("daemon is running (pid %d); stop it before recovering the queue", pid)
				}
				return errors.New("daemon is running; stop it before recovering the queue")
			}
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				recovered, err := rt.transport.Recover(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d active tasks\n", recovered)
				return nil
			})
		},
	}
}

func jobStatusOrder() []string {
	statuses := jobs.AllStatuses()
	order := make([]string, 0, len(statuses))
	for _, s := range statuses {
		order = append(order, string(s))
	}
	return order
}

func queueStatsMap(stats queue.Stats) map[string]int {
	return map[string]int{
		"queued":    stats.Queued,
		"delayed":   stats.Delayed,
		"active":    stats.Active,
		"completed": stats.Completed,
		"failed":    stats.Failed,
	}
}
