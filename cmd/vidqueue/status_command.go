package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"vidqueue/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker pool, and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, snap)
			}
			out := cmd.OutOrStdout()
			renderSnapshot(out, snap, shouldColorize(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderSnapshot(out io.Writer, snap daemonctl.Snapshot, colorize bool) {
	printSection(out, "System Status", daemonLines(snap, colorize), colorize)
	printSection(out, "Dependencies", dependencyLines(snap.Dependencies, colorize), colorize)

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(snap.Jobs) == 0 {
		fmt.Fprintln(out, "No jobs recorded")
		return
	}
	fmt.Fprint(out, renderTable([]string{"Status", "Count"},
		buildCountRows(snap.Jobs, jobStatusOrder()),
		[]columnAlignment{alignLeft, alignRight}))
}

func daemonLines(snap daemonctl.Snapshot, colorize bool) []string {
	var lines []string
	switch {
	case snap.Live:
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", snap.PID), colorize))
	case snap.Running:
		msg := "Running, API unreachable"
		if snap.PID > 0 {
			msg = fmt.Sprintf("Running (pid %d), API unreachable", snap.PID)
		}
		lines = append(lines, renderStatusLine("Daemon", statusWarn, msg, colorize))
	default:
		lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
	}

	lines = append(lines,
		renderStatusLine("Storage", statusInfo, snap.StorageBackend, colorize),
		renderStatusLine("Queue", statusInfo, snap.QueueBackend, colorize),
		renderStatusLine("Job database", statusInfo, snap.JobsDBPath, colorize),
	)

	if !snap.Live {
		return lines
	}
	wf := snap.Workflow
	poolKind := statusOK
	if !wf.Running {
		poolKind = statusWarn
	}
	lines = append(lines,
		renderStatusLine("Workers", poolKind, fmt.Sprintf("%d running, %d active jobs", wf.Workers, wf.ActiveJobs), colorize),
		renderStatusLine("Queue tasks", statusInfo, fmt.Sprintf("%d queued, %d delayed, %d active",
			wf.Queue.Queued, wf.Queue.Delayed, wf.Queue.Active), colorize),
	)
	if wf.LastError != "" {
		detail := wf.LastError
		if wf.LastJobID != "" {
			detail = fmt.Sprintf("%s (job %s)", wf.LastError, wf.LastJobID)
		}
		lines = append(lines, renderStatusLine("Last error", statusWarn, detail, colorize))
	}
	return lines
}
