package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidqueue/internal/api"
	"vidqueue/internal/logging"
	"vidqueue/internal/notifications"
	"vidqueue/internal/preflight"
	"vidqueue/internal/staging"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var (
		cleanWork bool
		maxAge    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories, storage, queue, and media tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg, nil)
			results = append(results,
				preflight.CheckStorageFromConfig(cmd.Context(), cfg),
				preflight.CheckQueueFromConfig(cmd.Context(), cfg),
			)
			lines := make([]string, 0, len(results))
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			lines = append(lines, notificationLine(notifications.Enabled(notifications.NewService(cfg)), cfg.Notifications.NtfyTopic, colorize))
			printSection(out, "Environment", lines, colorize)

			depStatus := api.FromDependencies(preflight.CheckSystemDeps(cfg))
			printSection(out, "Media Toolkit", dependencyLines(depStatus, colorize), colorize)

			if cleanWork {
				logger, err := cliLogger(cfg)
				if err != nil {
					logger = logging.NewNop()
				}
				res := staging.CleanStale(cmd.Context(), cfg.Paths.WorkDir, maxAge, logger)
				fmt.Fprintf(out, "Removed %d stale work directories\n\n", len(res.Removed))
			}
			dirs, err := staging.ListDirectories(cfg.Paths.WorkDir)
			if err != nil {
				return fmt.Errorf("list work directories: %w", err)
			}
			if len(dirs) == 0 {
				printSection(out, "Work Directory", []string{renderStatusLine("Leftover runs", statusOK, "none", colorize)}, colorize)
			} else {
				rows := make([][]string, 0, len(dirs))
				for _, d := range dirs {
					rows = append(rows, []string{d.Name, formatSize(d.Size), d.ModTime.UTC().Format(displayTimeLayout)})
				}
				for _, line := range renderSectionHeader("Work Directory", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprint(out, renderTable([]string{"Run", "Size", "Modified"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft}))
			}

			failed := len(preflight.Failed(results))
			for _, dep := range depStatus {
				if !dep.Available {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d checks failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cleanWork, "clean-work", false, "Remove stale run directories from the work area")
	cmd.Flags().DurationVar(&maxAge, "max-age", time.Hour, "Minimum age of run directories removed by --clean-work")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if maxAge <= 0 {
			return errors.New("--max-age must be positive")
		}
		return nil
	}
	return cmd
}

func notificationLine(enabled bool, topic string, colorize bool) string {
	if !enabled {
		return renderStatusLine("Notifications", statusWarn, "disabled", colorize)
	}
	return renderStatusLine("Notifications", statusOK, "ntfy "+strings.TrimSpace(topic), colorize)
}
