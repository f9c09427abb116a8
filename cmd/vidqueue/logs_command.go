package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidqueue/internal/logs"
)

const followWait = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var jobID string
	var level string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			switch strings.ToLower(strings.TrimSpace(level)) {
			case "", "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("invalid level %q (want debug, info, warn or error)", level)
			}

			opts := logs.TailOptions{
				Offset: -1,
				Limit:  lines,
				Filter: logs.Filter{JobID: jobID, Level: level},
			}
			if lines <= 0 {
				opts.Offset = 0
				opts.Limit = 0
			}

			runCtx := cmd.Context()
			out := cmd.OutOrStdout()
			printed := false
			for {
				result, err := logs.Tail(runCtx, cfg.LogPath(), opts)
				if err != nil {
					if errors.Is(err, runCtx.Err()) {
						return nil
					}
					return fmt.Errorf("tail logs: %w", err)
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
					printed = true
				}
				if !follow {
					if !printed {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}
				opts.Offset = result.Offset
				opts.Limit = 0
				opts.Follow = true
				opts.Wait = followWait
				select {
				case <-runCtx.Done():
					return nil
				default:
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show entries for this job ID")
	cmd.Flags().StringVar(&level, "level", "", "Only show entries at this level (debug, info, warn, error)")
	return cmd
}
