package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidqueue/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submit <file>...",
		Short: "Upload video files and queue them for processing",
		Long: "Stores each file as an original object, creates a job record in the uploading\n" +
			"state, and enqueues it for the worker pool. Files are validated against the\n" +
			"configured size limit and allowed extensions before anything is stored.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				out := cmd.OutOrStdout()
				submitted := make([]api.Job, 0, len(args))
				var failures int
				for _, path := range args {
					job, err := rt.service.SubmitFile(cmd.Context(), path)
					if err != nil {
						failures++
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
						continue
					}
					submitted = append(submitted, job)
					if !jsonOutput {
						fmt.Fprintf(out, "Submitted %s as job %s (%s)\n", job.OriginalName, job.ID, formatSize(job.SizeBytes))
					}
				}
				if jsonOutput {
					if err := writeJSON(cmd, map[string]any{"jobs": submitted}); err != nil {
						return err
					}
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d files could not be submitted", failures, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
