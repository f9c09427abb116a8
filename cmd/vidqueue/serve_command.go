package main

import (
	"github.com/spf13/cobra"

	"vidqueue/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the processing daemon in the foreground",
		Long: "Runs the worker pool and the read-only HTTP API until interrupted.\n" +
			"SIGINT or SIGTERM stops intake and waits for in-flight jobs to finish.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Enable development logging (source locations)")
	return cmd
}
