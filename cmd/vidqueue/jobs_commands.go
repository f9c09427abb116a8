package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vidqueue/internal/api"
	"vidqueue/internal/jobs"
	"vidqueue/internal/services"
)

const defaultListLimit = 50

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage job records",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsDeleteCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlag string
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := jobs.ListOptions{Limit: limit, Offset: offset}
			if raw := strings.TrimSpace(statusFlag); raw != "" {
				status, ok := jobs.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q (want one of %s)", raw, statusChoices())
				}
				opts.Status = status
			}
			if limit < 0 || offset < 0 {
				return errors.New("--limit and --offset must not be negative")
			}

			return ctx.withRuntime(cmd, func(rt *runtime) error {
				items, err := rt.service.List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.JobListResponse{Jobs: items, Limit: limit, Offset: offset})
				}
				out := cmd.OutOrStdout()
				rows := buildJobListRows(items, commandTimes(cmd))
				if len(rows) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Name", "Status", "Size", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Only list jobs in this status")
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "Maximum number of jobs to list (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of jobs to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job with its download links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				job, err := rt.service.Get(cmd.Context(), id)
				if err != nil {
					return describeJobError(id, err)
				}
				resp := api.JobResponse{Job: job}
				if links, linkErr := rt.service.Links(cmd.Context(), id); linkErr == nil {
					resp.Links = &links
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "warn: unable to sign links: %v\n", linkErr)
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDetails(buildJobDetails(resp.Job, resp.Links, commandTimes(cmd))))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Resubmit failed jobs for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				out := cmd.OutOrStdout()
				var failures int
				for _, raw := range args {
					id := strings.TrimSpace(raw)
					if _, err := rt.service.Resubmit(cmd.Context(), id); err != nil {
						failures++
						fmt.Fprintf(out, "Job %s not retried: %v\n", id, describeJobError(id, err))
						continue
					}
					fmt.Fprintf(out, "Job %s queued for processing\n", id)
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d jobs could not be retried", failures, len(args))
				}
				return nil
			})
		},
	}
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete job records and their stored objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				out := cmd.OutOrStdout()
				results := make([]api.DeleteResult, 0, len(args))
				var failures int
				for _, raw := range args {
					id := strings.TrimSpace(raw)
					result, err := rt.service.Delete(cmd.Context(), id)
					if err != nil {
						failures++
						if !jsonOutput {
							fmt.Fprintf(out, "Job %s not deleted: %v\n", id, describeJobError(id, err))
						}
						continue
					}
					results = append(results, result)
					if !jsonOutput {
						fmt.Fprintf(out, "Job %s deleted (%d objects removed)\n", id, len(result.RemovedObjects))
					}
				}
				if jsonOutput {
					if err := writeJSON(cmd, map[string]any{"deleted": results}); err != nil {
						return err
					}
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d jobs could not be deleted", failures, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func describeJobError(id string, err error) error {
	if errors.Is(err, services.ErrRecordNotFound) {
		return fmt.Errorf("job %s not found", id)
	}
	return err
}

func statusChoices() string {
	statuses := jobs.AllStatuses()
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// commandTimes picks relative timestamps when stdout is an interactive
// terminal.
func commandTimes(cmd *cobra.Command) timeFormatter {
	file, ok := cmd.OutOrStdout().(*os.File)
	return timeFormatter{relative: ok && isTerminal(file)}
}
