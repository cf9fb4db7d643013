package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newQueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the capture job queue",
	}
	cmd.AddCommand(newQueueStatsCmd(a), newQueueFailedCmd(a), newQueueRemoveCmd(a))
	return cmd
}

func newQueueStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			q, closeQueue, err := a.openQueue(ctx)
			if err != nil {
				return err
			}
			defer closeQueue()

			stats, err := q.Stats(ctx)
			if err != nil {
				return fmt.Errorf("queue stats: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newQueueFailedCmd(a *app) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List jobs that exhausted their attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			q, closeQueue, err := a.openQueue(ctx)
			if err != nil {
				return err
			}
			defer closeQueue()

			jobs, err := q.FailedJobs(ctx, limit)
			if err != nil {
				return fmt.Errorf("list failed jobs: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CAPTURE\tATTEMPTS\tUPDATED\tERROR")
			for _, job := range jobs {
				fmt.Fprintf(tw, "%s\t%d/%d\t%s\t%s\n",
					job.ID, job.Attempts, job.MaxAttempts, job.UpdatedAt.Format(time.RFC3339), job.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 20, "maximum number of jobs")
	return cmd
}

func newQueueRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <capture-id>",
		Short: "Drop a job so the capture can be enqueued again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			q, closeQueue, err := a.openQueue(ctx)
			if err != nil {
				return err
			}
			defer closeQueue()

			if err := q.Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed job %s\n", args[0])
			return nil
		},
	}
}
