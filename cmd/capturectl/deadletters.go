package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FJFJ0400/capture-ai/internal/deadletter"
)

func newDeadLettersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dlq"},
		Short:   "Inspect captures that failed permanently",
	}
	cmd.AddCommand(newDeadLettersListCmd(a), newDeadLettersPurgeCmd(a))
	return cmd
}

func newDeadLettersListCmd(a *app) *cobra.Command {
	var (
		captureID string
		limit     int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled failures, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			journal, closeJournal, err := a.openJournal(ctx)
			if err != nil {
				return err
			}
			defer closeJournal()

			var entries []deadletter.Entry
			if captureID != "" {
				entries, err = journal.ListByCapture(ctx, captureID)
			} else {
				entries, err = journal.List(ctx, limit)
			}
			if err != nil {
				return fmt.Errorf("list dead letters: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&captureID, "capture", "", "only entries of this capture")
	cmd.Flags().Int64Var(&limit, "limit", 50, "maximum number of entries")
	return cmd
}

func newDeadLettersPurgeCmd(a *app) *cobra.Command {
	var (
		captureID string
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete journaled failures of one capture or all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if captureID == "" && !all {
				return errors.New("either --capture or --all is required")
			}
			if captureID != "" && all {
				return errors.New("--capture and --all are mutually exclusive")
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			journal, closeJournal, err := a.openJournal(ctx)
			if err != nil {
				return err
			}
			defer closeJournal()

			deleted, err := journal.Purge(ctx, captureID)
			if err != nil {
				return fmt.Errorf("purge dead letters: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&captureID, "capture", "", "capture ID to purge")
	cmd.Flags().BoolVar(&all, "all", false, "purge the whole journal")
	return cmd
}
