package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/FJFJ0400/capture-ai/internal/capture"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <capture-id>",
		Short: "Show a capture record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			client, closeConn, err := a.dialCaptures()
			if err != nil {
				return err
			}
			defer closeConn()

			item, err := client.GetCapture(ctx, args[0])
			if err != nil {
				return describeRPCError(err)
			}
			return printJSON(cmd.OutOrStdout(), item)
		},
	}
}

func newRetryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <capture-id>",
		Short: "Reset a capture to UPLOADED and enqueue it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			client, closeConn, err := a.dialCaptures()
			if err != nil {
				return err
			}
			defer closeConn()

			reply, err := client.RetryCapture(ctx, args[0])
			if err != nil {
				return describeRPCError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "capture %s is %s\n", reply.ID, reply.Status)
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		captureID string
		since     string
		pings     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream capture status changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, closeConn, err := a.dialCaptures()
			if err != nil {
				return err
			}
			defer closeConn()

			out := cmd.OutOrStdout()
			err = client.Watch(ctx, capture.WatchRequest{CaptureID: captureID, Since: since}, func(ev capture.WatchEvent) error {
				return printWatchEvent(out, ev, pings)
			})
			if err == nil || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return describeRPCError(err)
		},
	}
	cmd.Flags().StringVar(&captureID, "capture", "", "watch a single capture")
	cmd.Flags().StringVar(&since, "since", "", "RFC3339 watermark to start from")
	cmd.Flags().BoolVar(&pings, "pings", false, "print keep-alive events")
	return cmd
}

func printWatchEvent(w io.Writer, ev capture.WatchEvent, pings bool) error {
	switch ev.Type {
	case capture.EventUpdate:
		for _, item := range ev.Updates {
			reason := ""
			if item.FailureReason != nil {
				reason = " " + *item.FailureReason
			}
			fmt.Fprintf(w, "%s %s %s%s\n", item.UpdatedAt.Format(time.RFC3339), item.ID, item.Status, reason)
		}
	case capture.EventPing:
		if pings {
			fmt.Fprintf(w, "ping %s\n", ev.At.Format(time.RFC3339))
		}
	case capture.EventError:
		return fmt.Errorf("stream error: %s", ev.Message)
	}
	return nil
}

func describeRPCError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound, codes.InvalidArgument, codes.FailedPrecondition:
		return errors.New(st.Message())
	case codes.Unavailable:
		return fmt.Errorf("capture API unavailable: %s", st.Message())
	default:
		return fmt.Errorf("%s: %s", st.Code(), st.Message())
	}
}
