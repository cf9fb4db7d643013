// Command capturectl - операторский CLI для очереди, журнала ошибок и снимков.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/FJFJ0400/capture-ai/internal/bootstrap"
	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/cfg"
	"github.com/FJFJ0400/capture-ai/internal/deadletter"
	"github.com/FJFJ0400/capture-ai/internal/observability"
	"github.com/FJFJ0400/capture-ai/internal/queue"
)

const commandTimeout = 30 * time.Second

type closeFunc func() error

// app держит конфигурацию и фабрики зависимостей; тесты подменяют фабрики.
type app struct {
	conf cfg.Config

	openQueue    func(ctx context.Context) (queue.Queue, closeFunc, error)
	openJournal  func(ctx context.Context) (deadletter.Journal, closeFunc, error)
	dialCaptures func() (captureClient, closeFunc, error)
}

// captureClient - часть gRPC клиента CaptureService, нужная CLI.
type captureClient interface {
	GetCapture(ctx context.Context, id string) (capture.Capture, error)
	RetryCapture(ctx context.Context, id string) (capture.RetryCaptureReply, error)
	Watch(ctx context.Context, req capture.WatchRequest, fn func(capture.WatchEvent) error) error
}

func newApp(conf cfg.Config) *app {
	a := &app{conf: conf}

	a.openQueue = func(ctx context.Context) (queue.Queue, closeFunc, error) {
		client, err := bootstrap.OpenRedis(ctx, a.conf)
		if err != nil {
			return nil, nil, err
		}
		return bootstrap.NewQueue(client, a.conf), client.Close, nil
	}

	a.openJournal = func(ctx context.Context) (deadletter.Journal, closeFunc, error) {
		if a.conf.MongoURI == "" {
			return nil, nil, errors.New("MONGO_URI must be set")
		}
		logger := observability.NewLogger(observability.LogConfig{Level: "warn", Format: "console", Output: os.Stderr, ServiceName: "capturectl"})
		journal, disconnect, err := bootstrap.OpenJournal(ctx, a.conf, logger)
		if err != nil {
			return nil, nil, err
		}
		return journal, func() error { return disconnect(context.Background()) }, nil
	}

	a.dialCaptures = func() (captureClient, closeFunc, error) {
		conn, err := grpc.NewClient(a.conf.CaptureGRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("create capture gRPC client: %w", err)
		}
		return capture.NewClient(conn), conn.Close, nil
	}

	return a
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "capturectl",
		Short:         "Operator CLI for the capture inbox",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.conf.RedisAddr, "redis-addr", a.conf.RedisAddr, "Redis address of the job queue")
	root.PersistentFlags().StringVar(&a.conf.QueueName, "queue", a.conf.QueueName, "job queue name")
	root.PersistentFlags().StringVar(&a.conf.CaptureGRPCAddr, "grpc-addr", a.conf.CaptureGRPCAddr, "CaptureService gRPC address")
	root.PersistentFlags().StringVar(&a.conf.MongoURI, "mongo-uri", a.conf.MongoURI, "MongoDB URI of the dead letter journal")

	root.AddCommand(newQueueCmd(a))
	root.AddCommand(newDeadLettersCmd(a))
	root.AddCommand(newGetCmd(a), newRetryCmd(a), newWatchCmd(a))
	return root
}

func main() {
	if err := newRootCmd(newApp(cfg.Load())).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, commandTimeout)
}
