package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/cfg"
	"github.com/FJFJ0400/capture-ai/internal/notification"
	"github.com/FJFJ0400/capture-ai/internal/observability"
)

func main() {
	conf := cfg.Load()
	logger := observability.NewLogger(observability.LogConfig{
		Level:       conf.LogLevel,
		Format:      conf.LogFormat,
		ServiceName: "capture-notification",
	})

	if err := run(conf, logger); err != nil {
		logger.Fatal().Err(err).Msg("notification service stopped with error")
	}
	logger.Info().Msg("notification service stopped")
}

func run(conf cfg.Config, logger zerolog.Logger) error {
	if len(conf.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS must be set")
	}
	if conf.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// соединение ленивое: недоступный API не мешает получать события
	conn, err := grpc.NewClient(conf.CaptureGRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("create capture gRPC client: %w", err)
	}
	defer conn.Close()

	notifier := notification.NewLogNotifier(observability.Component(logger, "notifier"))
	handler := notification.NewEventHandler(notifier, capture.NewClient(conn), logger)
	consumer := notification.NewKafkaConsumer(conf.KafkaBrokers, conf.KafkaTopic, conf.KafkaGroupID, handler, logger)
	defer consumer.Close()

	errCh := make(chan error, 1)

	go func() {
		logger.Info().
			Str("topic", conf.KafkaTopic).
			Str("group", conf.KafkaGroupID).
			Str("capture_grpc", conf.CaptureGRPCAddr).
			Msg("subscribing to capture events")
		errCh <- consumer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		return <-errCh
	case err := <-errCh:
		return err
	}
}
