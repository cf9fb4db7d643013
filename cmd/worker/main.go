package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/FJFJ0400/capture-ai/internal/bootstrap"
	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/cfg"
	"github.com/FJFJ0400/capture-ai/internal/database"
	"github.com/FJFJ0400/capture-ai/internal/events"
	"github.com/FJFJ0400/capture-ai/internal/observability"
	"github.com/FJFJ0400/capture-ai/internal/ocr"
	"github.com/FJFJ0400/capture-ai/internal/pipeline"
	"github.com/FJFJ0400/capture-ai/internal/queue"
	"github.com/FJFJ0400/capture-ai/internal/router"
	"github.com/FJFJ0400/capture-ai/internal/storage"
)

func main() {
	conf, err := cfg.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       conf.LogLevel,
		Format:      conf.LogFormat,
		ServiceName: "capture-worker",
	})

	if err := run(conf, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker stopped")
}

func run(conf cfg.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.OpenDatabase(conf, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	rdb, err := bootstrap.OpenRedis(ctx, conf)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store, err := storage.New(ctx, storage.Config{
		Driver:        conf.StorageDriver,
		LocalPath:     conf.StorageLocalPath,
		EncryptionKey: conf.StorageEncryptionKey,
		S3Endpoint:    conf.S3Endpoint,
		S3Region:      conf.S3Region,
		S3Bucket:      conf.S3Bucket,
		S3AccessKey:   conf.S3AccessKey,
		S3SecretKey:   conf.S3SecretKey,
		S3UseSSL:      conf.S3UseSSL,
	})
	if err != nil {
		return err
	}

	extractor, err := ocr.New(ocr.Config{
		Driver:  conf.OCRAdapter,
		Lang:    conf.OCRLang,
		Timeout: conf.OCRTimeout,
		Binary:  conf.OCRBinary,
	})
	if err != nil {
		return err
	}

	journal, closeJournal, err := bootstrap.OpenJournal(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer closeJournal(context.Background())

	if len(conf.KafkaBrokers) == 0 {
		logger.Info().Msg("KAFKA_BROKERS is empty, capture events disabled")
	}
	producer := events.NewProducer(conf.KafkaBrokers, conf.KafkaTopic)
	defer producer.Close()

	processor := pipeline.NewProcessor(
		capture.NewRepository(db),
		store,
		extractor,
		producer,
		journal,
		logger,
	)

	worker := queue.NewWorker(bootstrap.NewQueue(rdb, conf), processor.HandleJob, queue.WorkerOptions{
		Concurrency:  conf.QueueConcurrency,
		PollInterval: conf.QueuePoll,
		ReapInterval: conf.QueueReap,
		OnFailure:    processor.MarkFailed,
		Logger:       observability.Component(logger, "worker"),
	})

	ops := router.NewOps(map[string]router.HealthCheck{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	opsServer := &http.Server{
		Addr:        ":" + conf.WorkerHTTPPort,
		Handler:     ops,
		ReadTimeout: conf.ReadTimeout,
	}

	errCh := make(chan error, 1)
	workerDone := make(chan struct{})

	go func() {
		logger.Info().Str("addr", opsServer.Addr).Msg("ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()

	go func() {
		defer close(workerDone)
		logger.Info().
			Str("queue", conf.QueueName).
			Str("ocr", conf.OCRAdapter).
			Msg("consuming capture jobs")
		_ = worker.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("ops server error")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownGracePeriod)
	defer cancel()

	// текущие задачи дорабатывают с отменённым ctx, lease вернёт брошенные
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("worker did not stop within grace period")
	}

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops shutdown error")
	}
	return runErr
}
