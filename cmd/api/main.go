package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	"github.com/FJFJ0400/capture-ai/internal/bootstrap"
	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/cfg"
	"github.com/FJFJ0400/capture-ai/internal/database"
	"github.com/FJFJ0400/capture-ai/internal/middleware"
	"github.com/FJFJ0400/capture-ai/internal/observability"
	"github.com/FJFJ0400/capture-ai/internal/purpose"
	"github.com/FJFJ0400/capture-ai/internal/router"
	"github.com/FJFJ0400/capture-ai/internal/sharestage"
	"github.com/FJFJ0400/capture-ai/internal/storage"
	"github.com/FJFJ0400/capture-ai/internal/todo"
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
		ServiceName: "capture-api",
	})

	if err := run(conf, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped with error")
	}
	logger.Info().Msg("api stopped")
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

	stageStore, err := sharestage.NewStore(conf.ShareStageDriver, rdb)
	if err != nil {
		return err
	}

	jobs := bootstrap.NewQueue(rdb, conf)
	uploadOpts := capture.Options{MaxUploadBytes: conf.MaxUploadBytes, MaxUploadFiles: conf.MaxUploadFiles}

	purposeService := purpose.NewService(purpose.NewRepository(db))
	todoRepo := todo.NewRepository(db)
	captureService := capture.NewService(
		capture.NewRepository(db),
		store,
		jobs,
		purposeService,
		todoRepo,
		uploadOpts,
		observability.Component(logger, "capture"),
	)
	todoService := todo.NewService(todoRepo, captureService)

	watcher := capture.NewWatcher(captureService, conf.StreamInterval)
	captureHandler := capture.NewHandler(captureService, watcher, uploadOpts, logger)
	shareService := sharestage.NewService(
		stageStore,
		sharestage.NewSigner(conf.ShareTokenSecret),
		captureService,
		conf.ShareStageTTL,
		logger,
	)
	shareHandler := sharestage.NewHandler(
		shareService,
		sharestage.Limits{MaxFileBytes: conf.MaxUploadBytes, MaxFiles: conf.MaxUploadFiles},
		captureHandler.MapError,
	)

	rateLimiter := middleware.NewRateLimiter(conf.RateLimitRequests, conf.RateLimitWindow)
	handler, err := router.New(router.Dependencies{
		APIKey:   conf.APIKey,
		Captures: captureHandler,
		Purposes: purpose.NewHandler(purposeService),
		Todos:    todo.NewHandler(todoService),
		Share:    shareHandler,
		Checks:   healthChecks(db, rdb),
		Middleware: []func(http.Handler) http.Handler{
			middleware.NewCORS(middleware.CORSOptions{AllowedOrigins: conf.AllowedCORSOrigins, MaxAge: 10 * time.Minute}),
			rateLimiter.Middleware,
		},
		// multipart с запасом на заголовки частей
		MaxBodyBytes: conf.MaxUploadBytes*int64(conf.MaxUploadFiles) + 1<<20,
		Logger:       observability.Component(logger, "http"),
	})
	if err != nil {
		return err
	}

	// SSE держит ответ открытым: WRITE_TIMEOUT по умолчанию 0
	httpServer := &http.Server{
		Addr:         ":" + conf.HTTPPort,
		Handler:      handler,
		ReadTimeout:  conf.ReadTimeout,
		WriteTimeout: conf.WriteTimeout,
		IdleTimeout:  conf.IdleTimeout,
	}

	grpcListener, err := net.Listen("tcp", ":"+conf.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}
	grpcServer := grpc.NewServer()
	capture.RegisterCaptureServiceServer(grpcServer, capture.NewGrpcHandler(captureService, watcher))
	healthServer := health.NewServer()
	healthServer.SetServingStatus("captureinbox.v1.CaptureService", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	errCh := make(chan error, 2)

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		logger.Info().Str("addr", grpcListener.Addr().String()).Msg("gRPC server listening")
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server error")
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownGracePeriod)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	stopGRPC(shutdownCtx, grpcServer)
	return runErr
}

func healthChecks(db *gorm.DB, rdb redis.UniversalClient) map[string]router.HealthCheck {
	return map[string]router.HealthCheck{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
}

// stopGRPC ждёт завершения открытых Watch стримов не дольше дедлайна.
func stopGRPC(ctx context.Context, server *grpc.Server) {
	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		server.Stop()
	}
}
