package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signdata/signdata-processing-service/internal/app"
	"github.com/signdata/signdata-processing-service/internal/infra/config"
	"github.com/signdata/signdata-processing-service/internal/infra/email"
	"github.com/signdata/signdata-processing-service/internal/infra/metrics"
	"github.com/signdata/signdata-processing-service/internal/infra/rabbitmq"
	"github.com/signdata/signdata-processing-service/internal/infra/tracing"
	"github.com/signdata/signdata-processing-service/internal/usecase"
	"github.com/signdata/signdata-processing-service/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting signdata ingestion worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "signdata-ingestion-worker")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer tp.Shutdown(ctx)
	}

	infra, err := app.Connect(ctx, cfg, log)
	fatalOnErr(err, "connect infrastructure")
	defer infra.Close()

	reg := app.NewRegistry(cfg, log)
	pipeline, estimator := app.NewPipeline(cfg, reg, log)
	if err := estimator.WaitForReady(ctx, cfg.LandmarkStartupTimeout, 2*time.Second); err != nil {
		log.Warn("landmark sidecar not ready, jobs will retry", zap.Error(err))
	}

	uc := usecase.NewIngestVideoUseCase(
		infra.Jobs, infra.Storage, pipeline,
		rabbitmq.NewStatusPublisher(infra.Publisher),
		rabbitmq.NewDLQPublisher(infra.Publisher, cfg.RabbitMQDLQ),
		email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
		log,
		usecase.IngestVideoConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
		},
	)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, map[string]metrics.ReadyFunc{
		"postgres":  infra.Pool.Ping,
		"landmarks": estimator.HealthCheck,
	})

	consumer, err := rabbitmq.NewConsumer(infra.Conn, rabbitmq.ConsumerConfig{
		Queue:       cfg.RabbitMQIngestQueue,
		Exchange:    cfg.RabbitMQExchange,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("ingestion worker started, consuming messages",
		zap.String("queue", cfg.RabbitMQIngestQueue),
		zap.String("dataset", cfg.StoragePath),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("ingestion worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
