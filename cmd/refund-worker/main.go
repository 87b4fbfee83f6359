package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/internal/gateway"
	"github.com/anoirbs/hotel-sub000/internal/metrics"
	"github.com/anoirbs/hotel-sub000/internal/worker"
	"github.com/anoirbs/hotel-sub000/pkg/config"
	"github.com/anoirbs/hotel-sub000/pkg/kafka"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/retry"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		ServiceName: "refund-worker",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	if !cfg.Kafka.Enabled {
		appLog.Fatal("refund worker requires KAFKA_ENABLED=true")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "refund-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("telemetry disabled", zap.Error(err))
	}
	metrics.Init()

	gw, err := gateway.New(&cfg.Payment)
	if err != nil {
		appLog.Fatal("failed to create payment gateway", zap.Error(err))
	}

	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       cfg.Kafka.ConsumerGroup + "-refunds",
		Topics:        []string{cfg.Booking.RefundTopic},
		ClientID:      cfg.Kafka.ClientID + "-refund-worker",
		MaxRetries:    5,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal("failed to create kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      cfg.Kafka.ClientID + "-refund-dlq",
		MaxRetries:    3,
		RetryInterval: time.Second,
	})
	if err != nil {
		appLog.Fatal("failed to create kafka producer", zap.Error(err))
	}
	defer producer.Close()

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Booking.RefundMaxRetries

	w := worker.NewRefundWorker(
		consumer,
		gw,
		retry.NewKafkaDLQPublisher(producer, cfg.Booking.RefundDLQTopic, "refund-worker"),
		&worker.RefundWorkerConfig{Topic: cfg.Booking.RefundTopic, Retry: retryCfg},
	)

	appLog.Info("refund worker consuming",
		zap.String("topic", cfg.Booking.RefundTopic),
		zap.String("dlq", cfg.Booking.RefundDLQTopic),
		zap.String("gateway", gw.Name()),
	)
	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		appLog.Error("refund worker stopped", zap.Error(err))
	}

	refunded, dead := w.Stats()
	appLog.Info("refund worker exited", zap.Int64("refunded", refunded), zap.Int64("dead_lettered", dead))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = telemetry.Shutdown(shutdownCtx)
}
