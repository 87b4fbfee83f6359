package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/internal/di"
	"github.com/anoirbs/hotel-sub000/internal/metrics"
	"github.com/anoirbs/hotel-sub000/internal/worker"
	"github.com/anoirbs/hotel-sub000/pkg/config"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		ServiceName: "session-sweeper",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	if !cfg.Database.Enabled {
		appLog.Warn("database disabled; the sweeper will only see bookings it creates itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "session-sweeper",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("telemetry disabled", zap.Error(err))
	}
	metrics.Init()

	infra, err := di.OpenInfra(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("failed to open infrastructure", zap.Error(err))
	}
	container, err := di.NewContainer(&di.ContainerConfig{Config: cfg, Infra: infra, Logger: appLog})
	if err != nil {
		infra.Close()
		appLog.Fatal("failed to build container", zap.Error(err))
	}
	defer container.Close()

	sweeper := worker.NewSessionSweeper(container.Gateway, container.BookingRepo, container.Reconciler,
		&worker.SessionSweeperConfig{
			ScanInterval: cfg.Booking.SweepInterval,
			BatchSize:    cfg.Booking.SweepBatchSize,
		})

	if *once {
		res, err := sweeper.Sweep(ctx)
		if err != nil {
			appLog.Fatal("sweep failed", zap.Error(err))
		}
		appLog.Info("sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("confirmed", res.Confirmed),
			zap.Int("conflicts", res.Conflicts),
			zap.Int("failed", res.Failed),
		)
		return
	}

	if err := sweeper.Start(ctx); err != nil {
		appLog.Fatal("failed to start sweeper", zap.Error(err))
	}
	<-ctx.Done()
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = telemetry.Shutdown(shutdownCtx)
	appLog.Info("session sweeper exited")
}
