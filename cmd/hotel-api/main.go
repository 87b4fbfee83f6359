package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/internal/di"
	"github.com/anoirbs/hotel-sub000/internal/metrics"
	"github.com/anoirbs/hotel-sub000/pkg/config"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
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
		ServiceName: "hotel-api",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting hotel API", zap.String("version", cfg.App.Version), zap.String("env", cfg.App.Environment))

	ctx := context.Background()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
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
	appLog.Info("payment gateway ready", zap.String("gateway", container.Gateway.Name()))

	if err := container.SeedAdmin(ctx); err != nil {
		appLog.Error("failed to seed admin account", zap.Error(err))
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := container.Router(appLog)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("hotel API listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", zap.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("telemetry shutdown failed", zap.Error(err))
	}

	appLog.Info("server exited gracefully")
}
