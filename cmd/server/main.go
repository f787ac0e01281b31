// Package main provides the entry point for the task queue service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/devrev/taskqueue/internal/config"
	"github.com/devrev/taskqueue/internal/health"
	"github.com/devrev/taskqueue/internal/metrics"
	"github.com/devrev/taskqueue/internal/server"
	"github.com/devrev/taskqueue/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger := initLogger(config.Default().Logging)
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("starting task queue",
		zap.Int("server_port", cfg.Server.Port),
		zap.Int("max_size", cfg.Queue.MaxSize),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
	)

	var (
		m   *metrics.Metrics
		reg *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewMetrics(reg)
	}

	var recorder service.Recorder
	if m != nil {
		recorder = m
	}
	queue := service.NewQueueService(&service.QueueConfig{MaxSize: cfg.Queue.MaxSize}, recorder, logger)
	healthCheck := health.NewHealthCheck(queue, logger)

	httpServer := server.NewServer(cfg, queue, healthCheck, m, logger)
	httpServer.SetupRoutes()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)

	var metricsServer *metrics.MetricsServer
	if m != nil {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, reg, logger)
		g.Go(metricsServer.Start)

		sampler := server.NewQueueSampler(queue, m, cfg.Metrics.SampleInterval, logger)
		g.Go(func() error { return sampler.Run(gctx) })
		m.SetHealthStatus(true)
	}

	var healthServer *server.HealthServer
	if cfg.Health.GRPCPort > 0 {
		healthServer = server.NewHealthServer(cfg.Health.GRPCPort, healthCheck, logger)
		g.Go(healthServer.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		if m != nil {
			m.SetHealthStatus(false)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", zap.Error(err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown metrics server", zap.Error(err))
			}
		}
		if healthServer != nil {
			healthServer.Stop()
		}
		healthCheck.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("task queue shutdown complete", zap.Int("resident_tasks", queue.Len()))
}

// initLogger initializes the zap logger.
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		// Fallback to basic logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
