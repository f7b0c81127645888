package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/forecast-etl-service/internal/adapter/darksky"
	httpadapter "github.com/couchcryptid/forecast-etl-service/internal/adapter/http"
	"github.com/couchcryptid/forecast-etl-service/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/forecast-etl-service/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/forecast-etl-service/internal/adapter/mqtt"
	"github.com/couchcryptid/forecast-etl-service/internal/config"
	"github.com/couchcryptid/forecast-etl-service/internal/observability"
	"github.com/couchcryptid/forecast-etl-service/internal/pipeline"
	"github.com/couchcryptid/forecast-etl-service/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	sink, err := influx.NewWriter(cfg.Database, logger)
	if err != nil {
		logger.Error("failed to create influx writer", "error", err)
		os.Exit(1)
	}
	if err := sink.Ping(cfg.Database.Timeout); err != nil {
		// Not fatal: every write reports its own error.
		logger.Warn("influx not reachable", "error", err)
	}

	closers := []io.Closer{sink}
	var mirrors []pipeline.PointWriter

	if cfg.Kafka.Enabled {
		kw := kafkaadapter.NewWriter(cfg.Kafka, logger)
		mirrors = append(mirrors, kw)
		closers = append(closers, kw)
		logger.Info("kafka mirror enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	if cfg.MQTT.Enabled {
		pub, err := mqttadapter.NewPublisher(cfg.MQTT, logger)
		if err != nil {
			logger.Error("failed to connect mqtt mirror", "error", err)
			os.Exit(1)
		}
		mirrors = append(mirrors, pub)
		closers = append(closers, pub)
		logger.Info("mqtt mirror enabled", "broker", cfg.MQTT.Broker, "topic_prefix", cfg.MQTT.TopicPrefix)
	}

	client := darksky.NewClient(cfg.Provider.Key, cfg.Provider.BaseURL, cfg.Provider.Timeout, logger)

	p := pipeline.New(client, pipeline.NewFanOut(sink, mirrors...), pipeline.Settings{
		Locations:    cfg.Locations(),
		FetchOptions: cfg.FetchOptions(),
		WriteHistory: cfg.General.WriteHistory,
		Database:     cfg.Database.Database,
		Host:         sink.Addr(),
	}, logger, metrics, nil)

	if len(cfg.Provider.Locations) == 0 {
		logger.Warn("no locations configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if cfg.General.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.General.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	sched := scheduler.New(cfg.General.Cron, func(ctx context.Context) { p.RunOnce(ctx) }, logger)
	if sched.Mode() == scheduler.Recurring {
		metrics.ScheduleRecurring.Set(1)
	}

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		closeAll(logger, closers)
		os.Exit(1)
	}

	// A one-shot import has finished here; stay up only to keep serving HTTP.
	if sched.Mode() == scheduler.Recurring || srv != nil {
		<-ctx.Done()
		logger.Info("shutting down")
	}

	sched.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.General.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	closeAll(logger, closers)
	logger.Info("shutdown complete")
}

func closeAll(logger *slog.Logger, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}
}
