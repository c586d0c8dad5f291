package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/touchline-tools/touchlined/internal/config"
	"github.com/touchline-tools/touchlined/internal/history"
	"github.com/touchline-tools/touchlined/internal/history/sqlite"
	"github.com/touchline-tools/touchlined/internal/models"
	"github.com/touchline-tools/touchlined/internal/poller"
	"github.com/touchline-tools/touchlined/internal/publisher"
	"github.com/touchline-tools/touchlined/internal/scheduler"
	"github.com/touchline-tools/touchlined/internal/touchline"
	"github.com/touchline-tools/touchlined/internal/web"
)

// Command touchlined polls a Roth Touchline floor heating controller and
// serves the readings over HTTP.
//
// The daemon supports:
//   - Periodic polling of per-zone temperatures with retry and backoff
//   - Bounded per-zone daily min/max/average history with retention
//   - CSV export of the history
//   - Optional SQLite persistence and MQTT publishing
//   - Prometheus metrics
//
// Usage:
//
//	touchlined [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
//	-port int
//	      HTTP server port, overrides the config file when set
func main() {
	flags := parseFlags()

	appConfig, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if flags.Port != 0 {
		appConfig.Server.Port = flags.Port
	}

	logger := newLogger(appConfig.Logging)

	logger.WithFields(logrus.Fields{
		"device": appConfig.Device.Host,
		"port":   appConfig.Server.Port,
	}).Info("Starting touchlined")

	client := touchline.NewClient(appConfig.Device.Host, appConfig.Device.Port, appConfig.PollTimeout())

	store, err := createStore(appConfig, logger)
	if err != nil {
		logger.Fatalf("Failed to create history store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	pollMetrics := poller.NewMetrics()
	pollMetrics.Register(registry)

	sinks := []poller.Sink{
		poller.SinkFunc(func(snapshot models.ZoneSnapshot) {
			for _, reading := range snapshot.Readings {
				store.Ingest(reading)
			}
		}),
	}

	var mqttPublisher *publisher.MQTTPublisher
	if appConfig.MQTT.Enabled {
		mqttPublisher, err = publisher.NewMQTTPublisher(publisher.Options{
			Broker:      appConfig.MQTT.Broker,
			ClientID:    appConfig.MQTT.ClientID,
			Username:    appConfig.MQTT.Username,
			Password:    appConfig.MQTT.Password,
			TopicPrefix: appConfig.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to connect MQTT publisher: %v", err)
		}
		sinks = append(sinks, mqttPublisher)
	}

	devicePoller := poller.New(client, poller.Config{
		ZoneCount:      appConfig.Device.MaxZones,
		RetryThreshold: appConfig.Polling.RetryThreshold,
		BackoffInitial: time.Duration(appConfig.Polling.BackoffInitialSeconds) * time.Second,
		BackoffMax:     time.Duration(appConfig.Polling.BackoffMaxSeconds) * time.Second,
	}, logger, poller.WithSinks(sinks...), poller.WithMetrics(pollMetrics))
	devicePoller.Start(ctx)

	pollScheduler := scheduler.NewScheduler(ctx, devicePoller, store, appConfig.PollInterval(), logger)
	if err := pollScheduler.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	handler, err := web.SetupServer(devicePoller, store, client, web.ServerConfig{
		CacheSize:      appConfig.Server.CacheSize,
		RateLimit:      appConfig.Server.RateLimit,
		RateLimitBurst: appConfig.Server.RateLimitBurst,
	}, logger, registry)
	if err != nil {
		logger.Fatalf("Failed to setup server: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", appConfig.Server.Port),
		Handler: handler,
	}

	// Probe the device once up front so a bad host shows immediately in the
	// logs, then kick off the first poll.
	probeCtx, probeCancel := context.WithTimeout(ctx, appConfig.PollTimeout())
	if err := client.Ping(probeCtx); err != nil {
		logger.WithError(err).Warn("Device unreachable at startup, polling will retry")
	}
	probeCancel()
	devicePoller.TriggerPoll()

	errChan := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Received signal, initiating shutdown")
	case err := <-errChan:
		logger.WithError(err).Error("Service error, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop HTTP server cleanly")
	}

	pollScheduler.Stop()
	devicePoller.Stop()
	if mqttPublisher != nil {
		mqttPublisher.Close()
	}
	if err := store.Close(); err != nil {
		logger.WithError(err).Error("Failed to close history store")
	}
	logger.Info("Shutdown complete")
}

type flagConfig struct {
	ConfigPath string
	Port       int
}

func parseFlags() *flagConfig {
	cfg := &flagConfig{}

	flag.StringVar(&cfg.ConfigPath, "config", "config.yaml", "Path to the config file")
	flag.IntVar(&cfg.Port, "port", 0, "HTTP server port, overrides the config file when set")

	flag.Parse()

	return cfg
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// createStore builds the in-memory history, backed by SQLite when a database
// path is configured.
func createStore(cfg *config.Config, logger *logrus.Logger) (*history.Store, error) {
	opts := []history.Option{}
	if cfg.History.DBPath != "" {
		backend, err := sqlite.NewFileStore(cfg.History.DBPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, history.WithBackend(backend))
	}
	return history.NewStore(cfg.History.RetentionDays, logger, opts...)
}
