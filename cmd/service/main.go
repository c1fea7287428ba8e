package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/simple-weather-service/internal/clock"
	"github.com/kjstillabower/simple-weather-service/internal/config"
	httphandler "github.com/kjstillabower/simple-weather-service/internal/http"
	"github.com/kjstillabower/simple-weather-service/internal/lifecycle"
	"github.com/kjstillabower/simple-weather-service/internal/mqtt"
	"github.com/kjstillabower/simple-weather-service/internal/observability"
	"github.com/kjstillabower/simple-weather-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherStore := store.New(clock.System{},
		store.WithFreshnessWindow(cfg.FreshnessWindow),
		store.WithLogger(logger.Named("store")))
	logger.Info("weather store ready", zap.Duration("freshness_window", weatherStore.FreshnessWindow()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthConfig := &httphandler.HealthConfig{
		Window:      cfg.HealthWindow,
		IgnoredPct:  cfg.HealthIgnoredPct,
		MinMessages: cfg.HealthMinMessages,
		StartTime:   time.Now(),
	}

	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled {
		subscriber, err = mqtt.NewSubscriber(mqtt.Config{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
			QoS:      cfg.MQTTQoS,
		}, func(payload []byte) { weatherStore.Apply(payload) }, logger.Named("mqtt"))
		if err != nil {
			logger.Fatal("mqtt subscriber", zap.Error(err))
		}
		healthConfig.MQTTConnected = subscriber.IsConnected
		go func() {
			if err := subscriber.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, mqtt.ErrStopped) {
				logger.Error("mqtt connect", zap.Error(err))
			}
		}()
	} else {
		logger.Info("mqtt ingest disabled; accepting frames on POST /messages only")
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	handler := httphandler.NewHandler(weatherStore, healthConfig, logger, cfg.MaxMessageBytes)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.BeginShutdown("signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if subscriber != nil {
		subscriber.Disconnect()
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
