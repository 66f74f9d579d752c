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

	"github.com/Wuchinator/campaign-reports/internal/config"
	"github.com/Wuchinator/campaign-reports/internal/event"
	"github.com/Wuchinator/campaign-reports/pkg/cache"
	"github.com/Wuchinator/campaign-reports/pkg/kafka"
	"github.com/Wuchinator/campaign-reports/pkg/logger"
	"github.com/Wuchinator/campaign-reports/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// metricsPort serves /metrics for the consumer; the consumer has no API.
const metricsPort = "9102"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log = logger.WithService(log, "interaction-consumer")
	log.Info("Starting Interaction Consumer",
		zap.String("environment", cfg.Environment),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("consumer_group", cfg.Kafka.ConsumerGroup),
	)

	reportCache, err := cache.New(cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Reports.CacheTTL,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer reportCache.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	invalidator := event.NewService(reportCache, m, log)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:           cfg.Kafka.Brokers,
		Topics:            []string{cfg.Kafka.Topic},
		GroupID:           cfg.Kafka.ConsumerGroup,
		AutoCommit:        true,
		CommitInterval:    1 * time.Second,
		SessionTimeout:    10 * time.Second,
		RebalanceStrategy: "sticky",
		InitialOffset:     "newest",
	}, invalidator.CreateMessageHandler(), log)
	if err != nil {
		log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil {
			log.Error("Consumer error", zap.Error(err))
		}
	}()

	go func() {
		select {
		case <-consumer.WaitReady():
			log.Info("Kafka consumer is ready and consuming messages")
		case <-ctx.Done():
		}
	}()

	metricsServer := &http.Server{
		Addr:              ":" + metricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout, consumer still running")
	}

	if err := consumer.Close(); err != nil {
		log.Error("Failed to close consumer", zap.Error(err))
	}
	_ = metricsServer.Shutdown(shutdownCtx)

	log.Info("Interaction Consumer stopped")
}
