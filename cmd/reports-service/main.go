package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wuchinator/campaign-reports/internal/analytics"
	"github.com/Wuchinator/campaign-reports/internal/config"
	"github.com/Wuchinator/campaign-reports/internal/interaction"
	"github.com/Wuchinator/campaign-reports/internal/query"
	"github.com/Wuchinator/campaign-reports/pkg/cache"
	"github.com/Wuchinator/campaign-reports/pkg/logger"
	"github.com/Wuchinator/campaign-reports/pkg/metrics"
	"github.com/Wuchinator/campaign-reports/pkg/postgres"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"go.uber.org/zap"
)

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

	log = logger.WithService(log, "reports-service")
	log.Info("Starting Reports Service",
		zap.String("environment", cfg.Environment),
		zap.String("http_port", cfg.HTTP.Port),
	)

	db, err := postgres.New(postgres.Config{
		DSN:             cfg.Postgres.PostgresDSN(),
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

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

	reportService := query.NewService(query.Dependencies{
		CampaignRecords:    interaction.NewCampaignRecordRepository(db.DB, log),
		MailingListRecords: interaction.NewMailingListRecordRepository(db.DB, log),
		Campaigns:          interaction.NewCampaignRepository(db.DB, log),
		MailingLists:       interaction.NewMailingListRepository(db.DB, log),
		Sendouts:           interaction.NewSendoutRepository(db.DB, log),
		Contacts:           interaction.NewContactRepository(db.DB, log),
	}, analytics.SourceLinker{
		BaseURL:      cfg.Reports.ControlPanelURL,
		UserProfiles: cfg.Reports.UserProfiles,
	}, log)

	handler := query.NewHandler(reportService, query.HandlerConfig{
		Cache:          reportCache,
		Metrics:        m,
		DefaultLimit:   cfg.Reports.DefaultLimit,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, log)
	handler.AddHealthCheck("postgres", db.HealthCheck)
	handler.AddHealthCheck("redis", reportCache.Ping)

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("Shutdown timeout, forcing stop", zap.Error(err))
		_ = server.Close()
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Reports Service stopped", zap.Any("postgres_pool", db.Stats()))
}
