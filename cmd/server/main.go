package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quantrail/price-sync/internal/api"
	"github.com/quantrail/price-sync/internal/config"
	"github.com/quantrail/price-sync/internal/database"
	"github.com/quantrail/price-sync/internal/gaps"
	"github.com/quantrail/price-sync/internal/kafka"
	"github.com/quantrail/price-sync/internal/source"
	"github.com/quantrail/price-sync/internal/syncer"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := db.MigrateUp(cfg.Database.MigrationsPath); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}

	var cache *gaps.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = gaps.NewCache(rdb, cfg.Redis.TTL)
		logger.WithField("addr", cfg.Redis.Addr).Info("gap status cache enabled")
	}

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		logger.WithField("topic", cfg.Kafka.Topic).Info("event publishing enabled")
	}

	client := source.NewClient(cfg.Source.BaseURL, cfg.Source.Timeout, logger)
	analyzer := gaps.NewAnalyzer(db, client, cache, logger)
	calendar := syncer.NewTradingCalendar(cfg.Sync.CalendarMIC)

	var publisher syncer.EventPublisher
	if producer != nil {
		publisher = producer
	}
	orchestrator := syncer.NewOrchestrator(db, client, publisher, calendar, logger)

	var deletePublisher api.EventPublisher
	if producer != nil {
		deletePublisher = producer
	}
	handler := api.NewHandler(db, analyzer, orchestrator, cache, deletePublisher, logger)
	router := api.SetupRoutes(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // sync batches can run long
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("forced shutdown")
	}
}
