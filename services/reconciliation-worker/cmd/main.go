package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/database"
	kafkautils "github.com/nimeshabuddhika/shopsphere-orders/pkg/kafka"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/repositories"
	"github.com/nimeshabuddhika/shopsphere-orders/services/reconciliation-worker/configs"
	"github.com/nimeshabuddhika/shopsphere-orders/services/reconciliation-worker/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// main runs the worker that turns CHARGE_UNRECONCILED events into pending refunds.
func main() {
	pkg.InitLogger("reconciliation-worker")
	logger := pkg.Logger
	defer func() { _ = logger.Sync() }()

	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, disconnect, err := database.New(ctx, logger, database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer disconnect()
	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// The worker may start before order-api has created the topic.
	err = kafkautils.InitKafkaTopics(ctx, logger, kafkautils.KafkaConfig{
		BootstrapServers: cfg.KafkaBrokers,
		Topics: []kafkautils.TopicConfig{
			{Topic: cfg.KafkaTopic, NumPartitions: int(cfg.KafkaPartition), ReplicationFactor: 1, Config: map[string]string{"cleanup.policy": "delete"}},
			{Topic: cfg.KafkaDLQTopic, NumPartitions: 1, ReplicationFactor: 1, Config: map[string]string{"cleanup.policy": "delete"}},
		},
	})
	if err != nil {
		logger.Fatal("failed to initialize kafka topics", zap.Error(err))
	}

	reconciler := services.NewReconciliationService(services.ReconciliationServiceConf{
		Logger:      logger,
		DB:          db,
		Repo:        repositories.NewReconciliationRepository(),
		MaxRetries:  cfg.MaxRetryCount,
		BaseBackoff: cfg.RetryBaseBackoff,
		MaxBackoff:  cfg.MaxRetryBackoff,
	})
	consumer, err := services.NewKafkaEventConsumer(&services.KafkaEventConfig{
		Context: ctx,
		Logger:  logger,
		Config:  cfg,
		Handler: services.NewEventHandler(logger, reconciler),
	})
	if err != nil {
		logger.Fatal("failed to create kafka consumer", zap.Error(err))
	}
	closeConsumer := consumer.Start()

	// Metrics and health for the scraper and the orchestrator health checks
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "reconciliation-worker"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	osSignal := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", osSignal.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	closeConsumer()
	cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}
	logger.Info("service shutdown completed")
}
