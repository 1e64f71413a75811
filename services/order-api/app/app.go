package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/cache"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/database"
	middleware "github.com/nimeshabuddhika/shopsphere-orders/pkg/middlewares"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/repositories"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/utils"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/configs"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/clients"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/handlers"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dispatcherDrainTimeout = 5 * time.Second

// NewApp wires dependencies, builds the Gin engine, and returns an *http.Server and a cleanup func.
// It reads configuration from environment variables via configs.Load.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	// Cleanups run in reverse order of acquisition.
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*http.Server, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Postgres
	db, disconnect, err := database.New(ctx, logger, database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReplicaDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	})
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, disconnect)

	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		return fail(err)
	}

	// Redis (optional): per-user checkout lock and distributed rate limit
	var redisClient *redis.Client
	var checkoutLock cache.CheckoutLock = cache.NoopCheckoutLock{}
	if cfg.RedisEnabled() {
		client, closeRedis, err := cache.New(ctx, cache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		closers = append(closers, closeRedis)
		redisClient = client
		checkoutLock = cache.NewRedisCheckoutLock(client, "order-api:checkout-lock", cfg.CheckoutLockTTL)
		logger.Info("redis checkout lock enabled", zap.Duration("ttl", cfg.CheckoutLockTTL))
	}
	limiter := pkg.NewCheckoutLimiter(redisClient, "order-api:checkout-rate", cfg.CheckoutRatePerSec, cfg.CheckoutRateBurst, cfg.CheckoutRateWindow, logger)

	// Kafka (optional): order events
	var publisher services.OrderEventPublisher = services.NoopOrderEventPublisher{}
	if cfg.KafkaEnabled() {
		kafkaPublisher, err := services.NewKafkaOrderEventPublisher(ctx, logger, services.KafkaEventPublisherConf{
			Brokers:    cfg.KafkaBrokers,
			Topic:      cfg.KafkaTopic,
			Partitions: cfg.KafkaPartition,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, kafkaPublisher.Close)
		publisher = kafkaPublisher
	}

	// Collaborators, each with its own address and transport
	httpClient := utils.NewHTTPClient(
		utils.WithClientTimeout(cfg.ClientTimeout),
		utils.WithResponseHeaderTimeout(cfg.ClientTimeout),
	)
	// A slow settlement must not be cut off by the default header timeout.
	paymentHTTPClient := utils.NewHTTPClient(
		utils.WithClientTimeout(cfg.PaymentTimeout),
		utils.WithResponseHeaderTimeout(cfg.PaymentTimeout),
	)
	cartClient := clients.NewCartClient(cfg.CartServiceURL, httpClient)
	catalogClient := clients.NewCatalogClient(cfg.CatalogServiceURL, httpClient)
	paymentClient := clients.NewPaymentClient(cfg.PaymentServiceURL, paymentHTTPClient)
	notificationClient := clients.NewNotificationClient(cfg.NotificationServiceURL, httpClient)

	dispatcher := services.NewNotificationDispatcher(services.NotificationDispatcherConf{
		Logger:      logger,
		Client:      notificationClient,
		Workers:     cfg.NotifyWorkers,
		QueueSize:   cfg.NotifyQueueSize,
		MaxAttempts: cfg.NotifyMaxAttempts,
		BaseBackoff: cfg.NotifyBaseBackoff,
		MaxBackoff:  cfg.NotifyMaxBackoff,
	})
	dispatcher.Start(ctx)
	closers = append(closers, func() {
		dctx, cancel := context.WithTimeout(context.Background(), dispatcherDrainTimeout)
		defer cancel()
		_ = dispatcher.Close(dctx)
	})

	orderService := services.NewOrderService(services.OrderServiceConf{
		Logger:    logger,
		DB:        db,
		OrderRepo: repositories.NewOrderRepository(),
		Cart:      cartClient,
		Catalog:   catalogClient,
		Payment:   paymentClient,
		Notifier:  dispatcher,
		Events:    publisher,
		Lock:      checkoutLock,
	})
	baseHandler := handlers.NewBaseHandler(logger)
	orderHandler := handlers.NewOrderHandler(logger, orderService)

	// Router
	r := gin.Default()
	if len(cfg.CorsAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CorsAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", pkg.HeaderUserId, pkg.HeaderTraceId},
			ExposeHeaders:    []string{pkg.HeaderTraceId},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	api.Use(middleware.Metrics())
	api.Use(middleware.RequireUser(logger))

	orderHandler.RegisterRoutes(api, middleware.CheckoutRateLimit(logger, limiter))
	baseHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv, cleanup, nil
}
