package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Port          string `mapstructure:"PORT" validate:"required"`
	PrimaryDbAddr string `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReplicaDbAddr string `mapstructure:"REPLICA_DB_ADDR"`
	MaxDbCons     int32  `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons     int32  `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1,ltefield=MaxDbCons"`

	// Collaborators
	CartServiceURL         string        `mapstructure:"CART_SERVICE_URL" validate:"required,url"`
	CatalogServiceURL      string        `mapstructure:"CATALOG_SERVICE_URL" validate:"required,url"`
	PaymentServiceURL      string        `mapstructure:"PAYMENT_SERVICE_URL" validate:"required,url"`
	NotificationServiceURL string        `mapstructure:"NOTIFICATION_SERVICE_URL" validate:"required,url"`
	ClientTimeout          time.Duration `mapstructure:"CLIENT_TIMEOUT" validate:"gt=0"`
	PaymentTimeout         time.Duration `mapstructure:"PAYMENT_TIMEOUT" validate:"gt=0"`

	// Notification dispatcher
	NotifyWorkers     int           `mapstructure:"NOTIFY_WORKERS" validate:"min=1"`
	NotifyQueueSize   int           `mapstructure:"NOTIFY_QUEUE_SIZE" validate:"min=1"`
	NotifyMaxAttempts int           `mapstructure:"NOTIFY_MAX_ATTEMPTS" validate:"min=1,max=10"`
	NotifyBaseBackoff time.Duration `mapstructure:"NOTIFY_BASE_BACKOFF" validate:"gt=0"`
	NotifyMaxBackoff  time.Duration `mapstructure:"NOTIFY_MAX_BACKOFF" validate:"gtefield=NotifyBaseBackoff"`

	// Redis is optional; it enables the checkout lock and the distributed rate limit.
	RedisAddr          string        `mapstructure:"REDIS_ADDR"`
	RedisPassword      string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int           `mapstructure:"REDIS_DB" validate:"min=0"`
	CheckoutLockTTL    time.Duration `mapstructure:"CHECKOUT_LOCK_TTL" validate:"gt=0"`
	CheckoutRatePerSec int           `mapstructure:"CHECKOUT_RATE_PER_SEC" validate:"min=0"`
	CheckoutRateBurst  int           `mapstructure:"CHECKOUT_RATE_BURST" validate:"min=1"`
	CheckoutRateWindow time.Duration `mapstructure:"CHECKOUT_RATE_WINDOW" validate:"gt=0"`

	// Kafka is optional; empty brokers disable order events.
	KafkaBrokers   string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic     string `mapstructure:"KAFKA_TOPIC" validate:"required_with=KafkaBrokers"`
	KafkaPartition int32  `mapstructure:"KAFKA_PARTITION" validate:"min=1"`

	CorsAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS" validate:"dive,url"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("CLIENT_TIMEOUT", "2s")
	viper.SetDefault("PAYMENT_TIMEOUT", "5s")
	viper.SetDefault("NOTIFY_WORKERS", "2")
	viper.SetDefault("NOTIFY_QUEUE_SIZE", "256")
	viper.SetDefault("NOTIFY_MAX_ATTEMPTS", "3")
	viper.SetDefault("NOTIFY_BASE_BACKOFF", "200ms")
	viper.SetDefault("NOTIFY_MAX_BACKOFF", "2s")
	viper.SetDefault("REDIS_DB", "0")
	viper.SetDefault("CHECKOUT_LOCK_TTL", "30s")
	viper.SetDefault("CHECKOUT_RATE_PER_SEC", "0")
	viper.SetDefault("CHECKOUT_RATE_BURST", "5")
	viper.SetDefault("CHECKOUT_RATE_WINDOW", "1m")
	viper.SetDefault("KAFKA_TOPIC", "order-events")
	viper.SetDefault("KAFKA_PARTITION", "3")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")

	// Optional: per-mode yaml overrides
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running in test mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running in development mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/order-api/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}

// RedisEnabled reports whether the optional Redis features are configured.
func (c *Config) RedisEnabled() bool {
	return !utils.IsEmpty(c.RedisAddr)
}

// KafkaEnabled reports whether order events are published.
func (c *Config) KafkaEnabled() bool {
	return !utils.IsEmpty(c.KafkaBrokers)
}
