package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for reconciliation-worker.
type Config struct {
	MetricsAddr        string        `mapstructure:"METRICS_ADDR" validate:"required"`
	PrimaryDbAddr      string        `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	MaxDbCons          int32         `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons          int32         `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1,ltefield=MaxDbCons"`
	KafkaBrokers       string        `mapstructure:"KAFKA_BROKERS" validate:"required"`
	KafkaTopic         string        `mapstructure:"KAFKA_TOPIC" validate:"required"`
	KafkaDLQTopic      string        `mapstructure:"KAFKA_DLQ_TOPIC" validate:"required,nefield=KafkaTopic"`
	KafkaConsumerGroup string        `mapstructure:"KAFKA_CONSUMER_GROUP" validate:"required"`
	KafkaPartition     int32         `mapstructure:"KAFKA_PARTITION" validate:"min=1"`
	MaxConcurrentJobs  int           `mapstructure:"MAX_CONCURRENT_JOBS" validate:"min=1"`
	MaxRetryCount      int           `mapstructure:"MAX_RETRY_COUNT" validate:"min=1,max=10"`
	RetryBaseBackoff   time.Duration `mapstructure:"RETRY_BASE_BACKOFF" validate:"gt=0"`
	MaxRetryBackoff    time.Duration `mapstructure:"MAX_RETRY_BACKOFF" validate:"gtefield=RetryBaseBackoff"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("METRICS_ADDR", ":9102")
	viper.SetDefault("MAX_DB_CONNECTIONS", "4")
	viper.SetDefault("MIN_DB_CONNECTIONS", "1")
	viper.SetDefault("KAFKA_TOPIC", "order-events")
	viper.SetDefault("KAFKA_DLQ_TOPIC", "order-events-dlq")
	viper.SetDefault("KAFKA_CONSUMER_GROUP", "reconciliation-worker")
	viper.SetDefault("KAFKA_PARTITION", "3")
	viper.SetDefault("MAX_CONCURRENT_JOBS", "4")
	viper.SetDefault("MAX_RETRY_COUNT", "3")
	viper.SetDefault("RETRY_BASE_BACKOFF", "200ms")
	viper.SetDefault("MAX_RETRY_BACKOFF", "5s")

	// Optional: Read from config.yaml if exists
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
	viper.AddConfigPath("./services/reconciliation-worker/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}

	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
