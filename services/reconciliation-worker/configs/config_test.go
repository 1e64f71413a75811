package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_PRIMARY_DB_ADDR", "postgres://u:p@localhost:5432/orders?sslmode=disable")
	t.Setenv("APP_KAFKA_BROKERS", "localhost:9092")

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.Equal(t, "order-events", cfg.KafkaTopic)
	assert.Equal(t, "order-events-dlq", cfg.KafkaDLQTopic)
	assert.Equal(t, "reconciliation-worker", cfg.KafkaConsumerGroup)
	assert.Equal(t, 3, cfg.MaxRetryCount)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryBaseBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxRetryBackoff)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("APP_PRIMARY_DB_ADDR", "postgres://u:p@localhost:5432/orders?sslmode=disable")
	t.Setenv("APP_KAFKA_BROKERS", "localhost:9092")
	t.Setenv("APP_KAFKA_DLQ_TOPIC", "order-events")
	t.Setenv("APP_MAX_RETRY_BACKOFF", "1ms")

	_, err := Load(zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_DLQ_TOPIC (nefield)")
	assert.Contains(t, err.Error(), "MAX_RETRY_BACKOFF (gtefield)")
}
