package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/database"
	kafkautils "github.com/nimeshabuddhika/shopsphere-orders/pkg/kafka"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/repositories"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/views"
	"github.com/nimeshabuddhika/shopsphere-orders/services/reconciliation-worker/configs"
	"github.com/nimeshabuddhika/shopsphere-orders/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TestKafkaEventConsumer_RecordsAndDeadLetters runs the consumer against real Kafka and Postgres:
// an unreconciled charge lands in charge_reconciliations and an undecodable message lands in the DLQ.
func TestKafkaEventConsumer_RecordsAndDeadLetters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	var (
		bootstrap, dsn string
		g              errgroup.Group
	)
	g.Go(func() error {
		b, terminate, err := tests.StartKafkaForTests()
		if err == nil {
			bootstrap = b
			t.Cleanup(terminate)
		}
		return err
	})
	g.Go(func() error {
		d, terminate, err := tests.StartPostgresForTests()
		if err == nil {
			dsn = d
			t.Cleanup(terminate)
		}
		return err
	})
	require.NoError(t, g.Wait())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := zap.NewNop()

	require.NoError(t, database.RunMigrations(logger, dsn))
	db, closeDB, err := database.New(ctx, logger, database.Config{PrimaryDSN: dsn, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(closeDB)

	cfg := &configs.Config{
		KafkaBrokers:       bootstrap,
		KafkaTopic:         "order-events",
		KafkaDLQTopic:      "order-events-dlq",
		KafkaConsumerGroup: "reconciliation-" + uuid.NewString(),
		KafkaPartition:     1,
		MaxConcurrentJobs:  2,
		MaxRetryCount:      2,
		RetryBaseBackoff:   10 * time.Millisecond,
		MaxRetryBackoff:    50 * time.Millisecond,
	}
	require.NoError(t, kafkautils.InitKafkaTopics(ctx, logger, kafkautils.KafkaConfig{
		BootstrapServers: bootstrap,
		Topics: []kafkautils.TopicConfig{
			{Topic: cfg.KafkaTopic, NumPartitions: 1, ReplicationFactor: 1},
			{Topic: cfg.KafkaDLQTopic, NumPartitions: 1, ReplicationFactor: 1},
		},
	}))

	repo := repositories.NewReconciliationRepository()
	reconciler := NewReconciliationService(ReconciliationServiceConf{
		Logger: logger, DB: db, Repo: repo,
		MaxRetries: cfg.MaxRetryCount, BaseBackoff: cfg.RetryBaseBackoff, MaxBackoff: cfg.MaxRetryBackoff,
	})
	consumer, err := NewKafkaEventConsumer(&KafkaEventConfig{
		Context: ctx,
		Logger:  logger,
		Config:  cfg,
		Handler: NewEventHandler(logger, reconciler),
	})
	require.NoError(t, err)
	stop := consumer.Start()
	t.Cleanup(stop)

	producer, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": bootstrap})
	require.NoError(t, err)
	t.Cleanup(producer.Close)

	charge := views.OrderEvent{
		Type:           views.OrderEventChargeUnreconciled,
		UserID:         7,
		Total:          73000,
		IdempotencyKey: uuid.NewString(),
		TransactionID:  "tx_1",
		TraceID:        "trace-1",
		OccurredAt:     time.Now().UTC(),
	}
	created := charge
	created.Type = views.OrderEventCreated
	created.OrderID = 1
	created.IdempotencyKey = uuid.NewString()

	produce := func(value []byte) {
		require.NoError(t, producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &cfg.KafkaTopic, Partition: kafka.PartitionAny},
			Key:            []byte("7"),
			Value:          value,
		}, nil))
	}
	for _, e := range []views.OrderEvent{created, charge, charge} {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		produce(b)
	}
	produce([]byte(`{not json`))
	producer.Flush(10_000)

	key := uuid.MustParse(charge.IdempotencyKey)
	require.Eventually(t, func() bool {
		_, err := repo.FindByIdempotencyKey(ctx, db, key)
		return err == nil
	}, 60*time.Second, 250*time.Millisecond)

	rec, err := repo.FindByIdempotencyKey(ctx, db, key)
	require.NoError(t, err)
	assert.Equal(t, models.ReconciliationPending, rec.Status)
	assert.Equal(t, int64(73000), rec.Amount)
	assert.Equal(t, "tx_1", rec.TransactionID)

	var rows int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM charge_reconciliations`).Scan(&rows))
	assert.Equal(t, 1, rows)

	dlqReader, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrap,
		"group.id":          uuid.NewString(),
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dlqReader.Close() })
	require.NoError(t, dlqReader.SubscribeTopics([]string{cfg.KafkaDLQTopic}, nil))

	var payload map[string]any
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) && payload == nil {
		msg, err := dlqReader.ReadMessage(time.Second)
		if err != nil {
			continue
		}
		require.NoError(t, json.Unmarshal(msg.Value, &payload))
	}
	require.NotNil(t, payload, "expected a DLQ message")
	assert.Equal(t, ReasonDecode, payload["failureReason"])
	assert.Equal(t, cfg.KafkaTopic, payload["originalTopic"])
	assert.Equal(t, `{not json`, payload["value"])
}
