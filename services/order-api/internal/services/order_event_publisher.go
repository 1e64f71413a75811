package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	kafkautils "github.com/nimeshabuddhika/shopsphere-orders/pkg/kafka"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/views"
	"go.uber.org/zap"
)

// OrderEventPublisher emits order lifecycle events for downstream consumers (reconciliation,
// analytics). Publishing is asynchronous and never fails a checkout.
type OrderEventPublisher interface {
	Publish(event views.OrderEvent)
	Close()
}

type KafkaEventPublisherConf struct {
	Brokers    string
	Topic      string
	Partitions int32
}

type KafkaOrderEventPublisher struct {
	logger   *zap.Logger
	producer *kafka.Producer
	conf     KafkaEventPublisherConf
}

// NewKafkaOrderEventPublisher makes sure the topic exists and creates an idempotent producer.
func NewKafkaOrderEventPublisher(ctx context.Context, logger *zap.Logger, conf KafkaEventPublisherConf) (*KafkaOrderEventPublisher, error) {
	topicConfig := kafkautils.KafkaConfig{
		BootstrapServers: conf.Brokers,
		Topics: []kafkautils.TopicConfig{
			{
				Topic:             conf.Topic,
				NumPartitions:     int(conf.Partitions),
				ReplicationFactor: 1,
				Config:            map[string]string{"cleanup.policy": "delete"},
			},
		},
	}
	if err := kafkautils.InitKafkaTopics(ctx, logger, topicConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize kafka topics: %w", err)
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  conf.Brokers,
		"acks":               "all",
		"enable.idempotence": "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	logger.Info("kafka producer created successfully", zap.String("brokers", conf.Brokers), zap.String("topic", conf.Topic))
	go handleDeliveryReports(logger, p)

	return &KafkaOrderEventPublisher{logger: logger, producer: p, conf: conf}, nil
}

func (k *KafkaOrderEventPublisher) Publish(event views.OrderEvent) {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		k.logger.Error("failed to encode order event", zap.String(pkg.TraceId, event.TraceID), zap.Error(err))
		return
	}

	// Keyed and partitioned by user so one user's events stay ordered.
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.conf.Topic,
			Partition: kafkautils.PartitionFor(event.UserID, k.conf.Partitions),
		},
		Key:   []byte(strconv.FormatInt(event.UserID, 10)),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
			{Key: pkg.HeaderTraceId, Value: []byte(event.TraceID)},
		},
	}, nil)
	if err != nil {
		k.logger.Error("failed to publish order event",
			zap.String(pkg.TraceId, event.TraceID), zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// Close flushes pending messages for up to five seconds.
func (k *KafkaOrderEventPublisher) Close() {
	if remaining := k.producer.Flush(5000); remaining > 0 {
		k.logger.Warn("kafka producer closed with undelivered events", zap.Int("remaining", remaining))
	}
	k.producer.Close()
}

func handleDeliveryReports(logger *zap.Logger, p *kafka.Producer) {
	for e := range p.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				logger.Error("failed to deliver order event", zap.Error(ev.TopicPartition.Error))
			}
		case kafka.Error:
			logger.Warn("kafka producer error", zap.Error(ev))
		}
	}
}

// NoopOrderEventPublisher is used when no brokers are configured.
type NoopOrderEventPublisher struct{}

func (NoopOrderEventPublisher) Publish(views.OrderEvent) {}
func (NoopOrderEventPublisher) Close()                   {}
