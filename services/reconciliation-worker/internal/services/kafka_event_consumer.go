package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	kafkautils "github.com/nimeshabuddhika/shopsphere-orders/pkg/kafka"
	"github.com/nimeshabuddhika/shopsphere-orders/services/reconciliation-worker/configs"
	"github.com/nimeshabuddhika/shopsphere-orders/services/reconciliation-worker/internal/observability"
	"go.uber.org/zap"
)

// readTimeout bounds each poll so the loop notices shutdown.
const readTimeout = 500 * time.Millisecond

// EventConsumer consumes order events until the returned cleanup func is called.
type EventConsumer interface {
	Start() func()
}

// KafkaEventConfig holds configuration and dependencies for the order event consumer.
type KafkaEventConfig struct {
	Context context.Context
	Logger  *zap.Logger
	Config  *configs.Config
	Handler *EventHandler

	// internal initialization
	consumer    *kafka.Consumer
	commits     *kafkautils.CommitManager
	dlqProducer *kafka.Producer
	sem         chan struct{} // limits concurrent message processing
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewKafkaEventConsumer sets up the consumer with manual commits and an idempotent DLQ producer.
func NewKafkaEventConsumer(cfg *KafkaEventConfig) (EventConsumer, error) {
	kafkaConsumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"group.id":           cfg.Config.KafkaConsumerGroup,
		"auto.offset.reset":  "earliest", // an unreconciled charge must never be skipped
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	dlqProducer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		_ = kafkaConsumer.Close()
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}

	cfg.consumer = kafkaConsumer
	cfg.commits = kafkautils.NewCommitManager(kafkaConsumer, cfg.Logger)
	cfg.dlqProducer = dlqProducer
	cfg.sem = make(chan struct{}, cfg.Config.MaxConcurrentJobs)
	cfg.ctx, cfg.cancel = context.WithCancel(cfg.Context)
	return cfg, nil
}

// Start subscribes and runs the poll loop in a goroutine. The returned func stops polling,
// waits for in-flight messages, flushes the DLQ and closes the consumer.
func (k *KafkaEventConfig) Start() func() {
	if err := k.consumer.SubscribeTopics([]string{k.Config.KafkaTopic}, nil); err != nil {
		k.Logger.Fatal("failed to subscribe to kafka topic", zap.Error(err))
	}
	k.Logger.Info("listening to kafka topic",
		zap.String("topic", k.Config.KafkaTopic),
		zap.String("group", k.Config.KafkaConsumerGroup))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for k.ctx.Err() == nil {
			msg, err := k.consumer.ReadMessage(readTimeout)
			if err != nil {
				var kErr kafka.Error
				if errors.As(err, &kErr) && kErr.IsTimeout() {
					continue
				}
				k.Logger.Error("failed to read kafka message", zap.Error(err))
				continue
			}
			observability.MessagesReceived.WithLabelValues(k.Config.KafkaTopic).Inc()
			k.commits.Track(msg)

			// Acquire semaphore slot, blocking if limit is reached
			k.sem <- struct{}{}
			observability.InflightJobs.Inc()
			k.wg.Add(1)
			go func(m *kafka.Message) {
				defer func() {
					<-k.sem
					observability.InflightJobs.Dec()
					k.wg.Done()
				}()
				k.processMessage(m)
			}(msg)
		}
	}()

	return func() {
		k.cancel()
		<-done
		k.wg.Wait()
		if remaining := k.dlqProducer.Flush(5000); remaining > 0 {
			k.Logger.Warn("DLQ producer closed with undelivered messages", zap.Int("remaining", remaining))
		}
		k.dlqProducer.Close()
		if err := k.consumer.Close(); err != nil {
			k.Logger.Error("failed to close kafka consumer", zap.Error(err))
		}
		k.Logger.Info("kafka consumer closed successfully")
	}
}

// processMessage acks after success or after dead-lettering. A message interrupted by shutdown
// is never acked, which holds its partition's offset so the next assignment redelivers it.
func (k *KafkaEventConfig) processMessage(msg *kafka.Message) {
	start := time.Now()
	defer func() { observability.ProcessLatency.Observe(time.Since(start).Seconds()) }()

	err := k.Handler.Handle(k.ctx, msg.Value)
	var poison *PoisonError
	switch {
	case err == nil:
	case errors.As(err, &poison):
		k.Logger.Error("order event cannot be handled, sending to DLQ",
			zap.String("reason", poison.Reason), zap.Any("offset", msg.TopicPartition.Offset), zap.Error(err))
		if dlqErr := k.sendToDLQ(msg, poison.Reason, err.Error()); dlqErr != nil {
			// Without a DLQ copy the offset must not advance.
			k.Logger.Error("failed to publish to DLQ", zap.Error(dlqErr))
			return
		}
	default:
		k.Logger.Warn("order event left for redelivery", zap.Error(err))
		return
	}

	k.commits.Ack(msg)
}

// sendToDLQ wraps the original message with failure metadata.
func (k *KafkaEventConfig) sendToDLQ(original *kafka.Message, reason, errMsg string) error {
	b, err := json.Marshal(dlqPayload(original, reason, errMsg, time.Now()))
	if err != nil {
		return err
	}
	err = k.dlqProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.Config.KafkaDLQTopic, Partition: kafka.PartitionAny},
		Key:            original.Key,
		Value:          b,
		Headers:        append(original.Headers, kafka.Header{Key: "x-dlq-reason", Value: []byte(reason)}),
	}, nil)
	if err != nil {
		return err
	}
	observability.DLQPublished.WithLabelValues(reason).Inc()
	return nil
}

func dlqPayload(original *kafka.Message, reason, errMsg string, failedAt time.Time) map[string]any {
	topic := ""
	if original.TopicPartition.Topic != nil {
		topic = *original.TopicPartition.Topic
	}
	headers := make(map[string]string, len(original.Headers))
	for _, h := range original.Headers {
		headers[h.Key] = string(h.Value)
	}
	var key any
	if original.Key != nil {
		key = string(original.Key)
	}
	return map[string]any{
		"originalTopic":     topic,
		"originalPartition": original.TopicPartition.Partition,
		"originalOffset":    int64(original.TopicPartition.Offset),
		"key":               key,
		"value":             string(original.Value),
		"headers":           headers,
		"failureReason":     reason,
		"error":             errMsg,
		"failedAt":          failedAt.UTC().Format(time.RFC3339Nano),
	}
}
