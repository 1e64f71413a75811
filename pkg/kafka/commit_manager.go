package kafkautils

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// OffsetCommitter is the part of *kafka.Consumer the CommitManager needs.
type OffsetCommitter interface {
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
}

type tp struct {
	topic     string
	partition int32
}

type partitionState struct {
	queue []int64            // tracked offsets in read order
	done  map[int64]struct{} // acked offsets still behind an unfinished one
}

// CommitManager commits offsets of concurrently processed messages in order: a partition's
// offset only advances past messages that have all been acked.
type CommitManager struct {
	mu        sync.Mutex
	parts     map[tp]*partitionState
	committer OffsetCommitter
	log       *zap.Logger
}

func NewCommitManager(c OffsetCommitter, l *zap.Logger) *CommitManager {
	return &CommitManager{
		parts:     make(map[tp]*partitionState),
		committer: c,
		log:       l,
	}
}

// Track registers a message as in flight. It must be called from the poll loop, in read order.
func (m *CommitManager) Track(msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, off := keyOf(msg), int64(msg.TopicPartition.Offset)
	st := m.parts[key]
	// A rebalance rewinds to the committed offset; earlier state for the partition is stale.
	if st == nil || (len(st.queue) > 0 && off <= st.queue[len(st.queue)-1]) {
		st = &partitionState{done: map[int64]struct{}{}}
		m.parts[key] = st
	}
	st.queue = append(st.queue, off)
}

// Ack marks a tracked message as processed and commits the highest contiguous offset.
// It reports whether an offset was committed.
func (m *CommitManager) Ack(msg *kafka.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, off := keyOf(msg), int64(msg.TopicPartition.Offset)
	st := m.parts[key]
	if st == nil {
		return false
	}
	st.done[off] = struct{}{}

	next := int64(-1)
	for len(st.queue) > 0 {
		if _, ok := st.done[st.queue[0]]; !ok {
			break
		}
		next = st.queue[0]
		delete(st.done, next)
		st.queue = st.queue[1:]
	}
	if next < 0 {
		return false
	}

	toCommit := kafka.TopicPartition{Topic: &key.topic, Partition: key.partition, Offset: kafka.Offset(next + 1)}
	if _, err := m.committer.CommitOffsets([]kafka.TopicPartition{toCommit}); err != nil {
		// The next successful commit on this partition covers these offsets too.
		m.log.Error("offset_commit_failed",
			zap.String("topic", key.topic),
			zap.Int32("partition", key.partition),
			zap.Int64("attempted_offset", next+1), zap.Error(err))
		return false
	}
	m.log.Debug("offset_committed",
		zap.String("topic", key.topic),
		zap.Int32("partition", key.partition),
		zap.Int64("offset", next+1))
	return true
}

func keyOf(msg *kafka.Message) tp {
	topic := ""
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}
	return tp{topic: topic, partition: msg.TopicPartition.Partition}
}
