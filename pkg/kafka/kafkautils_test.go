package kafkautils

import (
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
)

func TestPartitionFor(t *testing.T) {
	assert.Equal(t, int32(1), PartitionFor(7, 3))
	assert.Equal(t, int32(0), PartitionFor(9, 3))
	// same user, same partition
	assert.Equal(t, PartitionFor(12345, 4), PartitionFor(12345, 4))
	assert.Equal(t, int32(kafka.PartitionAny), PartitionFor(7, 0))
}
