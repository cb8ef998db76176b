package domain

import (
	"fmt"
	"time"
)

type InboxMessageStatus string

const (
	InboxStatusProcessing InboxMessageStatus = "PROCESSING"
	InboxStatusProcessed  InboxMessageStatus = "PROCESSED"
	InboxStatusFailed     InboxMessageStatus = "FAILED"
)

// InboxMessage records an inbound command message so a redelivered Kafka
// message is not dispatched twice. Error holds the rejection reason of a
// FAILED message.
type InboxMessage struct {
	ID             string
	KafkaTopic     string
	KafkaPartition int
	KafkaOffset    int64
	ConsumerGroup  string
	CommandType    string
	Payload        []byte
	Status         InboxMessageStatus
	Error          string
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
}

// DeliveryKey identifies one delivery of a message to one consumer group.
func DeliveryKey(topic string, partition int, offset int64, consumerGroup string) string {
	return fmt.Sprintf("%s/%d/%d/%s", topic, partition, offset, consumerGroup)
}

func (m *InboxMessage) DeliveryKey() string {
	return DeliveryKey(m.KafkaTopic, m.KafkaPartition, m.KafkaOffset, m.ConsumerGroup)
}
