package inbox_repo

import (
	"context"
	"errors"

	"ledger/internal/domain"
)

type InboxRepository interface {
	// CreateMessage claims a Kafka message. It fails with
	// ErrMessageAlreadyProcessed when the same topic, partition, offset and
	// consumer group were recorded before.
	CreateMessage(ctx context.Context, msg *domain.InboxMessage) error
	UpdateStatus(ctx context.Context, id string, status domain.InboxMessageStatus, errText string) error
	GetByKafkaMetadata(ctx context.Context, topic string, partition int, offset int64, consumerGroup string) (*domain.InboxMessage, error)
}

var (
	ErrMessageAlreadyProcessed = errors.New("inbox message already processed")
	ErrMessageNotFound         = errors.New("inbox message not found")
)
