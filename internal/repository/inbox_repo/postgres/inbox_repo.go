package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/repository/inbox_repo"
	"ledger/internal/uow"
)

type InboxRepository struct {
	db    *sql.DB
	clock clock.Clock
}

var _ inbox_repo.InboxRepository = (*InboxRepository)(nil)

func NewInboxRepository(db *sql.DB, clk clock.Clock) *InboxRepository {
	return &InboxRepository{db: db, clock: clk}
}

func (r *InboxRepository) CreateMessage(ctx context.Context, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, kafka_topic, kafka_partition, kafka_offset, consumer_group, command_type, payload, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (kafka_topic, kafka_partition, kafka_offset, consumer_group) DO NOTHING
		RETURNING id
	`
	var insertedID string
	err := uow.Querier(ctx, r.db).QueryRowContext(ctx, query,
		msg.ID,
		msg.KafkaTopic,
		msg.KafkaPartition,
		msg.KafkaOffset,
		msg.ConsumerGroup,
		msg.CommandType,
		msg.Payload,
		string(msg.Status),
		msg.ReceivedAt,
	).Scan(&insertedID)
	if err != nil {
		if err == sql.ErrNoRows {
			return inbox_repo.ErrMessageAlreadyProcessed
		}
		return fmt.Errorf("failed to insert inbox message: %w", err)
	}
	return nil
}

func (r *InboxRepository) UpdateStatus(ctx context.Context, id string, status domain.InboxMessageStatus, errText string) error {
	query := `
		UPDATE inbox_messages
		SET status = $1, error = $2, processed_at = $3
		WHERE id = $4
	`
	res, err := uow.Querier(ctx, r.db).ExecContext(ctx, query, string(status), errText, r.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update inbox message status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox message update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", inbox_repo.ErrMessageNotFound, id)
	}
	return nil
}

func (r *InboxRepository) GetByKafkaMetadata(ctx context.Context, topic string, partition int, offset int64, consumerGroup string) (*domain.InboxMessage, error) {
	query := `
		SELECT id, kafka_topic, kafka_partition, kafka_offset, consumer_group, command_type, payload, status, error, received_at, processed_at
		FROM inbox_messages
		WHERE kafka_topic = $1 AND kafka_partition = $2 AND kafka_offset = $3 AND consumer_group = $4
	`
	msg := &domain.InboxMessage{}
	var status string
	var errText sql.NullString
	var processedAt sql.NullTime
	err := uow.Querier(ctx, r.db).QueryRowContext(ctx, query, topic, partition, offset, consumerGroup).Scan(
		&msg.ID,
		&msg.KafkaTopic,
		&msg.KafkaPartition,
		&msg.KafkaOffset,
		&msg.ConsumerGroup,
		&msg.CommandType,
		&msg.Payload,
		&status,
		&errText,
		&msg.ReceivedAt,
		&processedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, inbox_repo.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get inbox message by kafka metadata: %w", err)
	}
	msg.Status = domain.InboxMessageStatus(status)
	msg.Error = errText.String
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Time
	}
	return msg, nil
}
