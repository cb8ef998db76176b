package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"ledger/internal/clock"
	"ledger/internal/command"
	"ledger/internal/domain"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/repository/inbox_repo"
	"ledger/internal/uow"
)

// CommandMessage is the envelope other services publish on the commands topic.
type CommandMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type CommandConsumerDeps struct {
	Dispatcher    command.Dispatcher
	Inbox         inbox_repo.InboxRepository
	Units         *uow.Manager
	Clock         clock.Clock
	ConsumerGroup string
}

// CommandMessageHandler dispatches inbound commands at most once per Kafka
// message. Domain rejections are recorded and committed. Infrastructure
// errors are returned so the offset is not committed.
func CommandMessageHandler(deps CommandConsumerDeps, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		fields := []zap.Field{
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		}

		var envelope CommandMessage
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			logger.Error("Failed to unmarshal command message", append(fields, zap.ByteString("value", msg.Value), zap.Error(err))...)
			return recordFailure(ctx, deps, msg, "", fmt.Errorf("%w: malformed command message: %v", domain.ErrValidation, err), logger)
		}
		fields = append(fields, zap.String("command", envelope.Type))

		row := newInboxMessage(deps, msg, envelope.Type, domain.InboxStatusProcessing)
		err := deps.Units.Do(ctx, func(ctx context.Context) error {
			if err := deps.Inbox.CreateMessage(ctx, row); err != nil {
				return err
			}
			cmd, err := domain.DecodeCommand(envelope.Type, envelope.Payload)
			if err != nil {
				return err
			}
			if err := deps.Dispatcher.SendAndWait(ctx, cmd); err != nil {
				return err
			}
			return deps.Inbox.UpdateStatus(ctx, row.ID, domain.InboxStatusProcessed, "")
		})

		switch {
		case err == nil:
			logger.Info("Command message processed", fields...)
			return nil
		case errors.Is(err, inbox_repo.ErrMessageAlreadyProcessed):
			logger.Info("Command message already processed, skipping", fields...)
			return nil
		case domain.IsRejection(err):
			logger.Warn("Command message rejected", append(fields, zap.Error(err))...)
			return recordFailure(ctx, deps, msg, envelope.Type, err, logger)
		default:
			return fmt.Errorf("failed to process %s command message: %w", envelope.Type, err)
		}
	}
}

func newInboxMessage(deps CommandConsumerDeps, msg kafka.Message, commandType string, status domain.InboxMessageStatus) *domain.InboxMessage {
	return &domain.InboxMessage{
		ID:             uuid.NewString(),
		KafkaTopic:     msg.Topic,
		KafkaPartition: msg.Partition,
		KafkaOffset:    msg.Offset,
		ConsumerGroup:  deps.ConsumerGroup,
		CommandType:    commandType,
		Payload:        msg.Value,
		Status:         status,
		ReceivedAt:     deps.Clock.Now().UTC().Truncate(time.Microsecond),
	}
}

// recordFailure stores a FAILED inbox row in its own unit of work, after the
// rejected one rolled back.
func recordFailure(ctx context.Context, deps CommandConsumerDeps, msg kafka.Message, commandType string, cause error, logger *zap.Logger) error {
	row := newInboxMessage(deps, msg, commandType, domain.InboxStatusFailed)
	err := deps.Units.Do(ctx, func(ctx context.Context) error {
		if err := deps.Inbox.CreateMessage(ctx, row); err != nil {
			return err
		}
		return deps.Inbox.UpdateStatus(ctx, row.ID, domain.InboxStatusFailed, cause.Error())
	})
	if errors.Is(err, inbox_repo.ErrMessageAlreadyProcessed) {
		return nil
	}
	if err != nil {
		logger.Error("Failed to record rejected command message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return fmt.Errorf("failed to record rejected command message: %w", err)
	}
	return nil
}
