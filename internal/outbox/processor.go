package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledger/internal/domain"
	kafkaInfra "ledger/internal/infrastructure/kafka"
)

// ProcessorName is the tracking processor that relays committed events.
const ProcessorName = "kafka-event-relay"

// EventMessage is the wire shape of a relayed event.
type EventMessage struct {
	EventID    uuid.UUID       `json:"eventId"`
	StreamID   string          `json:"streamId"`
	StreamType string          `json:"streamType"`
	Version    int64           `json:"version"`
	Position   int64           `json:"position"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Relay publishes every committed event to Kafka. The event log itself is the
// outbox: the tracking token only advances once the broker acknowledged.
type Relay struct {
	kafkaProducer kafkaInfra.Producer
	topic         string
	logger        *zap.Logger
}

func NewRelay(kafkaProducer kafkaInfra.Producer, topic string, logger *zap.Logger) *Relay {
	return &Relay{kafkaProducer: kafkaProducer, topic: topic, logger: logger}
}

func PrepareEventPayload(rec domain.EventRecord) ([]byte, error) {
	return json.Marshal(EventMessage{
		EventID:    rec.ID,
		StreamID:   rec.StreamID,
		StreamType: rec.StreamType,
		Version:    rec.Version,
		Position:   rec.Position,
		Type:       rec.Type,
		Payload:    rec.Payload,
		RecordedAt: rec.RecordedAt,
	})
}

func (r *Relay) Handle(ctx context.Context, env domain.Envelope) error {
	rec := env.Record
	payload, err := PrepareEventPayload(rec)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", rec.ID, err)
	}

	if err := r.kafkaProducer.Produce(ctx, rec.StreamID, r.topic, payload); err != nil {
		r.logger.Error("Failed to relay event to Kafka",
			zap.String("event_id", rec.ID.String()),
			zap.String("topic", r.topic),
			zap.Int64("position", rec.Position),
			zap.Error(err))
		return err
	}
	r.logger.Debug("Event relayed to Kafka",
		zap.String("event_id", rec.ID.String()),
		zap.String("event_type", rec.Type),
		zap.Int64("position", rec.Position))
	return nil
}
