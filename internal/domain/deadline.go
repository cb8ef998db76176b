package domain

import (
	"time"

	"github.com/google/uuid"
)

const TriggerScheduledPaymentDeadline = "TRIGGER_SCHEDULED_PAYMENT_DEADLINE"

const deadlineGreeting = "Hello from the other side!"

type DeadlinePayload struct {
	Message           string    `json:"message"`
	SettlementInstant time.Time `json:"settlementInstant"`
}

func NewSettlementDeadlinePayload(instant time.Time) DeadlinePayload {
	return DeadlinePayload{Message: deadlineGreeting, SettlementInstant: instant}
}

// Deadline is a pending one-shot timer owned by an aggregate.
type Deadline struct {
	Token       string
	Name        string
	AggregateID uuid.UUID
	DueAt       time.Time
	Payload     []byte
	CreatedAt   time.Time
}
