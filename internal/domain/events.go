package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a fact emitted by an aggregate and appended to its stream.
type Event interface {
	EventType() string
}

const (
	EventAccountCreated            = "AccountCreated"
	EventAccountCredited           = "AccountCredited"
	EventAccountDebited            = "AccountDebited"
	EventPaymentCreated            = "PaymentCreated"
	EventSettlementTriggered       = "SettlementTriggered"
	EventPaymentCompleted          = "PaymentCompleted"
	EventPaymentFailed             = "PaymentFailed"
	EventScheduledPaymentCancelled = "ScheduledPaymentCancelled"
)

type AccountCreated struct {
	AccountID      uuid.UUID `json:"accountId"`
	EmailAddress   string    `json:"emailAddress"`
	OpeningBalance int64     `json:"openingBalance"`
}

func (AccountCreated) EventType() string { return EventAccountCreated }

type AccountCredited struct {
	AccountID uuid.UUID `json:"accountId"`
	PaymentID uuid.UUID `json:"paymentId"`
	Amount    int64     `json:"amount"`
}

func (AccountCredited) EventType() string { return EventAccountCredited }

type AccountDebited struct {
	AccountID uuid.UUID `json:"accountId"`
	PaymentID uuid.UUID `json:"paymentId"`
	Amount    int64     `json:"amount"`
}

func (AccountDebited) EventType() string { return EventAccountDebited }

type PaymentCreated struct {
	PaymentID                uuid.UUID     `json:"paymentId"`
	SourceAccountID          uuid.UUID     `json:"sourceAccountId"`
	DestinationAccountID     uuid.UUID     `json:"destinationAccountId"`
	Amount                   int64         `json:"amount"`
	Status                   PaymentStatus `json:"status"`
	Kind                     PaymentKind   `json:"kind"`
	SettlementInitiationTime time.Time     `json:"settlementInitiationTime"`
	DeadlineToken            string        `json:"deadlineToken,omitempty"`
}

func (PaymentCreated) EventType() string { return EventPaymentCreated }

// SettlementTriggered starts the settlement saga. TriggerID is fresh for every
// emission.
type SettlementTriggered struct {
	PaymentID            uuid.UUID `json:"paymentId"`
	SourceAccountID      uuid.UUID `json:"sourceAccountId"`
	DestinationAccountID uuid.UUID `json:"destinationAccountId"`
	Amount               int64     `json:"amount"`
	SettlementInstant    time.Time `json:"settlementInstant"`
	TriggerID            uuid.UUID `json:"triggerId"`
}

func (SettlementTriggered) EventType() string { return EventSettlementTriggered }

type PaymentCompleted struct {
	PaymentID uuid.UUID `json:"paymentId"`
}

func (PaymentCompleted) EventType() string { return EventPaymentCompleted }

type PaymentFailed struct {
	PaymentID uuid.UUID `json:"paymentId"`
}

func (PaymentFailed) EventType() string { return EventPaymentFailed }

type ScheduledPaymentCancelled struct {
	PaymentID     uuid.UUID `json:"paymentId"`
	DeadlineToken string    `json:"deadlineToken,omitempty"`
}

func (ScheduledPaymentCancelled) EventType() string { return EventScheduledPaymentCancelled }

var eventRegistry = map[string]func() Event{
	EventAccountCreated:            func() Event { return &AccountCreated{} },
	EventAccountCredited:           func() Event { return &AccountCredited{} },
	EventAccountDebited:            func() Event { return &AccountDebited{} },
	EventPaymentCreated:            func() Event { return &PaymentCreated{} },
	EventSettlementTriggered:       func() Event { return &SettlementTriggered{} },
	EventPaymentCompleted:          func() Event { return &PaymentCompleted{} },
	EventPaymentFailed:             func() Event { return &PaymentFailed{} },
	EventScheduledPaymentCancelled: func() Event { return &ScheduledPaymentCancelled{} },
}

// EncodeEvent serializes an event payload for storage.
func EncodeEvent(e Event) ([]byte, error) {
	if _, ok := eventRegistry[e.EventType()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, e.EventType())
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", e.EventType(), err)
	}
	return payload, nil
}

// DecodeEvent returns the event value (not a pointer) stored under eventType.
func DecodeEvent(eventType string, payload []byte) (Event, error) {
	newEvent, ok := eventRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	target := newEvent()
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	return deref(target), nil
}

func deref(e Event) Event {
	switch ev := e.(type) {
	case *AccountCreated:
		return *ev
	case *AccountCredited:
		return *ev
	case *AccountDebited:
		return *ev
	case *PaymentCreated:
		return *ev
	case *SettlementTriggered:
		return *ev
	case *PaymentCompleted:
		return *ev
	case *PaymentFailed:
		return *ev
	case *ScheduledPaymentCancelled:
		return *ev
	}
	return e
}
