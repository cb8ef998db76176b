package domain

import (
	"time"

	"github.com/google/uuid"
)

const PaymentStreamType = "payment"

type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "CREATED"
	PaymentStatusInProgress PaymentStatus = "IN_PROGRESS"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
)

type PaymentKind string

const (
	PaymentKindImmediate PaymentKind = "IMMEDIATE"
	PaymentKindScheduled PaymentKind = "SCHEDULED"
)

// Schedule is the scheduled variant's payload.
type Schedule struct {
	SettlementInstant time.Time `json:"settlementInstant"`
	DeadlineToken     string    `json:"deadlineToken"`
}

// Payment is the shared state of both payment variants. Schedule is nil for
// immediate payments.
type Payment struct {
	ID                       uuid.UUID     `json:"paymentId"`
	SourceAccountID          uuid.UUID     `json:"sourceAccountId"`
	DestinationAccountID     uuid.UUID     `json:"destinationAccountId"`
	Amount                   int64         `json:"amount"`
	Status                   PaymentStatus `json:"status"`
	Kind                     PaymentKind   `json:"kind"`
	SettlementInitiationTime time.Time     `json:"settlementInitiationTime"`
	Schedule                 *Schedule     `json:"schedule,omitempty"`
}

func NewPayment(id uuid.UUID) *Payment {
	return &Payment{ID: id}
}

func (p *Payment) Exists() bool {
	return p.Status != ""
}

func (p *Payment) Terminal() bool {
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

func (p *Payment) Apply(e Event) {
	switch ev := e.(type) {
	case PaymentCreated:
		p.ID = ev.PaymentID
		p.SourceAccountID = ev.SourceAccountID
		p.DestinationAccountID = ev.DestinationAccountID
		p.Amount = ev.Amount
		p.Status = ev.Status
		p.Kind = ev.Kind
		p.SettlementInitiationTime = ev.SettlementInitiationTime
		if ev.Kind == PaymentKindScheduled {
			p.Schedule = &Schedule{SettlementInstant: ev.SettlementInitiationTime, DeadlineToken: ev.DeadlineToken}
		}
	case SettlementTriggered:
		p.Status = PaymentStatusInProgress
	case PaymentCompleted:
		p.Status = PaymentStatusCompleted
	case PaymentFailed:
		p.Status = PaymentStatusFailed
	case ScheduledPaymentCancelled:
		p.Status = PaymentStatusCancelled
	}
}

func validateTransfer(paymentID, source, destination uuid.UUID, amount int64) error {
	if paymentID == uuid.Nil {
		return validationError("payment id is required")
	}
	if source == uuid.Nil || destination == uuid.Nil {
		return validationError("source and destination accounts are required")
	}
	if amount <= 0 {
		return validationError("payment amount must be positive, got %d", amount)
	}
	return nil
}

// CreateImmediate emits creation and the settlement trigger as one pair.
func CreateImmediate(cmd CreateImmediatePayment, now time.Time) ([]Event, error) {
	if err := validateTransfer(cmd.PaymentID, cmd.SourceAccountID, cmd.DestinationAccountID, cmd.Amount); err != nil {
		return nil, err
	}
	return []Event{
		PaymentCreated{
			PaymentID:                cmd.PaymentID,
			SourceAccountID:          cmd.SourceAccountID,
			DestinationAccountID:     cmd.DestinationAccountID,
			Amount:                   cmd.Amount,
			Status:                   PaymentStatusCreated,
			Kind:                     PaymentKindImmediate,
			SettlementInitiationTime: now,
		},
		SettlementTriggered{
			PaymentID:            cmd.PaymentID,
			SourceAccountID:      cmd.SourceAccountID,
			DestinationAccountID: cmd.DestinationAccountID,
			Amount:               cmd.Amount,
			SettlementInstant:    now,
			TriggerID:            uuid.New(),
		},
	}, nil
}

// ValidateScheduled rejects a schedule closer than minLead to now.
func ValidateScheduled(cmd CreateScheduledPayment, now time.Time, minLead time.Duration) error {
	if err := validateTransfer(cmd.PaymentID, cmd.SourceAccountID, cmd.DestinationAccountID, cmd.Amount); err != nil {
		return err
	}
	if cmd.SettlementInstant.Sub(now) < minLead {
		return validationError("settlement instant %s must be at least %s after %s",
			cmd.SettlementInstant.Format(time.RFC3339), minLead, now.Format(time.RFC3339))
	}
	return nil
}

// CreateScheduled assumes ValidateScheduled passed and the deadline is registered.
func CreateScheduled(cmd CreateScheduledPayment, deadlineToken string) []Event {
	return []Event{
		PaymentCreated{
			PaymentID:                cmd.PaymentID,
			SourceAccountID:          cmd.SourceAccountID,
			DestinationAccountID:     cmd.DestinationAccountID,
			Amount:                   cmd.Amount,
			Status:                   PaymentStatusCreated,
			Kind:                     PaymentKindScheduled,
			SettlementInitiationTime: cmd.SettlementInstant,
			DeadlineToken:            deadlineToken,
		},
	}
}

func (p *Payment) settlementTriggered(instant time.Time) SettlementTriggered {
	return SettlementTriggered{
		PaymentID:            p.ID,
		SourceAccountID:      p.SourceAccountID,
		DestinationAccountID: p.DestinationAccountID,
		Amount:               p.Amount,
		SettlementInstant:    instant,
		TriggerID:            uuid.New(),
	}
}

// TriggerSettlement returns no events when settlement is already in progress.
func (p *Payment) TriggerSettlement(now time.Time) ([]Event, error) {
	if !p.Exists() {
		return nil, ErrPaymentNotFound
	}
	switch p.Status {
	case PaymentStatusCreated:
		return []Event{p.settlementTriggered(now)}, nil
	case PaymentStatusInProgress:
		return nil, nil
	}
	return nil, stateConflictError("cannot trigger settlement of payment %s in status %s", p.ID, p.Status)
}

// OnDeadline handles a fired settlement deadline. A payment that left CREATED
// in the meantime ignores it.
func (p *Payment) OnDeadline(payload DeadlinePayload) []Event {
	if p.Kind != PaymentKindScheduled || p.Status != PaymentStatusCreated {
		return nil
	}
	return []Event{p.settlementTriggered(payload.SettlementInstant)}
}

func (p *Payment) CancelScheduled() ([]Event, error) {
	if !p.Exists() {
		return nil, ErrPaymentNotFound
	}
	if p.Kind != PaymentKindScheduled {
		return nil, stateConflictError("payment %s is not a scheduled payment", p.ID)
	}
	switch p.Status {
	case PaymentStatusCreated:
		var token string
		if p.Schedule != nil {
			token = p.Schedule.DeadlineToken
		}
		return []Event{ScheduledPaymentCancelled{PaymentID: p.ID, DeadlineToken: token}}, nil
	case PaymentStatusCancelled:
		return nil, nil
	}
	return nil, stateConflictError("cannot cancel payment %s in status %s", p.ID, p.Status)
}

func (p *Payment) MarkCompleted() ([]Event, error) {
	if !p.Exists() {
		return nil, ErrPaymentNotFound
	}
	switch p.Status {
	case PaymentStatusCompleted:
		return nil, nil
	case PaymentStatusFailed, PaymentStatusCancelled:
		return nil, stateConflictError("cannot complete payment %s in status %s", p.ID, p.Status)
	}
	return []Event{PaymentCompleted{PaymentID: p.ID}}, nil
}

func (p *Payment) MarkFailed() ([]Event, error) {
	if !p.Exists() {
		return nil, ErrPaymentNotFound
	}
	switch p.Status {
	case PaymentStatusFailed:
		return nil, nil
	case PaymentStatusCompleted, PaymentStatusCancelled:
		return nil, stateConflictError("cannot fail payment %s in status %s", p.ID, p.Status)
	}
	return []Event{PaymentFailed{PaymentID: p.ID}}, nil
}
