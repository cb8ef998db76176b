package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Command is routed by TargetID to the aggregate or handler owning it.
type Command interface {
	CommandType() string
	TargetID() uuid.UUID
}

const (
	CommandCreateAccount               = "CreateAccount"
	CommandCreditAccount               = "CreditAccount"
	CommandDebitAccount                = "DebitAccount"
	CommandCreateAccountsInTransaction = "CreateAccountsInTransaction"
	CommandCreateImmediatePayment      = "CreateImmediatePayment"
	CommandCreateScheduledPayment      = "CreateScheduledPayment"
	CommandTriggerSettlement           = "TriggerSettlement"
	CommandCancelScheduledPayment      = "CancelScheduledPayment"
	CommandMarkPaymentCompleted        = "MarkPaymentCompleted"
	CommandMarkPaymentFailed           = "MarkPaymentFailed"
	CommandDeliverDeadline             = "DeliverDeadline"
)

// BatchRoutingKey is the fixed identity every multi-account creation batch is
// routed on, so batches never run concurrently with each other.
var BatchRoutingKey = uuid.MustParse("00000000-0000-0000-0000-00000000ba7c")

type CreateAccount struct {
	AccountID    uuid.UUID `json:"accountId"`
	EmailAddress string    `json:"emailAddress"`
}

func (CreateAccount) CommandType() string   { return CommandCreateAccount }
func (c CreateAccount) TargetID() uuid.UUID { return c.AccountID }

type CreditAccount struct {
	AccountID uuid.UUID `json:"accountId"`
	PaymentID uuid.UUID `json:"paymentId"`
	Amount    int64     `json:"amount"`
}

func (CreditAccount) CommandType() string   { return CommandCreditAccount }
func (c CreditAccount) TargetID() uuid.UUID { return c.AccountID }

type DebitAccount struct {
	AccountID uuid.UUID `json:"accountId"`
	PaymentID uuid.UUID `json:"paymentId"`
	Amount    int64     `json:"amount"`
}

func (DebitAccount) CommandType() string   { return CommandDebitAccount }
func (c DebitAccount) TargetID() uuid.UUID { return c.AccountID }

// CreateAccountsInTransaction creates every account in one unit of work or none.
type CreateAccountsInTransaction struct {
	Commands []CreateAccount `json:"commands"`
}

func (CreateAccountsInTransaction) CommandType() string { return CommandCreateAccountsInTransaction }
func (CreateAccountsInTransaction) TargetID() uuid.UUID { return BatchRoutingKey }

type CreateImmediatePayment struct {
	PaymentID            uuid.UUID `json:"paymentId"`
	SourceAccountID      uuid.UUID `json:"sourceAccountId"`
	DestinationAccountID uuid.UUID `json:"destinationAccountId"`
	Amount               int64     `json:"amount"`
}

func (CreateImmediatePayment) CommandType() string   { return CommandCreateImmediatePayment }
func (c CreateImmediatePayment) TargetID() uuid.UUID { return c.PaymentID }

type CreateScheduledPayment struct {
	PaymentID            uuid.UUID `json:"paymentId"`
	SourceAccountID      uuid.UUID `json:"sourceAccountId"`
	DestinationAccountID uuid.UUID `json:"destinationAccountId"`
	Amount               int64     `json:"amount"`
	SettlementInstant    time.Time `json:"settlementInstant"`
}

func (CreateScheduledPayment) CommandType() string   { return CommandCreateScheduledPayment }
func (c CreateScheduledPayment) TargetID() uuid.UUID { return c.PaymentID }

type TriggerSettlement struct {
	PaymentID uuid.UUID `json:"paymentId"`
}

func (TriggerSettlement) CommandType() string   { return CommandTriggerSettlement }
func (c TriggerSettlement) TargetID() uuid.UUID { return c.PaymentID }

type CancelScheduledPayment struct {
	PaymentID uuid.UUID `json:"paymentId"`
}

func (CancelScheduledPayment) CommandType() string   { return CommandCancelScheduledPayment }
func (c CancelScheduledPayment) TargetID() uuid.UUID { return c.PaymentID }

type MarkPaymentCompleted struct {
	PaymentID uuid.UUID `json:"paymentId"`
}

func (MarkPaymentCompleted) CommandType() string   { return CommandMarkPaymentCompleted }
func (c MarkPaymentCompleted) TargetID() uuid.UUID { return c.PaymentID }

type MarkPaymentFailed struct {
	PaymentID uuid.UUID `json:"paymentId"`
}

func (MarkPaymentFailed) CommandType() string   { return CommandMarkPaymentFailed }
func (c MarkPaymentFailed) TargetID() uuid.UUID { return c.PaymentID }

// DeliverDeadline hands a fired deadline back to the aggregate that registered it.
type DeliverDeadline struct {
	AggregateID uuid.UUID       `json:"aggregateId"`
	Name        string          `json:"name"`
	Token       string          `json:"token"`
	Payload     json.RawMessage `json:"payload"`
}

func (DeliverDeadline) CommandType() string   { return CommandDeliverDeadline }
func (c DeliverDeadline) TargetID() uuid.UUID { return c.AggregateID }

var commandRegistry = map[string]func() Command{
	CommandCreateAccount:               func() Command { return &CreateAccount{} },
	CommandCreditAccount:               func() Command { return &CreditAccount{} },
	CommandDebitAccount:                func() Command { return &DebitAccount{} },
	CommandCreateAccountsInTransaction: func() Command { return &CreateAccountsInTransaction{} },
	CommandCreateImmediatePayment:      func() Command { return &CreateImmediatePayment{} },
	CommandCreateScheduledPayment:      func() Command { return &CreateScheduledPayment{} },
	CommandTriggerSettlement:           func() Command { return &TriggerSettlement{} },
	CommandCancelScheduledPayment:      func() Command { return &CancelScheduledPayment{} },
	CommandMarkPaymentCompleted:        func() Command { return &MarkPaymentCompleted{} },
	CommandMarkPaymentFailed:           func() Command { return &MarkPaymentFailed{} },
}

// DecodeCommand builds a command from an external message. DeliverDeadline is
// internal and cannot be decoded.
func DecodeCommand(commandType string, payload []byte) (Command, error) {
	newCommand, ok := commandRegistry[commandType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommandType, commandType)
	}
	target := newCommand()
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("%w: malformed %s payload: %v", ErrValidation, commandType, err)
	}
	switch c := target.(type) {
	case *CreateAccount:
		return *c, nil
	case *CreditAccount:
		return *c, nil
	case *DebitAccount:
		return *c, nil
	case *CreateAccountsInTransaction:
		return *c, nil
	case *CreateImmediatePayment:
		return *c, nil
	case *CreateScheduledPayment:
		return *c, nil
	case *TriggerSettlement:
		return *c, nil
	case *CancelScheduledPayment:
		return *c, nil
	case *MarkPaymentCompleted:
		return *c, nil
	case *MarkPaymentFailed:
		return *c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommandType, commandType)
}
