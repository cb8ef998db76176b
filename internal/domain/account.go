package domain

import (
	"strings"

	"github.com/google/uuid"
)

const AccountStreamType = "account"

// Account is the event-sourced state of one account. It is also the snapshot
// shape, so every field is exported.
type Account struct {
	ID           uuid.UUID `json:"accountId"`
	EmailAddress string    `json:"emailAddress"`
	Balance      int64     `json:"balance"`
	Created      bool      `json:"created"`
}

func NewAccount(id uuid.UUID) *Account {
	return &Account{ID: id}
}

func (a *Account) Apply(e Event) {
	switch ev := e.(type) {
	case AccountCreated:
		a.ID = ev.AccountID
		a.EmailAddress = ev.EmailAddress
		a.Balance = ev.OpeningBalance
		a.Created = true
	case AccountCredited:
		a.Balance += ev.Amount
	case AccountDebited:
		a.Balance -= ev.Amount
	}
}

// OpenAccount decides the creation of a new account. Whether the identity is
// already taken is left to the event store append.
func OpenAccount(cmd CreateAccount) ([]Event, error) {
	if cmd.AccountID == uuid.Nil {
		return nil, validationError("account id is required")
	}
	email := strings.TrimSpace(cmd.EmailAddress)
	if email == "" {
		return nil, validationError("email address is required")
	}
	return []Event{AccountCreated{AccountID: cmd.AccountID, EmailAddress: email, OpeningBalance: 0}}, nil
}

// Credit does not check an upper bound.
func (a *Account) Credit(cmd CreditAccount) ([]Event, error) {
	if !a.Created {
		return nil, ErrAccountNotFound
	}
	if cmd.Amount <= 0 {
		return nil, validationError("credit amount must be positive, got %d", cmd.Amount)
	}
	return []Event{AccountCredited{AccountID: a.ID, PaymentID: cmd.PaymentID, Amount: cmd.Amount}}, nil
}

// Debit has no overdraft check; balances may go negative.
func (a *Account) Debit(cmd DebitAccount) ([]Event, error) {
	if !a.Created {
		return nil, ErrAccountNotFound
	}
	if cmd.Amount <= 0 {
		return nil, validationError("debit amount must be positive, got %d", cmd.Amount)
	}
	return []Event{AccountDebited{AccountID: a.ID, PaymentID: cmd.PaymentID, Amount: cmd.Amount}}, nil
}
