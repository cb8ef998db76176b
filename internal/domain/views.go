package domain

import (
	"time"

	"github.com/google/uuid"
)

type AccountView struct {
	AccountID    uuid.UUID `json:"accountId"`
	EmailAddress string    `json:"emailAddress"`
	Balance      int64     `json:"balance"`
}

type PaymentView struct {
	PaymentID                uuid.UUID     `json:"paymentId"`
	SourceAccountID          uuid.UUID     `json:"sourceAccountId"`
	DestinationAccountID     uuid.UUID     `json:"destinationAccountId"`
	Amount                   int64         `json:"amount"`
	Status                   PaymentStatus `json:"status"`
	Kind                     PaymentKind   `json:"kind"`
	SettlementInitiationTime time.Time     `json:"settlementInitiationTime"`
}
