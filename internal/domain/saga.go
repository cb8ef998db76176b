package domain

import (
	"time"

	"github.com/google/uuid"
)

type SagaPhase string

const (
	SagaPhaseDebiting  SagaPhase = "DEBITING"
	SagaPhaseCrediting SagaPhase = "CREDITING"
)

// SettlementSaga is the persisted record of one settlement in flight,
// correlated by payment id. The captured fields never change after start.
type SettlementSaga struct {
	PaymentID            uuid.UUID `json:"paymentId"`
	Phase                SagaPhase `json:"phase"`
	SourceAccountID      uuid.UUID `json:"sourceAccountId"`
	DestinationAccountID uuid.UUID `json:"destinationAccountId"`
	Amount               int64     `json:"amount"`
	StartedAt            time.Time `json:"startedAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}
