package saga_repo

import (
	"context"
	"errors"

	"ledger/internal/domain"

	"github.com/google/uuid"
)

var ErrSagaNotFound = errors.New("saga not found")

type SagaRepository interface {
	Save(ctx context.Context, saga domain.SettlementSaga) error
	Find(ctx context.Context, paymentID uuid.UUID) (*domain.SettlementSaga, error)
	Delete(ctx context.Context, paymentID uuid.UUID) error
	CountActive(ctx context.Context) (int, error)
}
