package accounts_repo

import (
	"context"

	"ledger/internal/domain"

	"github.com/google/uuid"
)

// AccountRepository stores the account query view. Lookups of missing rows
// return domain.ErrAccountNotFound.
type AccountRepository interface {
	Insert(ctx context.Context, view domain.AccountView) error
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) error
	GetByID(ctx context.Context, accountID uuid.UUID) (*domain.AccountView, error)
	List(ctx context.Context) ([]domain.AccountView, error)
	Truncate(ctx context.Context) error
}
