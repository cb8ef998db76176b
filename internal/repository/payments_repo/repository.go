package payments_repo

import (
	"context"

	"ledger/internal/domain"

	"github.com/google/uuid"
)

// PaymentRepository stores the payment query view. Lookups of missing rows
// return domain.ErrPaymentNotFound.
type PaymentRepository interface {
	Insert(ctx context.Context, view domain.PaymentView) error
	UpdateStatus(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus) error
	GetByID(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentView, error)
	List(ctx context.Context) ([]domain.PaymentView, error)
	Truncate(ctx context.Context) error
}
