package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ledger/internal/domain"
	"ledger/internal/repository/payments_repo"
	"ledger/internal/uow"

	"github.com/google/uuid"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]domain.PaymentView
}

var _ payments_repo.PaymentRepository = (*PaymentRepository)(nil)

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{payments: make(map[uuid.UUID]domain.PaymentView)}
}

func (r *PaymentRepository) Insert(ctx context.Context, view domain.PaymentView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[view.PaymentID]; exists {
		return nil
	}
	r.payments[view.PaymentID] = view
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.payments, view.PaymentID)
		r.mu.Unlock()
	})
	return nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.payments[paymentID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, paymentID)
	}
	previous := view.Status
	view.Status = status
	r.payments[paymentID] = view
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if v, ok := r.payments[paymentID]; ok {
			v.Status = previous
			r.payments[paymentID] = v
		}
	})
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	view, ok := r.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, paymentID)
	}
	return &view, nil
}

func (r *PaymentRepository) List(ctx context.Context) ([]domain.PaymentView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]domain.PaymentView, 0, len(r.payments))
	for _, v := range r.payments {
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].SettlementInitiationTime.Before(views[j].SettlementInitiationTime)
	})
	return views, nil
}

func (r *PaymentRepository) Truncate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = make(map[uuid.UUID]domain.PaymentView)
	return nil
}
