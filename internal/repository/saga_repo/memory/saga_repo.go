package memory

import (
	"context"
	"sync"

	"ledger/internal/domain"
	"ledger/internal/repository/saga_repo"
	"ledger/internal/uow"

	"github.com/google/uuid"
)

type SagaRepository struct {
	mu    sync.RWMutex
	sagas map[uuid.UUID]domain.SettlementSaga
}

var _ saga_repo.SagaRepository = (*SagaRepository)(nil)

func NewSagaRepository() *SagaRepository {
	return &SagaRepository{sagas: make(map[uuid.UUID]domain.SettlementSaga)}
}

func (r *SagaRepository) Save(ctx context.Context, saga domain.SettlementSaga) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, existed := r.sagas[saga.PaymentID]
	r.sagas[saga.PaymentID] = saga
	uow.OnRollback(ctx, func() { r.restore(saga.PaymentID, previous, existed) })
	return nil
}

func (r *SagaRepository) Find(ctx context.Context, paymentID uuid.UUID) (*domain.SettlementSaga, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	saga, ok := r.sagas[paymentID]
	if !ok {
		return nil, saga_repo.ErrSagaNotFound
	}
	return &saga, nil
}

func (r *SagaRepository) Delete(ctx context.Context, paymentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, existed := r.sagas[paymentID]
	delete(r.sagas, paymentID)
	uow.OnRollback(ctx, func() { r.restore(paymentID, previous, existed) })
	return nil
}

func (r *SagaRepository) CountActive(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sagas), nil
}

func (r *SagaRepository) restore(id uuid.UUID, saga domain.SettlementSaga, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existed {
		r.sagas[id] = saga
		return
	}
	delete(r.sagas, id)
}
