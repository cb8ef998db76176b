package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/uow"

	"github.com/google/uuid"
)

type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]domain.AccountView
}

var _ accounts_repo.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[uuid.UUID]domain.AccountView)}
}

// Insert ignores a view that already exists, so a redelivered creation is harmless.
func (r *AccountRepository) Insert(ctx context.Context, view domain.AccountView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[view.AccountID]; exists {
		return nil
	}
	r.accounts[view.AccountID] = view
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.accounts, view.AccountID)
		r.mu.Unlock()
	})
	return nil
}

func (r *AccountRepository) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	view.Balance += delta
	r.accounts[accountID] = view
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if v, ok := r.accounts[accountID]; ok {
			v.Balance -= delta
			r.accounts[accountID] = v
		}
	})
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (*domain.AccountView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	view, ok := r.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	return &view, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.AccountView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]domain.AccountView, 0, len(r.accounts))
	for _, v := range r.accounts {
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].EmailAddress < views[j].EmailAddress })
	return views, nil
}

func (r *AccountRepository) Truncate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = make(map[uuid.UUID]domain.AccountView)
	return nil
}
