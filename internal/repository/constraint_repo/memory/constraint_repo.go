package memory

import (
	"context"
	"sync"

	"ledger/internal/domain"
	"ledger/internal/repository/constraint_repo"
	"ledger/internal/uow"

	"github.com/google/uuid"
)

type EmailConstraintRepository struct {
	mu      sync.RWMutex
	byEmail map[string]uuid.UUID
}

var _ constraint_repo.EmailConstraintRepository = (*EmailConstraintRepository)(nil)

func NewEmailConstraintRepository() *EmailConstraintRepository {
	return &EmailConstraintRepository{byEmail: make(map[string]uuid.UUID)}
}

func (r *EmailConstraintRepository) Insert(ctx context.Context, accountID uuid.UUID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byEmail[email]; taken {
		return &domain.EmailAddressInUseError{Email: email}
	}
	r.byEmail[email] = accountID
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.byEmail, email)
		r.mu.Unlock()
	})
	return nil
}

func (r *EmailConstraintRepository) Contains(ctx context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[email]
	return ok, nil
}

func (r *EmailConstraintRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail), nil
}
