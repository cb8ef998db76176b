package memory

import (
	"context"
	"slices"
	"sync"

	"ledger/internal/domain"
	"ledger/internal/repository/token_repo"
	"ledger/internal/uow"
)

type TokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]domain.TrackingToken
}

var _ token_repo.TokenRepository = (*TokenRepository)(nil)

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: make(map[string]domain.TrackingToken)}
}

func (r *TokenRepository) Load(ctx context.Context, processor string) (domain.TrackingToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token := r.tokens[processor]
	token.Gaps = slices.Clone(token.Gaps)
	return token, nil
}

func (r *TokenRepository) Store(ctx context.Context, processor string, token domain.TrackingToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, existed := r.tokens[processor]
	token.Gaps = slices.Clone(token.Gaps)
	r.tokens[processor] = token
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if existed {
			r.tokens[processor] = previous
		} else {
			delete(r.tokens, processor)
		}
	})
	return nil
}

func (r *TokenRepository) Delete(ctx context.Context, processor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, processor)
	return nil
}
