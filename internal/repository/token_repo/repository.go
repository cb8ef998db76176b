package token_repo

import (
	"context"

	"ledger/internal/domain"
)

// TokenRepository stores the tracking token per processor. A processor
// without a token starts from position 0 with no gaps.
type TokenRepository interface {
	Load(ctx context.Context, processor string) (domain.TrackingToken, error)
	Store(ctx context.Context, processor string, token domain.TrackingToken) error
	Delete(ctx context.Context, processor string) error
}
