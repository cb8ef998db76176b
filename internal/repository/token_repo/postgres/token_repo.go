package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/repository/token_repo"
	"ledger/internal/uow"

	"github.com/lib/pq"
)

type TokenRepository struct {
	db    *sql.DB
	clock clock.Clock
}

var _ token_repo.TokenRepository = (*TokenRepository)(nil)

func NewTokenRepository(db *sql.DB, clk clock.Clock) *TokenRepository {
	return &TokenRepository{db: db, clock: clk}
}

func (r *TokenRepository) Load(ctx context.Context, processor string) (domain.TrackingToken, error) {
	var token domain.TrackingToken
	err := uow.Querier(ctx, r.db).QueryRowContext(ctx,
		`SELECT position, gaps FROM tracking_tokens WHERE processor_name = $1`, processor,
	).Scan(&token.Position, pq.Array(&token.Gaps))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.TrackingToken{}, nil
		}
		return domain.TrackingToken{}, fmt.Errorf("failed to load token of processor %s: %w", processor, err)
	}
	if len(token.Gaps) == 0 {
		token.Gaps = nil
	}
	return token, nil
}

func (r *TokenRepository) Store(ctx context.Context, processor string, token domain.TrackingToken) error {
	query := `
		INSERT INTO tracking_tokens (processor_name, position, gaps, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (processor_name) DO UPDATE
		SET position = EXCLUDED.position, gaps = EXCLUDED.gaps, updated_at = EXCLUDED.updated_at
	`
	_, err := uow.Querier(ctx, r.db).ExecContext(ctx, query, processor, token.Position, pq.Array(token.Gaps), r.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to store token of processor %s: %w", processor, err)
	}
	return nil
}

func (r *TokenRepository) Delete(ctx context.Context, processor string) error {
	if _, err := uow.Querier(ctx, r.db).ExecContext(ctx,
		`DELETE FROM tracking_tokens WHERE processor_name = $1`, processor); err != nil {
		return fmt.Errorf("failed to delete token of processor %s: %w", processor, err)
	}
	return nil
}
