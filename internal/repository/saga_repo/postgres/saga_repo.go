package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain"
	"ledger/internal/repository/saga_repo"
	"ledger/internal/uow"

	"github.com/google/uuid"
)

type SagaRepository struct {
	db *sql.DB
}

var _ saga_repo.SagaRepository = (*SagaRepository)(nil)

func NewSagaRepository(db *sql.DB) *SagaRepository {
	return &SagaRepository{db: db}
}

func (r *SagaRepository) Save(ctx context.Context, saga domain.SettlementSaga) error {
	query := `
		INSERT INTO settlement_sagas (payment_id, phase, source_account_id, destination_account_id, amount, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (payment_id) DO UPDATE SET phase = EXCLUDED.phase, updated_at = EXCLUDED.updated_at
	`
	_, err := uow.Querier(ctx, r.db).ExecContext(ctx, query,
		saga.PaymentID, string(saga.Phase), saga.SourceAccountID, saga.DestinationAccountID,
		saga.Amount, saga.StartedAt, saga.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settlement saga %s: %w", saga.PaymentID, err)
	}
	return nil
}

func (r *SagaRepository) Find(ctx context.Context, paymentID uuid.UUID) (*domain.SettlementSaga, error) {
	query := `
		SELECT payment_id, phase, source_account_id, destination_account_id, amount, started_at, updated_at
		FROM settlement_sagas
		WHERE payment_id = $1
	`
	saga := &domain.SettlementSaga{}
	var phase string
	err := uow.Querier(ctx, r.db).QueryRowContext(ctx, query, paymentID).Scan(
		&saga.PaymentID,
		&phase,
		&saga.SourceAccountID,
		&saga.DestinationAccountID,
		&saga.Amount,
		&saga.StartedAt,
		&saga.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, saga_repo.ErrSagaNotFound
		}
		return nil, fmt.Errorf("failed to find settlement saga %s: %w", paymentID, err)
	}
	saga.Phase = domain.SagaPhase(phase)
	return saga, nil
}

func (r *SagaRepository) Delete(ctx context.Context, paymentID uuid.UUID) error {
	_, err := uow.Querier(ctx, r.db).ExecContext(ctx, `DELETE FROM settlement_sagas WHERE payment_id = $1`, paymentID)
	if err != nil {
		return fmt.Errorf("failed to end settlement saga %s: %w", paymentID, err)
	}
	return nil
}

func (r *SagaRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := uow.Querier(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM settlement_sagas`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count settlement sagas: %w", err)
	}
	return count, nil
}
