package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/uow"

	"github.com/google/uuid"
)

type AccountRepository struct {
	db *sql.DB
}

var _ accounts_repo.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Insert(ctx context.Context, view domain.AccountView) error {
	query := `
		INSERT INTO account_views (account_id, email_address, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO NOTHING
	`
	_, err := uow.Querier(ctx, r.db).ExecContext(ctx, query, view.AccountID, view.EmailAddress, view.Balance)
	if err != nil {
		return fmt.Errorf("failed to insert account view %s: %w", view.AccountID, err)
	}
	return nil
}

func (r *AccountRepository) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) error {
	res, err := uow.Querier(ctx, r.db).ExecContext(ctx,
		`UPDATE account_views SET balance = balance + $1 WHERE account_id = $2`, delta, accountID)
	if err != nil {
		return fmt.Errorf("failed to update account view balance for %s: %w", accountID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (*domain.AccountView, error) {
	view := &domain.AccountView{}
	err := uow.Querier(ctx, r.db).QueryRowContext(ctx,
		`SELECT account_id, email_address, balance FROM account_views WHERE account_id = $1`, accountID,
	).Scan(&view.AccountID, &view.EmailAddress, &view.Balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("failed to get account view %s: %w", accountID, err)
	}
	return view, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.AccountView, error) {
	rows, err := uow.Querier(ctx, r.db).QueryContext(ctx,
		`SELECT account_id, email_address, balance FROM account_views ORDER BY email_address`)
	if err != nil {
		return nil, fmt.Errorf("failed to list account views: %w", err)
	}
	defer rows.Close()

	views := []domain.AccountView{}
	for rows.Next() {
		var v domain.AccountView
		if err := rows.Scan(&v.AccountID, &v.EmailAddress, &v.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan account view: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (r *AccountRepository) Truncate(ctx context.Context) error {
	if _, err := uow.Querier(ctx, r.db).ExecContext(ctx, `TRUNCATE account_views`); err != nil {
		return fmt.Errorf("failed to truncate account views: %w", err)
	}
	return nil
}
