package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain"
	"ledger/internal/repository/constraint_repo"
	"ledger/internal/uow"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const emailConstraintName = "account_email_constraints_email_address_key"

type EmailConstraintRepository struct {
	db *sql.DB
}

var _ constraint_repo.EmailConstraintRepository = (*EmailConstraintRepository)(nil)

func NewEmailConstraintRepository(db *sql.DB) *EmailConstraintRepository {
	return &EmailConstraintRepository{db: db}
}

func (r *EmailConstraintRepository) Insert(ctx context.Context, accountID uuid.UUID, email string) error {
	query := `
		INSERT INTO account_email_constraints (account_id, email_address)
		VALUES ($1, $2)
	`
	_, err := uow.Querier(ctx, r.db).ExecContext(ctx, query, accountID, email)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" && pgErr.Constraint == emailConstraintName {
			return &domain.EmailAddressInUseError{Email: email}
		}
		return fmt.Errorf("failed to insert email constraint for account %s: %w", accountID, err)
	}
	return nil
}

func (r *EmailConstraintRepository) Contains(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := uow.Querier(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM account_email_constraints WHERE email_address = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up email constraint: %w", err)
	}
	return exists, nil
}

func (r *EmailConstraintRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := uow.Querier(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM account_email_constraints`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count email constraints: %w", err)
	}
	return count, nil
}
