package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain"
	"ledger/internal/repository/payments_repo"
	"ledger/internal/uow"

	"github.com/google/uuid"
)

type PaymentRepository struct {
	db *sql.DB
}

var _ payments_repo.PaymentRepository = (*PaymentRepository)(nil)

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `payment_id, source_account_id, destination_account_id, amount, status, kind, settlement_initiation_time`

func (r *PaymentRepository) Insert(ctx context.Context, view domain.PaymentView) error {
	query := `
		INSERT INTO payment_views (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (payment_id) DO NOTHING
	`
	_, err := uow.Querier(ctx, r.db).ExecContext(ctx, query,
		view.PaymentID, view.SourceAccountID, view.DestinationAccountID, view.Amount,
		string(view.Status), string(view.Kind), view.SettlementInitiationTime)
	if err != nil {
		return fmt.Errorf("failed to insert payment view %s: %w", view.PaymentID, err)
	}
	return nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus) error {
	res, err := uow.Querier(ctx, r.db).ExecContext(ctx,
		`UPDATE payment_views SET status = $1 WHERE payment_id = $2`, string(status), paymentID)
	if err != nil {
		return fmt.Errorf("failed to update payment view status %s: %w", paymentID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, paymentID)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentView, error) {
	row := uow.Querier(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_views WHERE payment_id = $1`, paymentID)
	view, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to get payment view %s: %w", paymentID, err)
	}
	return view, nil
}

func (r *PaymentRepository) List(ctx context.Context) ([]domain.PaymentView, error) {
	rows, err := uow.Querier(ctx, r.db).QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_views ORDER BY settlement_initiation_time`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment views: %w", err)
	}
	defer rows.Close()

	views := []domain.PaymentView{}
	for rows.Next() {
		view, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment view: %w", err)
		}
		views = append(views, *view)
	}
	return views, rows.Err()
}

func (r *PaymentRepository) Truncate(ctx context.Context) error {
	if _, err := uow.Querier(ctx, r.db).ExecContext(ctx, `TRUNCATE payment_views`); err != nil {
		return fmt.Errorf("failed to truncate payment views: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*domain.PaymentView, error) {
	view := &domain.PaymentView{}
	var status, kind string
	if err := s.Scan(
		&view.PaymentID,
		&view.SourceAccountID,
		&view.DestinationAccountID,
		&view.Amount,
		&status,
		&kind,
		&view.SettlementInitiationTime,
	); err != nil {
		return nil, err
	}
	view.Status = domain.PaymentStatus(status)
	view.Kind = domain.PaymentKind(kind)
	return view, nil
}
