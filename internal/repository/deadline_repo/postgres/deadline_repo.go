package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ledger/internal/domain"
	"ledger/internal/repository/deadline_repo"
	"ledger/internal/uow"
)

type DeadlineRepository struct {
	db *sql.DB
}

var _ deadline_repo.DeadlineRepository = (*DeadlineRepository)(nil)

func NewDeadlineRepository(db *sql.DB) *DeadlineRepository {
	return &DeadlineRepository{db: db}
}

func (r *DeadlineRepository) Schedule(ctx context.Context, deadline domain.Deadline) error {
	query := `
		INSERT INTO deadlines (token, name, aggregate_id, due_at, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := uow.Querier(ctx, r.db).ExecContext(ctx, query,
		deadline.Token, deadline.Name, deadline.AggregateID, deadline.DueAt, deadline.Payload, deadline.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to schedule deadline %s: %w", deadline.Name, err)
	}
	return nil
}

func (r *DeadlineRepository) Cancel(ctx context.Context, name, token string) error {
	_, err := uow.Querier(ctx, r.db).ExecContext(ctx,
		`DELETE FROM deadlines WHERE name = $1 AND token = $2`, name, token)
	if err != nil {
		return fmt.Errorf("failed to cancel deadline %s (%s): %w", name, token, err)
	}
	return nil
}

func (r *DeadlineRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Deadline, error) {
	query := `
		DELETE FROM deadlines
		WHERE token IN (
			SELECT token FROM deadlines
			WHERE due_at <= $1
			ORDER BY due_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING token, name, aggregate_id, due_at, payload, created_at
	`
	rows, err := uow.Querier(ctx, r.db).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due deadlines: %w", err)
	}
	return scanDeadlines(rows)
}

func (r *DeadlineRepository) Pending(ctx context.Context) ([]domain.Deadline, error) {
	rows, err := uow.Querier(ctx, r.db).QueryContext(ctx,
		`SELECT token, name, aggregate_id, due_at, payload, created_at FROM deadlines ORDER BY due_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deadlines: %w", err)
	}
	return scanDeadlines(rows)
}

func scanDeadlines(rows *sql.Rows) ([]domain.Deadline, error) {
	defer rows.Close()
	var deadlines []domain.Deadline
	for rows.Next() {
		var d domain.Deadline
		if err := rows.Scan(&d.Token, &d.Name, &d.AggregateID, &d.DueAt, &d.Payload, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deadline row: %w", err)
		}
		deadlines = append(deadlines, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deadline rows: %w", err)
	}
	return deadlines, nil
}
