package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain"
	"ledger/internal/repository/event_repo"
	"ledger/internal/uow"

	"github.com/lib/pq"
)

type EventRepository struct {
	db *sql.DB
}

var _ event_repo.EventRepository = (*EventRepository)(nil)

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, streamID string, expectedVersion int64, records []domain.EventRecord) ([]domain.EventRecord, error) {
	querier := uow.Querier(ctx, r.db)

	var current int64
	err := querier.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`, streamID,
	).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("failed to read version of stream %s: %w", streamID, err)
	}
	if current != expectedVersion {
		return nil, fmt.Errorf("%w: stream %s is at version %d, expected %d",
			event_repo.ErrConcurrencyConflict, streamID, current, expectedVersion)
	}

	query := `
		INSERT INTO events (event_id, stream_id, stream_type, version, event_type, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING position
	`
	stored := make([]domain.EventRecord, 0, len(records))
	for i, rec := range records {
		rec.StreamID = streamID
		rec.Version = expectedVersion + int64(i) + 1
		err := querier.QueryRowContext(ctx, query,
			rec.ID, rec.StreamID, rec.StreamType, rec.Version, rec.Type, []byte(rec.Payload), rec.RecordedAt,
		).Scan(&rec.Position)
		if err != nil {
			if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
				return nil, fmt.Errorf("%w: stream %s version %d already written",
					event_repo.ErrConcurrencyConflict, streamID, rec.Version)
			}
			return nil, fmt.Errorf("failed to append %s to stream %s: %w", rec.Type, streamID, err)
		}
		stored = append(stored, rec)
	}
	return stored, nil
}

func (r *EventRepository) ReadStream(ctx context.Context, streamID string, fromVersion int64) ([]domain.EventRecord, error) {
	query := `
		SELECT event_id, stream_id, stream_type, version, position, event_type, payload, recorded_at
		FROM events
		WHERE stream_id = $1 AND version > $2
		ORDER BY version
	`
	rows, err := uow.Querier(ctx, r.db).QueryContext(ctx, query, streamID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", streamID, err)
	}
	return scanRecords(rows)
}

func (r *EventRepository) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]domain.EventRecord, error) {
	query := `
		SELECT event_id, stream_id, stream_type, version, position, event_type, payload, recorded_at
		FROM events
		WHERE position > $1
		ORDER BY position
		LIMIT $2
	`
	rows, err := uow.Querier(ctx, r.db).QueryContext(ctx, query, afterPosition, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read events after position %d: %w", afterPosition, err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]domain.EventRecord, error) {
	defer rows.Close()

	var records []domain.EventRecord
	for rows.Next() {
		var rec domain.EventRecord
		var payload []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.StreamID,
			&rec.StreamType,
			&rec.Version,
			&rec.Position,
			&rec.Type,
			&payload,
			&rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		rec.Payload = payload
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return records, nil
}
