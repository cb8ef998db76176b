package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain"
	"ledger/internal/repository/snapshot_repo"
	"ledger/internal/uow"
)

type SnapshotRepository struct {
	db *sql.DB
}

var _ snapshot_repo.SnapshotRepository = (*SnapshotRepository)(nil)

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Save(ctx context.Context, snapshot domain.Snapshot) error {
	query := `
		INSERT INTO snapshots (stream_id, stream_type, version, state, taken_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stream_id, version) DO NOTHING
	`
	_, err := uow.Querier(ctx, r.db).ExecContext(ctx, query,
		snapshot.StreamID, snapshot.StreamType, snapshot.Version, []byte(snapshot.State), snapshot.TakenAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot of %s at version %d: %w", snapshot.StreamID, snapshot.Version, err)
	}
	return nil
}

func (r *SnapshotRepository) LoadLatest(ctx context.Context, streamID string) (*domain.Snapshot, error) {
	query := `
		SELECT stream_id, stream_type, version, state, taken_at
		FROM snapshots
		WHERE stream_id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	snapshot := &domain.Snapshot{}
	var state []byte
	err := uow.Querier(ctx, r.db).QueryRowContext(ctx, query, streamID).Scan(
		&snapshot.StreamID,
		&snapshot.StreamType,
		&snapshot.Version,
		&state,
		&snapshot.TakenAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, snapshot_repo.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load latest snapshot of %s: %w", streamID, err)
	}
	snapshot.State = state
	return snapshot, nil
}

func (r *SnapshotRepository) Versions(ctx context.Context, streamID string) ([]int64, error) {
	rows, err := uow.Querier(ctx, r.db).QueryContext(ctx,
		`SELECT version FROM snapshots WHERE stream_id = $1 ORDER BY version`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots of %s: %w", streamID, err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
