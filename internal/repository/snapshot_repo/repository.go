package snapshot_repo

import (
	"context"
	"errors"

	"ledger/internal/domain"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

type SnapshotRepository interface {
	Save(ctx context.Context, snapshot domain.Snapshot) error
	LoadLatest(ctx context.Context, streamID string) (*domain.Snapshot, error)
	Versions(ctx context.Context, streamID string) ([]int64, error)
}
