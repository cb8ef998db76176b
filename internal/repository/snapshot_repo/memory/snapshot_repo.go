package memory

import (
	"context"
	"sync"

	"ledger/internal/domain"
	"ledger/internal/repository/snapshot_repo"
	"ledger/internal/uow"
)

type SnapshotRepository struct {
	mu        sync.RWMutex
	snapshots map[string][]domain.Snapshot
}

var _ snapshot_repo.SnapshotRepository = (*SnapshotRepository)(nil)

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{snapshots: make(map[string][]domain.Snapshot)}
}

func (r *SnapshotRepository) Save(ctx context.Context, snapshot domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots[snapshot.StreamID] = append(r.snapshots[snapshot.StreamID], snapshot)
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.snapshots[snapshot.StreamID]
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].Version == snapshot.Version {
				r.snapshots[snapshot.StreamID] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *SnapshotRepository) LoadLatest(ctx context.Context, streamID string) (*domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Snapshot
	for i := range r.snapshots[streamID] {
		s := r.snapshots[streamID][i]
		if latest == nil || s.Version > latest.Version {
			latest = &s
		}
	}
	if latest == nil {
		return nil, snapshot_repo.ErrSnapshotNotFound
	}
	return latest, nil
}

func (r *SnapshotRepository) Versions(ctx context.Context, streamID string) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := make([]int64, 0, len(r.snapshots[streamID]))
	for _, s := range r.snapshots[streamID] {
		versions = append(versions, s.Version)
	}
	return versions, nil
}
