package memory

import (
	"context"
	"fmt"
	"sync"

	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/repository/event_repo"
	"ledger/internal/uow"
)

type entry struct {
	record    domain.EventRecord
	committed bool
	removed   bool
}

// EventRepository keeps the log in memory. Records appended inside a unit of
// work stay hidden from ReadAll until the unit commits and are dropped if it
// rolls back.
type EventRepository struct {
	mu      sync.RWMutex
	streams map[string][]*entry
	log     []*entry
	nextPos int64
	clock   clock.Clock
}

var _ event_repo.EventRepository = (*EventRepository)(nil)

func NewEventRepository(clk clock.Clock) *EventRepository {
	return &EventRepository{streams: make(map[string][]*entry), clock: clk}
}

func (r *EventRepository) Append(ctx context.Context, streamID string, expectedVersion int64, records []domain.EventRecord) ([]domain.EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream := r.liveStream(streamID)
	current := int64(len(stream))
	if current != expectedVersion {
		return nil, fmt.Errorf("%w: stream %s is at version %d, expected %d",
			event_repo.ErrConcurrencyConflict, streamID, current, expectedVersion)
	}

	pending := uow.Active(ctx)
	stored := make([]domain.EventRecord, 0, len(records))
	added := make([]*entry, 0, len(records))
	for i, rec := range records {
		r.nextPos++
		rec.StreamID = streamID
		rec.Version = expectedVersion + int64(i) + 1
		rec.Position = r.nextPos
		if rec.RecordedAt.IsZero() {
			rec.RecordedAt = r.clock.Now()
		}
		e := &entry{record: rec, committed: !pending}
		r.streams[streamID] = append(r.streams[streamID], e)
		r.log = append(r.log, e)
		added = append(added, e)
		stored = append(stored, rec)
	}

	if pending {
		uow.AfterCommit(ctx, func() {
			r.mu.Lock()
			for _, e := range added {
				e.committed = true
			}
			r.mu.Unlock()
		})
		uow.OnRollback(ctx, func() {
			r.mu.Lock()
			for _, e := range added {
				e.removed = true
			}
			r.streams[streamID] = r.liveStream(streamID)
			r.mu.Unlock()
		})
	}
	return stored, nil
}

func (r *EventRepository) liveStream(streamID string) []*entry {
	stream := r.streams[streamID]
	live := stream[:0:0]
	for _, e := range stream {
		if !e.removed {
			live = append(live, e)
		}
	}
	return live
}

func (r *EventRepository) ReadStream(ctx context.Context, streamID string, fromVersion int64) ([]domain.EventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.EventRecord
	for _, e := range r.streams[streamID] {
		if e.removed || e.record.Version <= fromVersion {
			continue
		}
		out = append(out, e.record)
	}
	return out, nil
}

// ReadAll stops at the first uncommitted record so positions are handed out in
// order.
func (r *EventRepository) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]domain.EventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.EventRecord
	for _, e := range r.log {
		if e.record.Position <= afterPosition || e.removed {
			continue
		}
		if !e.committed {
			break
		}
		out = append(out, e.record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
