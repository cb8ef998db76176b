// Package aggregate loads and saves event-sourced aggregates.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/metrics"
	"ledger/internal/repository/event_repo"
	"ledger/internal/repository/snapshot_repo"
	"ledger/internal/uow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is anything rebuilt by applying its own events. Snapshots are the
// JSON encoding of the state, so S is expected to be a pointer to a struct.
type State interface {
	Apply(domain.Event)
}

// Subscriber runs synchronously inside the unit of work that appended the
// event. Returning an error aborts the unit.
type Subscriber func(ctx context.Context, env domain.Envelope) error

type Config[S State] struct {
	StreamType string
	New        func(id uuid.UUID) S
	Events     event_repo.EventRepository
	Snapshots  snapshot_repo.SnapshotRepository
	// SnapshotThreshold <= 0 disables snapshotting.
	SnapshotThreshold int
	Clock             clock.Clock
	Metrics           *metrics.Collector
	Logger            *zap.Logger
}

type Repository[S State] struct {
	cfg         Config[S]
	subscribers []Subscriber
	committed   []func()
}

func NewRepository[S State](cfg Config[S]) *Repository[S] {
	return &Repository[S]{cfg: cfg}
}

func (r *Repository[S]) Subscribe(s Subscriber) {
	r.subscribers = append(r.subscribers, s)
}

// OnCommitted registers fn to run after every unit that appended to this
// repository commits.
func (r *Repository[S]) OnCommitted(fn func()) {
	r.committed = append(r.committed, fn)
}

func (r *Repository[S]) snapshotsEnabled() bool {
	return r.cfg.Snapshots != nil && r.cfg.SnapshotThreshold > 0
}

// Load returns the current state and version. A stream that does not exist
// yields a fresh state at version 0.
func (r *Repository[S]) Load(ctx context.Context, id uuid.UUID) (S, int64, error) {
	state := r.cfg.New(id)
	streamID := id.String()
	var version int64

	if r.snapshotsEnabled() {
		snap, err := r.cfg.Snapshots.LoadLatest(ctx, streamID)
		switch {
		case err == nil:
			if err := json.Unmarshal(snap.State, state); err != nil {
				return state, 0, fmt.Errorf("failed to decode %s snapshot %s@%d: %w", r.cfg.StreamType, streamID, snap.Version, err)
			}
			version = snap.Version
		case !errors.Is(err, snapshot_repo.ErrSnapshotNotFound):
			return state, 0, fmt.Errorf("failed to load %s snapshot %s: %w", r.cfg.StreamType, streamID, err)
		}
	}

	records, err := r.cfg.Events.ReadStream(ctx, streamID, version)
	if err != nil {
		return state, 0, fmt.Errorf("failed to read %s stream %s: %w", r.cfg.StreamType, streamID, err)
	}
	for _, rec := range records {
		event, err := domain.DecodeEvent(rec.Type, rec.Payload)
		if err != nil {
			return state, 0, err
		}
		state.Apply(event)
		version = rec.Version
	}
	return state, version, nil
}

// Save appends events at expectedVersion and applies them to state. Nothing
// happens for an empty slice.
func (r *Repository[S]) Save(ctx context.Context, id uuid.UUID, state S, expectedVersion int64, events []domain.Event) ([]domain.EventRecord, error) {
	if len(events) == 0 {
		return nil, nil
	}
	streamID := id.String()
	now := r.cfg.Clock.Now()

	records := make([]domain.EventRecord, 0, len(events))
	for _, e := range events {
		payload, err := domain.EncodeEvent(e)
		if err != nil {
			return nil, err
		}
		records = append(records, domain.EventRecord{
			ID:         uuid.New(),
			StreamID:   streamID,
			StreamType: r.cfg.StreamType,
			Type:       e.EventType(),
			Payload:    payload,
			RecordedAt: now,
		})
	}

	stored, err := r.cfg.Events.Append(ctx, streamID, expectedVersion, records)
	if err != nil {
		return nil, err
	}

	for i, rec := range stored {
		state.Apply(events[i])
		r.cfg.Metrics.RecordEventAppended(rec.Type)
		env := domain.Envelope{Record: rec, Event: events[i]}
		for _, sub := range r.subscribers {
			if err := sub(ctx, env); err != nil {
				return nil, err
			}
		}
	}

	newVersion := stored[len(stored)-1].Version
	if r.crossesThreshold(expectedVersion, newVersion) {
		if err := r.snapshot(ctx, streamID, state, newVersion, now); err != nil {
			return nil, err
		}
	}

	for _, fn := range r.committed {
		uow.AfterCommit(ctx, fn)
	}
	return stored, nil
}

func (r *Repository[S]) crossesThreshold(from, to int64) bool {
	if !r.snapshotsEnabled() {
		return false
	}
	n := int64(r.cfg.SnapshotThreshold)
	return to/n > from/n
}

func (r *Repository[S]) snapshot(ctx context.Context, streamID string, state S, version int64, now time.Time) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot %s: %w", r.cfg.StreamType, streamID, err)
	}
	err = r.cfg.Snapshots.Save(ctx, domain.Snapshot{
		StreamID:   streamID,
		StreamType: r.cfg.StreamType,
		Version:    version,
		State:      raw,
		TakenAt:    now,
	})
	if err != nil {
		return fmt.Errorf("failed to save %s snapshot %s@%d: %w", r.cfg.StreamType, streamID, version, err)
	}
	r.cfg.Metrics.RecordSnapshot()
	r.cfg.Logger.Debug("Snapshot taken",
		zap.String("stream_type", r.cfg.StreamType),
		zap.String("stream_id", streamID),
		zap.Int64("version", version),
	)
	return nil
}
