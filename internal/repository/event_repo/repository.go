package event_repo

import (
	"context"
	"errors"

	"ledger/internal/domain"
)

var ErrConcurrencyConflict = errors.New("event stream version conflict")

// EventRepository is the append-only event log. Versions start at 1 and
// expectedVersion 0 means the stream must not exist yet.
type EventRepository interface {
	Append(ctx context.Context, streamID string, expectedVersion int64, records []domain.EventRecord) ([]domain.EventRecord, error)
	ReadStream(ctx context.Context, streamID string, fromVersion int64) ([]domain.EventRecord, error)
	ReadAll(ctx context.Context, afterPosition int64, limit int) ([]domain.EventRecord, error)
}
