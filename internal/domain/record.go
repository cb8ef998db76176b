package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventRecord is an event as persisted in the event store. Position is the
// global ordering assigned by the store on append.
type EventRecord struct {
	ID         uuid.UUID
	StreamID   string
	StreamType string
	Version    int64
	Position   int64
	Type       string
	Payload    json.RawMessage
	RecordedAt time.Time
}

// Envelope pairs a stored record with its decoded event.
type Envelope struct {
	Record EventRecord
	Event  Event
}

// OpenEnvelope decodes the record payload.
func OpenEnvelope(rec EventRecord) (Envelope, error) {
	event, err := DecodeEvent(rec.Type, rec.Payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Record: rec, Event: event}, nil
}

type Snapshot struct {
	StreamID   string
	StreamType string
	Version    int64
	State      json.RawMessage
	TakenAt    time.Time
}
