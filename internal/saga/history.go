package saga

import (
	"context"
	"fmt"

	"ledger/internal/domain"
	"ledger/internal/repository/event_repo"

	"github.com/google/uuid"
)

// History answers whether a settlement command already took effect.
type History interface {
	Applied(ctx context.Context, cmd domain.Command) (bool, error)
}

// StreamHistory looks for the command's resulting event in the target
// account's stream.
type StreamHistory struct {
	events event_repo.EventRepository
}

var _ History = (*StreamHistory)(nil)

func NewStreamHistory(events event_repo.EventRepository) *StreamHistory {
	return &StreamHistory{events: events}
}

func (h *StreamHistory) Applied(ctx context.Context, cmd domain.Command) (bool, error) {
	switch c := cmd.(type) {
	case domain.DebitAccount:
		return h.contains(ctx, c.AccountID, domain.EventAccountDebited, c.PaymentID)
	case domain.CreditAccount:
		return h.contains(ctx, c.AccountID, domain.EventAccountCredited, c.PaymentID)
	}
	// Payment completion is idempotent on the aggregate.
	return false, nil
}

func (h *StreamHistory) contains(ctx context.Context, accountID uuid.UUID, eventType string, paymentID uuid.UUID) (bool, error) {
	records, err := h.events.ReadStream(ctx, accountID.String(), 0)
	if err != nil {
		return false, fmt.Errorf("failed to read account stream %s: %w", accountID, err)
	}
	for _, rec := range records {
		if rec.Type != eventType {
			continue
		}
		event, err := domain.DecodeEvent(rec.Type, rec.Payload)
		if err != nil {
			return false, err
		}
		if correlated, ok := CorrelationID(event); ok && correlated == paymentID {
			return true, nil
		}
	}
	return false, nil
}
