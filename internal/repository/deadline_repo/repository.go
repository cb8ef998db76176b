package deadline_repo

import (
	"context"
	"time"

	"ledger/internal/domain"
)

type DeadlineRepository interface {
	Schedule(ctx context.Context, deadline domain.Deadline) error
	// Cancel is a no-op when the deadline already fired or never existed.
	Cancel(ctx context.Context, name, token string) error
	// ClaimDue removes and returns deadlines due at or before now. A claimed
	// deadline is never returned again.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Deadline, error)
	Pending(ctx context.Context) ([]domain.Deadline, error)
}
