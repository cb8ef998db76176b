package constraint_repo

import (
	"context"

	"github.com/google/uuid"
)

// EmailConstraintRepository is the secondary unique index over account email
// addresses. Insert fails with *domain.EmailAddressInUseError on a duplicate.
type EmailConstraintRepository interface {
	Insert(ctx context.Context, accountID uuid.UUID, email string) error
	Contains(ctx context.Context, email string) (bool, error)
	Count(ctx context.Context) (int, error)
}
