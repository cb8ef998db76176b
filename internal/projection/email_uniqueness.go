// Package projection holds the read models built from the event log.
package projection

import (
	"context"

	"ledger/internal/domain"
	"ledger/internal/repository/constraint_repo"

	"go.uber.org/zap"
)

// EmailUniqueness subscribes synchronously to account creation. Its insert
// runs in the creating unit of work, so a duplicate aborts that whole unit:
// one account in per-command mode, the whole batch in per-transaction mode.
type EmailUniqueness struct {
	constraints constraint_repo.EmailConstraintRepository
	logger      *zap.Logger
}

func NewEmailUniqueness(constraints constraint_repo.EmailConstraintRepository, logger *zap.Logger) *EmailUniqueness {
	return &EmailUniqueness{constraints: constraints, logger: logger}
}

func (p *EmailUniqueness) Handle(ctx context.Context, env domain.Envelope) error {
	created, ok := env.Event.(domain.AccountCreated)
	if !ok {
		return nil
	}
	if err := p.constraints.Insert(ctx, created.AccountID, created.EmailAddress); err != nil {
		p.logger.Warn("Account creation violates unique email constraint",
			zap.String("account_id", created.AccountID.String()),
			zap.String("email", created.EmailAddress),
			zap.Error(err),
		)
		return err
	}
	return nil
}
