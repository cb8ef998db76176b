package ledger

import (
	"context"
	"fmt"
	"math/rand"

	"ledger/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SnapshotReport struct {
	AccountID uuid.UUID `json:"accountId"`
	Commands  int       `json:"commands"`
	Snapshots int       `json:"snapshots"`
	Versions  []int64   `json:"snapshotVersions"`
}

// creationsWithDuplicate builds 2 to 4 creations with unique emails followed
// by one reusing the last email.
func creationsWithDuplicate() []domain.CreateAccount {
	n := 2 + rand.Intn(3)
	cmds := make([]domain.CreateAccount, 0, n+1)
	batch := uuid.NewString()[:8]
	for i := 0; i < n; i++ {
		cmds = append(cmds, domain.CreateAccount{
			AccountID:    uuid.New(),
			EmailAddress: fmt.Sprintf("demo-%s-%d@example.org", batch, i),
		})
	}
	cmds = append(cmds, domain.CreateAccount{AccountID: uuid.New(), EmailAddress: cmds[n-1].EmailAddress})
	return cmds
}

// DemoConsistencyAtAggregateThreshold shows that independently dispatched
// creations persist up to the duplicate.
func (s *Service) DemoConsistencyAtAggregateThreshold(ctx context.Context) (*BatchResult, error) {
	return s.CreateAccounts(ctx, creationsWithDuplicate(), ConsistencyPerCommand)
}

// DemoConsistencyAtMultipleAggregateThreshold shows that the same kind of
// batch in one unit of work persists nothing.
func (s *Service) DemoConsistencyAtMultipleAggregateThreshold(ctx context.Context) (*BatchResult, error) {
	return s.CreateAccounts(ctx, creationsWithDuplicate(), ConsistencyPerTransaction)
}

// DemoTriggerAccountSnapshot creates an account and runs nine credits or
// debits of 10 against it under one payment id.
func (s *Service) DemoTriggerAccountSnapshot(ctx context.Context) (*SnapshotReport, error) {
	accountID := uuid.New()
	create := domain.CreateAccount{AccountID: accountID, EmailAddress: fmt.Sprintf("snapshot-%s@example.org", accountID.String()[:8])}
	if err := s.bus.SendAndWait(ctx, create); err != nil {
		return nil, err
	}

	const commands = 9
	paymentID := uuid.New()
	for i := 0; i < commands; i++ {
		var cmd domain.Command = domain.CreditAccount{AccountID: accountID, PaymentID: paymentID, Amount: 10}
		if rand.Intn(2) == 0 {
			cmd = domain.DebitAccount{AccountID: accountID, PaymentID: paymentID, Amount: 10}
		}
		if err := s.bus.SendAndWait(ctx, cmd); err != nil {
			return nil, err
		}
	}

	versions, err := s.stores.Snapshots.Versions(ctx, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for %s: %w", accountID, err)
	}
	s.logger.Info("Snapshot demonstration finished", zap.String("account_id", accountID.String()), zap.Int("snapshots", len(versions)))
	return &SnapshotReport{AccountID: accountID, Commands: commands + 1, Snapshots: len(versions), Versions: versions}, nil
}
