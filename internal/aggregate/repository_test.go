package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/metrics"
	"ledger/internal/repository/event_repo"
	eventmem "ledger/internal/repository/event_repo/memory"
	snapmem "ledger/internal/repository/snapshot_repo/memory"
	"ledger/internal/uow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newAccountRepository(threshold int) (*Repository[*domain.Account], *snapmem.SnapshotRepository) {
	snapshots := snapmem.NewSnapshotRepository()
	clk := clock.NewMock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := NewRepository(Config[*domain.Account]{
		StreamType:        domain.AccountStreamType,
		New:               domain.NewAccount,
		Events:            eventmem.NewEventRepository(clk),
		Snapshots:         snapshots,
		SnapshotThreshold: threshold,
		Clock:             clk,
		Metrics:           metrics.NewCollector(),
		Logger:            zap.NewNop(),
	})
	return repo, snapshots
}

// runAccountHistory creates an account and applies the given signed amounts as
// credits (positive) or debits (negative), one command at a time.
func runAccountHistory(t *testing.T, repo *Repository[*domain.Account], id uuid.UUID, amounts []int64) {
	t.Helper()
	ctx := context.Background()

	acc, version, err := repo.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	events, err := domain.OpenAccount(domain.CreateAccount{AccountID: id, EmailAddress: "snap@example.org"})
	if err != nil {
		t.Fatalf("OpenAccount returned error: %v", err)
	}
	if _, err := repo.Save(ctx, id, acc, version, events); err != nil {
		t.Fatalf("Save creation returned error: %v", err)
	}

	paymentID := uuid.New()
	for _, amount := range amounts {
		acc, version, err := repo.Load(ctx, id)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		var events []domain.Event
		if amount >= 0 {
			events, err = acc.Credit(domain.CreditAccount{AccountID: id, PaymentID: paymentID, Amount: amount})
		} else {
			events, err = acc.Debit(domain.DebitAccount{AccountID: id, PaymentID: paymentID, Amount: -amount})
		}
		if err != nil {
			t.Fatalf("decide returned error: %v", err)
		}
		if _, err := repo.Save(ctx, id, acc, version, events); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}
}

func TestRepository_SnapshotTransparency(t *testing.T) {
	amounts := []int64{10, -10, 10, 10, -10, 10, -10, 10, 10}

	withSnapshots, snapshots := newAccountRepository(3)
	withoutSnapshots, _ := newAccountRepository(0)
	id := uuid.New()

	runAccountHistory(t, withSnapshots, id, amounts)
	runAccountHistory(t, withoutSnapshots, id, amounts)

	replayed, replayedVersion, err := withoutSnapshots.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	hydrated, hydratedVersion, err := withSnapshots.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if replayed.Balance != 30 || hydrated.Balance != replayed.Balance {
		t.Fatalf("expected both balances to be 30, replay=%d snapshot=%d", replayed.Balance, hydrated.Balance)
	}
	if hydratedVersion != replayedVersion || hydratedVersion != 10 {
		t.Fatalf("expected version 10 in both, got %d and %d", replayedVersion, hydratedVersion)
	}
	if *hydrated != *replayed {
		t.Fatalf("expected identical state, got %+v and %+v", hydrated, replayed)
	}

	versions, _ := snapshots.Versions(context.Background(), id.String())
	if len(versions) != 3 || versions[0] != 3 || versions[1] != 6 || versions[2] != 9 {
		t.Fatalf("expected snapshots at 3, 6 and 9, got %v", versions)
	}
}

func TestRepository_Save_DetectsConcurrentWriters(t *testing.T) {
	repo, _ := newAccountRepository(0)
	id := uuid.New()
	runAccountHistory(t, repo, id, nil)

	acc, version, _ := repo.Load(context.Background(), id)
	credit, _ := acc.Credit(domain.CreditAccount{AccountID: id, Amount: 5})
	if _, err := repo.Save(context.Background(), id, acc, version, credit); err != nil {
		t.Fatalf("first Save returned error: %v", err)
	}

	stale := domain.NewAccount(id)
	stale.Apply(domain.AccountCreated{AccountID: id, EmailAddress: "snap@example.org"})
	if _, err := repo.Save(context.Background(), id, stale, version, credit); !errors.Is(err, event_repo.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
}

func TestRepository_Save_SubscriberErrorAbortsUnit(t *testing.T) {
	repo, _ := newAccountRepository(0)
	boom := errors.New("subscriber failed")
	repo.Subscribe(func(ctx context.Context, env domain.Envelope) error {
		if env.Record.Type == domain.EventAccountCreated {
			return boom
		}
		return nil
	})
	woken := 0
	repo.OnCommitted(func() { woken++ })

	id := uuid.New()
	units := uow.NewManager(nil, zap.NewNop())
	err := units.Do(context.Background(), func(ctx context.Context) error {
		acc, version, err := repo.Load(ctx, id)
		if err != nil {
			return err
		}
		events, _ := domain.OpenAccount(domain.CreateAccount{AccountID: id, EmailAddress: "x@example.org"})
		_, err = repo.Save(ctx, id, acc, version, events)
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected subscriber error to surface, got %v", err)
	}

	acc, version, _ := repo.Load(context.Background(), id)
	if acc.Created || version != 0 {
		t.Fatalf("expected the append to be rolled back, got %+v at %d", acc, version)
	}
	if woken != 0 {
		t.Fatalf("expected no commit notification, got %d", woken)
	}
}
