package command

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledger/internal/domain"
	"ledger/internal/lock"
	"ledger/internal/metrics"
	"ledger/internal/uow"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

func newTestBus(t *testing.T) *Bus {
	return NewBus(lock.NewKeyedMutex(), uow.NewManager(nil, zaptest.NewLogger(t)), metrics.NewCollector(), zaptest.NewLogger(t))
}

func TestBus_SendAndWait_UnknownCommand(t *testing.T) {
	bus := newTestBus(t)
	err := bus.SendAndWait(context.Background(), domain.TriggerSettlement{PaymentID: uuid.New()})
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestBus_SendAndWait_ReturnsHandlerError(t *testing.T) {
	bus := newTestBus(t)
	bus.Register(domain.CommandMarkPaymentCompleted, Handle(func(ctx context.Context, cmd domain.MarkPaymentCompleted) error {
		return domain.ErrPaymentNotFound
	}))
	err := bus.SendAndWait(context.Background(), domain.MarkPaymentCompleted{PaymentID: uuid.New()})
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestBus_SendAndWait_SerializesSameTarget(t *testing.T) {
	bus := newTestBus(t)
	var inside, overlaps int32
	bus.Register(domain.CommandCreditAccount, Handle(func(ctx context.Context, cmd domain.CreditAccount) error {
		if atomic.AddInt32(&inside, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inside, -1)
		return nil
	}))

	accountID := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bus.SendAndWait(context.Background(), domain.CreditAccount{AccountID: accountID, Amount: 1}); err != nil {
				t.Errorf("SendAndWait returned error: %v", err)
			}
		}()
	}
	wg.Wait()
	if overlaps != 0 {
		t.Fatalf("expected handlers for one account to never overlap, saw %d", overlaps)
	}
}

func TestBus_SendAndWait_NestedCallJoinsUnitAndReentersLock(t *testing.T) {
	bus := newTestBus(t)
	accountID := uuid.New()
	rolledBack := false

	bus.Register(domain.CommandCreateAccount, Handle(func(ctx context.Context, cmd domain.CreateAccount) error {
		uow.OnRollback(ctx, func() { rolledBack = true })
		return nil
	}))
	bus.Register(domain.CommandCreditAccount, Handle(func(ctx context.Context, cmd domain.CreditAccount) error {
		if err := bus.SendAndWait(ctx, domain.CreateAccount{AccountID: cmd.AccountID, EmailAddress: "a@example.org"}); err != nil {
			return err
		}
		return errors.New("outer failure")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := bus.SendAndWait(ctx, domain.CreditAccount{AccountID: accountID, Amount: 1})
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the outer failure without deadlock, got %v", err)
	}
	if !rolledBack {
		t.Fatal("expected the nested handler's work to roll back with the outer unit")
	}
}
