package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger/internal/domain"
	accountmem "ledger/internal/repository/accounts_repo/memory"
	constraintmem "ledger/internal/repository/constraint_repo/memory"
	paymentmem "ledger/internal/repository/payments_repo/memory"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func env(e domain.Event) domain.Envelope {
	return domain.Envelope{Record: domain.EventRecord{Type: e.EventType()}, Event: e}
}

func TestEmailUniqueness_RejectsDuplicateEmail(t *testing.T) {
	constraints := constraintmem.NewEmailConstraintRepository()
	p := NewEmailUniqueness(constraints, zap.NewNop())
	ctx := context.Background()

	if err := p.Handle(ctx, env(domain.AccountCreated{AccountID: uuid.New(), EmailAddress: "dup@example.org"})); err != nil {
		t.Fatalf("first insert returned error: %v", err)
	}
	err := p.Handle(ctx, env(domain.AccountCreated{AccountID: uuid.New(), EmailAddress: "dup@example.org"}))
	var inUse *domain.EmailAddressInUseError
	if !errors.As(err, &inUse) || inUse.Email != "dup@example.org" {
		t.Fatalf("expected EmailAddressInUseError carrying the email, got %v", err)
	}
	if n, _ := constraints.Count(ctx); n != 1 {
		t.Fatalf("expected one constraint row, got %d", n)
	}
	if err := p.Handle(ctx, env(domain.AccountCredited{AccountID: uuid.New(), Amount: 1})); err != nil {
		t.Fatalf("expected other events to be ignored, got %v", err)
	}
}

func TestAccountView_TracksBalance(t *testing.T) {
	views := accountmem.NewAccountRepository()
	p := NewAccountView(views)
	ctx := context.Background()
	id := uuid.New()

	for _, e := range []domain.Event{
		domain.AccountCreated{AccountID: id, EmailAddress: "a@example.org"},
		domain.AccountCredited{AccountID: id, Amount: 50},
		domain.AccountDebited{AccountID: id, Amount: 80},
	} {
		if err := p.Handle(ctx, env(e)); err != nil {
			t.Fatalf("Handle(%s) returned error: %v", e.EventType(), err)
		}
	}
	view, err := views.GetByID(ctx, id)
	if err != nil || view.Balance != -30 || view.EmailAddress != "a@example.org" {
		t.Fatalf("unexpected view %+v / %v", view, err)
	}

	if err := p.Reset(ctx); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if _, err := views.GetByID(ctx, id); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected the view to be truncated, got %v", err)
	}
}

func TestPaymentView_FollowsLifecycle(t *testing.T) {
	views := paymentmem.NewPaymentRepository()
	p := NewPaymentView(views)
	ctx := context.Background()
	id := uuid.New()
	instant := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

	steps := []struct {
		event domain.Event
		want  domain.PaymentStatus
	}{
		{domain.PaymentCreated{PaymentID: id, Amount: 10, Status: domain.PaymentStatusCreated, Kind: domain.PaymentKindScheduled, SettlementInitiationTime: instant}, domain.PaymentStatusCreated},
		{domain.SettlementTriggered{PaymentID: id, Amount: 10}, domain.PaymentStatusInProgress},
		{domain.PaymentCompleted{PaymentID: id}, domain.PaymentStatusCompleted},
	}
	for _, step := range steps {
		if err := p.Handle(ctx, env(step.event)); err != nil {
			t.Fatalf("Handle(%s) returned error: %v", step.event.EventType(), err)
		}
		view, err := views.GetByID(ctx, id)
		if err != nil || view.Status != step.want {
			t.Fatalf("after %s expected %s, got %+v / %v", step.event.EventType(), step.want, view, err)
		}
	}

	view, _ := views.GetByID(ctx, id)
	if view.Kind != domain.PaymentKindScheduled || !view.SettlementInitiationTime.Equal(instant) {
		t.Fatalf("expected kind and initiation time to be kept, got %+v", view)
	}
}
