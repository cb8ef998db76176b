package deadline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/metrics"
	deadlinemem "ledger/internal/repository/deadline_repo/memory"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubDispatcher struct {
	delivered []domain.DeliverDeadline
	err       error
}

func (d *stubDispatcher) SendAndWait(ctx context.Context, cmd domain.Command) error {
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, cmd.(domain.DeliverDeadline))
	return nil
}

func newTestManager(t *testing.T) (*Manager, *clock.Mock, *stubDispatcher) {
	clk := clock.NewMock(start)
	d := &stubDispatcher{}
	m := NewManager(deadlinemem.NewDeadlineRepository(), clk, 5*time.Second, metrics.NewCollector(), zaptest.NewLogger(t))
	m.SetDispatcher(d)
	return m, clk, d
}

func TestManager_FireDue_FiresExactlyOnceAtInstant(t *testing.T) {
	m, clk, d := newTestManager(t)
	ctx := context.Background()
	paymentID := uuid.New()
	instant := start.Add(5 * time.Minute)

	token, err := m.Schedule(ctx, instant, domain.TriggerScheduledPaymentDeadline, paymentID, domain.NewSettlementDeadlinePayload(instant))
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	clk.Set(instant.Add(-time.Second))
	if fired, _ := m.FireDue(ctx); fired != 0 {
		t.Fatalf("expected nothing to fire early, got %d", fired)
	}

	clk.Set(instant)
	if fired, err := m.FireDue(ctx); err != nil || fired != 1 {
		t.Fatalf("expected one firing at the instant, got %d / %v", fired, err)
	}
	if fired, _ := m.FireDue(ctx); fired != 0 {
		t.Fatalf("expected no second firing, got %d", fired)
	}

	got := d.delivered[0]
	if got.AggregateID != paymentID || got.Token != token || got.Name != domain.TriggerScheduledPaymentDeadline {
		t.Fatalf("unexpected delivery: %+v", got)
	}
	var payload domain.DeadlinePayload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload did not decode: %v", err)
	}
	if payload.Message != "Hello from the other side!" || !payload.SettlementInstant.Equal(instant) {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestManager_Cancel_PreventsFiring(t *testing.T) {
	m, clk, d := newTestManager(t)
	ctx := context.Background()

	token, _ := m.Schedule(ctx, start.Add(time.Minute), domain.TriggerScheduledPaymentDeadline, uuid.New(), nil)
	if err := m.Cancel(ctx, domain.TriggerScheduledPaymentDeadline, token); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if err := m.Cancel(ctx, domain.TriggerScheduledPaymentDeadline, token); err != nil {
		t.Fatalf("repeated Cancel returned error: %v", err)
	}

	clk.Advance(time.Hour)
	if fired, _ := m.FireDue(ctx); fired != 0 || len(d.delivered) != 0 {
		t.Fatalf("expected a cancelled deadline not to fire, got %d", fired)
	}
}

func TestManager_FireDue_ReschedulesAfterInfrastructureFailure(t *testing.T) {
	m, clk, d := newTestManager(t)
	ctx := context.Background()
	_, _ = m.Schedule(ctx, start, domain.TriggerScheduledPaymentDeadline, uuid.New(), nil)

	d.err = errors.New("store unavailable")
	if fired, _ := m.FireDue(ctx); fired != 0 {
		t.Fatalf("expected the failed delivery not to count, got %d", fired)
	}
	pending, _ := m.Pending(ctx)
	if len(pending) != 1 || !pending[0].DueAt.Equal(start.Add(5*time.Second)) {
		t.Fatalf("expected the deadline to be put back after the retry delay, got %+v", pending)
	}

	d.err = nil
	clk.Advance(5 * time.Second)
	if fired, _ := m.FireDue(ctx); fired != 1 {
		t.Fatalf("expected the retry to fire, got %d", fired)
	}
}

func TestManager_FireDue_DropsRejectedDelivery(t *testing.T) {
	m, _, d := newTestManager(t)
	ctx := context.Background()
	_, _ = m.Schedule(ctx, start, domain.TriggerScheduledPaymentDeadline, uuid.New(), nil)

	d.err = domain.ErrPaymentNotFound
	_, _ = m.FireDue(ctx)
	if pending, _ := m.Pending(ctx); len(pending) != 0 {
		t.Fatalf("expected a rejected deadline to be dropped, got %+v", pending)
	}
}
