package processing

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/metrics"
	"ledger/internal/repository/event_repo"
	eventmem "ledger/internal/repository/event_repo/memory"
	tokenmem "ledger/internal/repository/token_repo/memory"
	"ledger/internal/uow"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	events *eventmem.EventRepository
	tokens *tokenmem.TokenRepository
	units  *uow.Manager
	clock  *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	clk := clock.NewMock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	return &fixture{
		events: eventmem.NewEventRepository(clk),
		tokens: tokenmem.NewTokenRepository(),
		units:  uow.NewManager(nil, zaptest.NewLogger(t)),
		clock:  clk,
	}
}

func (f *fixture) processor(t *testing.T, cfg Config, h Handler, reset func(ctx context.Context) error) *Processor {
	return f.processorOn(t, f.events, cfg, h, reset)
}

func (f *fixture) processorOn(t *testing.T, events event_repo.EventRepository, cfg Config, h Handler, reset func(ctx context.Context) error) *Processor {
	return NewProcessor(cfg, h, reset, events, f.tokens, f.units, f.clock, metrics.NewCollector(), zaptest.NewLogger(t))
}

func creditRecord(t *testing.T, amount int64) domain.EventRecord {
	t.Helper()
	accountID := uuid.New()
	payload, err := domain.EncodeEvent(domain.AccountCredited{AccountID: accountID, Amount: amount})
	if err != nil {
		t.Fatalf("EncodeEvent returned error: %v", err)
	}
	return domain.EventRecord{
		ID:         uuid.New(),
		StreamID:   accountID.String(),
		StreamType: domain.AccountStreamType,
		Type:       domain.EventAccountCredited,
		Payload:    payload,
	}
}

func (f *fixture) appendCredit(t *testing.T, ctx context.Context, amount int64) {
	t.Helper()
	rec := creditRecord(t, amount)
	if _, err := f.events.Append(ctx, rec.StreamID, 0, []domain.EventRecord{rec}); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
}

// lateLog is a global log whose records become visible out of position order,
// the way concurrent transactions commit against a shared sequence.
type lateLog struct {
	event_repo.EventRepository
	visible []domain.EventRecord
}

func (l *lateLog) commit(rec domain.EventRecord, position int64) {
	rec.Position = position
	l.visible = append(l.visible, rec)
	slices.SortFunc(l.visible, func(a, b domain.EventRecord) int { return cmp.Compare(a.Position, b.Position) })
}

func (l *lateLog) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]domain.EventRecord, error) {
	var out []domain.EventRecord
	for _, rec := range l.visible {
		if rec.Position > afterPosition {
			out = append(out, rec)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func collect(into *[]int64) Handler {
	return func(ctx context.Context, env domain.Envelope) error {
		*into = append(*into, env.Event.(domain.AccountCredited).Amount)
		return nil
	}
}

func TestProcessor_ProcessAvailable_DeliversInOrderOnce(t *testing.T) {
	f := newFixture(t)
	for i := int64(1); i <= 5; i++ {
		f.appendCredit(t, context.Background(), i)
	}

	var seen []int64
	p := f.processor(t, Config{Name: "view", Transactional: true, BatchSize: 2}, collect(&seen), nil)
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("second ProcessAvailable returned error: %v", err)
	}

	if len(seen) != 5 || seen[0] != 1 || seen[4] != 5 {
		t.Fatalf("expected amounts 1..5 exactly once, got %v", seen)
	}
	token, _ := f.tokens.Load(context.Background(), "view")
	if token.Position != 5 || token.Gaps != nil {
		t.Fatalf("expected token 5 without gaps, got %+v", token)
	}
	if s := p.Status(); !s.CaughtUp || s.Position != 5 || s.Resettable {
		t.Fatalf("unexpected status: %+v", s)
	}
}

func TestProcessor_ProcessAvailable_RetriesFailedRecord(t *testing.T) {
	f := newFixture(t)
	f.appendCredit(t, context.Background(), 1)
	f.appendCredit(t, context.Background(), 2)

	boom := errors.New("downstream unavailable")
	failures := 1
	var seen []int64
	p := f.processor(t, Config{Name: "saga"}, func(ctx context.Context, env domain.Envelope) error {
		amount := env.Event.(domain.AccountCredited).Amount
		if amount == 2 && failures > 0 {
			failures--
			return boom
		}
		seen = append(seen, amount)
		return nil
	}, nil)

	if err := p.ProcessAvailable(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if s := p.Status(); s.Error == "" || s.Position != 1 {
		t.Fatalf("expected error state at position 1, got %+v", s)
	}
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if len(seen) != 2 || seen[1] != 2 {
		t.Fatalf("expected the failed record to be redelivered, got %v", seen)
	}
	if s := p.Status(); s.Error != "" {
		t.Fatalf("expected error to clear after catching up, got %q", s.Error)
	}
}

func TestProcessor_ProcessAvailable_HidesUncommittedUnits(t *testing.T) {
	f := newFixture(t)
	var seen []int64
	p := f.processor(t, Config{Name: "view", Transactional: true}, collect(&seen), nil)

	err := f.units.Do(context.Background(), func(ctx context.Context) error {
		f.appendCredit(t, ctx, 7)
		if err := p.ProcessAvailable(context.Background()); err != nil {
			return err
		}
		if len(seen) != 0 {
			t.Errorf("expected nothing visible before commit, got %v", seen)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}

	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	if len(seen) != 1 || seen[0] != 7 {
		t.Fatalf("expected the committed record, got %v", seen)
	}
}

func TestProcessor_ProcessAvailable_HandlesPastRolledBackPosition(t *testing.T) {
	f := newFixture(t)
	f.appendCredit(t, context.Background(), 1)
	_ = f.units.Do(context.Background(), func(ctx context.Context) error {
		f.appendCredit(t, ctx, 99)
		return errors.New("rolled back")
	})
	f.appendCredit(t, context.Background(), 3)

	var seen []int64
	p := f.processor(t, Config{Name: "view", GapTimeout: time.Hour}, collect(&seen), nil)
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	if !slices.Equal(seen, []int64{1, 3}) || !p.Status().CaughtUp || p.Position() != 3 {
		t.Fatalf("expected records on both sides of the gap at once, got %v and %+v", seen, p.Status())
	}
	token, _ := f.tokens.Load(context.Background(), "view")
	if !slices.Equal(token.Gaps, []int64{2}) {
		t.Fatalf("expected position 2 kept as a gap, got %+v", token)
	}

	f.clock.Advance(30 * time.Minute)
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	f.clock.Advance(61 * time.Minute)
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	token, _ = f.tokens.Load(context.Background(), "view")
	if token.Gaps != nil || token.Position != 3 {
		t.Fatalf("expected the gap dropped after the timeout, got %+v", token)
	}
	if len(seen) != 2 {
		t.Fatalf("expected no redelivery, got %v", seen)
	}
}

func TestProcessor_ProcessAvailable_HandlesLateCommitOnce(t *testing.T) {
	f := newFixture(t)
	log := &lateLog{}
	log.commit(creditRecord(t, 1), 1)
	log.commit(creditRecord(t, 3), 3)

	var seen []int64
	p := f.processorOn(t, log, Config{Name: "view", Transactional: true, GapTimeout: time.Minute}, collect(&seen), nil)
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}

	log.commit(creditRecord(t, 2), 2)
	log.commit(creditRecord(t, 4), 4)
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}

	if !slices.Equal(seen, []int64{1, 3, 2, 4}) {
		t.Fatalf("expected the late record handled exactly once, got %v", seen)
	}
	token, _ := f.tokens.Load(context.Background(), "view")
	if token.Position != 4 || token.Gaps != nil {
		t.Fatalf("expected token 4 without gaps, got %+v", token)
	}
}

func TestProcessor_ProcessAvailable_DropsGapAfterTimeout(t *testing.T) {
	f := newFixture(t)
	log := &lateLog{}
	log.commit(creditRecord(t, 1), 1)
	log.commit(creditRecord(t, 3), 3)

	var seen []int64
	p := f.processorOn(t, log, Config{Name: "view", GapTimeout: time.Minute}, collect(&seen), nil)
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	f.clock.Advance(2 * time.Minute)
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}

	log.commit(creditRecord(t, 2), 2)
	if err := p.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	if !slices.Equal(seen, []int64{1, 3}) {
		t.Fatalf("expected a record committed after its gap expired to be ignored, got %v", seen)
	}
}

func TestProcessor_Reset(t *testing.T) {
	f := newFixture(t)
	f.appendCredit(t, context.Background(), 1)
	f.appendCredit(t, context.Background(), 2)

	var seen []int64
	view := f.processor(t, Config{Name: "view", Transactional: true}, collect(&seen), func(ctx context.Context) error {
		seen = nil
		return nil
	})
	saga := f.processor(t, Config{Name: "saga"}, func(ctx context.Context, env domain.Envelope) error { return nil }, nil)
	group := NewGroup(view, saga)

	if err := group.Drain(context.Background()); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	reset, err := group.ResetAll(context.Background())
	if err != nil || len(reset) != 1 || reset[0] != "view" {
		t.Fatalf("expected only the view to reset, got %v / %v", reset, err)
	}
	if err := saga.Reset(context.Background()); !errors.Is(err, ErrNotResettable) {
		t.Fatalf("expected ErrNotResettable, got %v", err)
	}
	if err := view.ProcessAvailable(context.Background()); err != nil {
		t.Fatalf("ProcessAvailable returned error: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected the view to be rebuilt from the start, got %v", seen)
	}
	if saga.Position() != 2 {
		t.Fatalf("expected the saga to keep its position, got %d", saga.Position())
	}
	if _, err := group.Get("missing"); !errors.Is(err, ErrUnknownProcessor) {
		t.Fatalf("expected ErrUnknownProcessor, got %v", err)
	}
}
