// Package saga hosts the settlement process manager that moves a payment's
// amount from the source account to the destination account.
package saga

import (
	"time"

	"ledger/internal/domain"

	"github.com/google/uuid"
)

// Result is what one event does to a saga instance. State is nil when no
// instance exists after the event. Reissue marks commands that belong to the
// phase the instance was already in, so they may have taken effect before.
type Result struct {
	State    *domain.SettlementSaga
	Commands []domain.Command
	End      bool
	Reissue  bool
}

func (r Result) changed(before *domain.SettlementSaga) bool {
	return len(r.Commands) > 0 || r.End || r.State != before
}

// CorrelationID returns the payment id an event is routed on.
func CorrelationID(event domain.Event) (uuid.UUID, bool) {
	switch ev := event.(type) {
	case domain.SettlementTriggered:
		return ev.PaymentID, true
	case domain.AccountDebited:
		return ev.PaymentID, true
	case domain.AccountCredited:
		return ev.PaymentID, true
	}
	return uuid.Nil, false
}

// Transition is free of side effects. An event the instance has already
// moved past yields no commands. An event redelivered into the phase it
// produced yields that phase's commands again, marked Reissue.
func Transition(state *domain.SettlementSaga, event domain.Event, now time.Time) Result {
	switch ev := event.(type) {
	case domain.SettlementTriggered:
		if state != nil {
			if state.Phase == domain.SagaPhaseDebiting {
				return Result{State: state, Commands: []domain.Command{debit(state)}, Reissue: true}
			}
			return Result{State: state}
		}
		started := &domain.SettlementSaga{
			PaymentID:            ev.PaymentID,
			Phase:                domain.SagaPhaseDebiting,
			SourceAccountID:      ev.SourceAccountID,
			DestinationAccountID: ev.DestinationAccountID,
			Amount:               ev.Amount,
			StartedAt:            now,
			UpdatedAt:            now,
		}
		return Result{State: started, Commands: []domain.Command{debit(started)}}

	case domain.AccountDebited:
		if state == nil {
			return Result{}
		}
		switch state.Phase {
		case domain.SagaPhaseDebiting:
			next := *state
			next.Phase = domain.SagaPhaseCrediting
			next.UpdatedAt = now
			return Result{State: &next, Commands: []domain.Command{credit(&next)}}
		case domain.SagaPhaseCrediting:
			return Result{State: state, Commands: []domain.Command{credit(state)}, Reissue: true}
		}
		return Result{State: state}

	case domain.AccountCredited:
		if state == nil || state.Phase != domain.SagaPhaseCrediting {
			return Result{State: state}
		}
		return Result{
			Commands: []domain.Command{domain.MarkPaymentCompleted{PaymentID: state.PaymentID}},
			End:      true,
		}
	}
	return Result{State: state}
}

func debit(s *domain.SettlementSaga) domain.DebitAccount {
	return domain.DebitAccount{AccountID: s.SourceAccountID, PaymentID: s.PaymentID, Amount: s.Amount}
}

func credit(s *domain.SettlementSaga) domain.CreditAccount {
	return domain.CreditAccount{AccountID: s.DestinationAccountID, PaymentID: s.PaymentID, Amount: s.Amount}
}
