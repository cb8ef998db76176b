package projection

import (
	"context"

	"ledger/internal/domain"
	"ledger/internal/repository/payments_repo"
)

const PaymentViewProcessor = "payment-view"

type PaymentView struct {
	views payments_repo.PaymentRepository
}

func NewPaymentView(views payments_repo.PaymentRepository) *PaymentView {
	return &PaymentView{views: views}
}

func (p *PaymentView) Handle(ctx context.Context, env domain.Envelope) error {
	switch ev := env.Event.(type) {
	case domain.PaymentCreated:
		return p.views.Insert(ctx, domain.PaymentView{
			PaymentID:                ev.PaymentID,
			SourceAccountID:          ev.SourceAccountID,
			DestinationAccountID:     ev.DestinationAccountID,
			Amount:                   ev.Amount,
			Status:                   ev.Status,
			Kind:                     ev.Kind,
			SettlementInitiationTime: ev.SettlementInitiationTime,
		})
	case domain.SettlementTriggered:
		return p.views.UpdateStatus(ctx, ev.PaymentID, domain.PaymentStatusInProgress)
	case domain.PaymentCompleted:
		return p.views.UpdateStatus(ctx, ev.PaymentID, domain.PaymentStatusCompleted)
	case domain.PaymentFailed:
		return p.views.UpdateStatus(ctx, ev.PaymentID, domain.PaymentStatusFailed)
	case domain.ScheduledPaymentCancelled:
		return p.views.UpdateStatus(ctx, ev.PaymentID, domain.PaymentStatusCancelled)
	}
	return nil
}

func (p *PaymentView) Reset(ctx context.Context) error {
	return p.views.Truncate(ctx)
}
