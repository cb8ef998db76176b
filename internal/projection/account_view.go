package projection

import (
	"context"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

const AccountViewProcessor = "account-view"

type AccountView struct {
	views accounts_repo.AccountRepository
}

func NewAccountView(views accounts_repo.AccountRepository) *AccountView {
	return &AccountView{views: views}
}

func (p *AccountView) Handle(ctx context.Context, env domain.Envelope) error {
	switch ev := env.Event.(type) {
	case domain.AccountCreated:
		return p.views.Insert(ctx, domain.AccountView{
			AccountID:    ev.AccountID,
			EmailAddress: ev.EmailAddress,
			Balance:      ev.OpeningBalance,
		})
	case domain.AccountCredited:
		return p.views.AdjustBalance(ctx, ev.AccountID, ev.Amount)
	case domain.AccountDebited:
		return p.views.AdjustBalance(ctx, ev.AccountID, -ev.Amount)
	}
	return nil
}

func (p *AccountView) Reset(ctx context.Context) error {
	return p.views.Truncate(ctx)
}
