package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ledger/internal/clock"
	"ledger/internal/command"
	"ledger/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConsistencyMode selects how a batch of account creations enforces the
// unique email constraint.
type ConsistencyMode string

const (
	// ConsistencyPerCommand dispatches every creation on its own. Valid
	// creations persist even when a later one is rejected.
	ConsistencyPerCommand ConsistencyMode = "PER_COMMAND"
	// ConsistencyPerTransaction runs the whole batch in one unit of work. One
	// rejection rolls every creation back.
	ConsistencyPerTransaction ConsistencyMode = "PER_TRANSACTION"
)

type Rejection struct {
	AccountID    uuid.UUID `json:"accountId"`
	EmailAddress string    `json:"emailAddress"`
	Error        string    `json:"error"`
}

type BatchResult struct {
	Mode     ConsistencyMode `json:"mode"`
	Created  []uuid.UUID     `json:"created"`
	Rejected []Rejection     `json:"rejected"`
}

type Service struct {
	bus    command.Dispatcher
	stores Stores
	clock  clock.Clock
	logger *zap.Logger
}

func NewService(bus command.Dispatcher, stores Stores, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{bus: bus, stores: stores, clock: clk, logger: logger}
}

// CreateAccount returns the account as stored, with the email address trimmed.
func (s *Service) CreateAccount(ctx context.Context, email string) (*domain.AccountView, error) {
	cmd := domain.CreateAccount{AccountID: uuid.New(), EmailAddress: strings.TrimSpace(email)}
	if err := s.bus.SendAndWait(ctx, cmd); err != nil {
		return nil, err
	}
	s.logger.Info("Account created", zap.String("account_id", cmd.AccountID.String()), zap.String("email", cmd.EmailAddress))
	return &domain.AccountView{AccountID: cmd.AccountID, EmailAddress: cmd.EmailAddress}, nil
}

// CreateAccounts returns an error only for infrastructure failures. Domain
// rejections are reported in the result.
func (s *Service) CreateAccounts(ctx context.Context, cmds []domain.CreateAccount, mode ConsistencyMode) (*BatchResult, error) {
	result := &BatchResult{Mode: mode, Created: []uuid.UUID{}, Rejected: []Rejection{}}

	switch mode {
	case ConsistencyPerCommand:
		for _, cmd := range cmds {
			err := s.bus.SendAndWait(ctx, cmd)
			switch {
			case err == nil:
				result.Created = append(result.Created, cmd.AccountID)
			case domain.IsRejection(err):
				result.Rejected = append(result.Rejected, Rejection{AccountID: cmd.AccountID, EmailAddress: cmd.EmailAddress, Error: err.Error()})
			default:
				return result, err
			}
		}

	case ConsistencyPerTransaction:
		err := s.bus.SendAndWait(ctx, domain.CreateAccountsInTransaction{Commands: cmds})
		switch {
		case err == nil:
			for _, cmd := range cmds {
				result.Created = append(result.Created, cmd.AccountID)
			}
		case domain.IsRejection(err):
			for _, cmd := range cmds {
				result.Rejected = append(result.Rejected, Rejection{AccountID: cmd.AccountID, EmailAddress: cmd.EmailAddress, Error: err.Error()})
			}
		default:
			return result, err
		}

	default:
		return nil, fmt.Errorf("%w: unknown consistency mode %q", domain.ErrValidation, mode)
	}

	s.logger.Info("Account batch processed",
		zap.String("mode", string(mode)),
		zap.Int("created", len(result.Created)),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

func (s *Service) MakePayment(ctx context.Context, source, destination uuid.UUID, amount int64) (uuid.UUID, error) {
	cmd := domain.CreateImmediatePayment{
		PaymentID:            uuid.New(),
		SourceAccountID:      source,
		DestinationAccountID: destination,
		Amount:               amount,
	}
	if err := s.bus.SendAndWait(ctx, cmd); err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("Payment created", zap.String("payment_id", cmd.PaymentID.String()), zap.Int64("amount", amount))
	return cmd.PaymentID, nil
}

func (s *Service) MakeScheduledPayment(ctx context.Context, source, destination uuid.UUID, amount int64, settlementInstant time.Time) (uuid.UUID, error) {
	cmd := domain.CreateScheduledPayment{
		PaymentID:            uuid.New(),
		SourceAccountID:      source,
		DestinationAccountID: destination,
		Amount:               amount,
		SettlementInstant:    settlementInstant.UTC(),
	}
	if err := s.bus.SendAndWait(ctx, cmd); err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("Scheduled payment created",
		zap.String("payment_id", cmd.PaymentID.String()),
		zap.Int64("amount", amount),
		zap.Time("settlement_instant", cmd.SettlementInstant),
	)
	return cmd.PaymentID, nil
}

func (s *Service) CancelScheduledPayment(ctx context.Context, paymentID uuid.UUID) error {
	return s.bus.SendAndWait(ctx, domain.CancelScheduledPayment{PaymentID: paymentID})
}

func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.AccountView, error) {
	return s.stores.AccountViews.GetByID(ctx, accountID)
}

func (s *Service) ListAccounts(ctx context.Context) ([]domain.AccountView, error) {
	return s.stores.AccountViews.List(ctx)
}

func (s *Service) GetPayment(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentView, error) {
	return s.stores.PaymentViews.GetByID(ctx, paymentID)
}

func (s *Service) ListPayments(ctx context.Context) ([]domain.PaymentView, error) {
	return s.stores.PaymentViews.List(ctx)
}

// GetScheduledPayment only returns payments of the scheduled kind.
func (s *Service) GetScheduledPayment(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentView, error) {
	view, err := s.stores.PaymentViews.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if view.Kind != domain.PaymentKindScheduled {
		return nil, fmt.Errorf("%w: %s is not a scheduled payment", domain.ErrPaymentNotFound, paymentID)
	}
	return view, nil
}
