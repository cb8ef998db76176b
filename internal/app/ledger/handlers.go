package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledger/internal/aggregate"
	"ledger/internal/clock"
	"ledger/internal/command"
	"ledger/internal/deadline"
	"ledger/internal/domain"
	"ledger/internal/repository/event_repo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// commandHandlers decides every command against its aggregate.
type commandHandlers struct {
	accounts   *aggregate.Repository[*domain.Account]
	payments   *aggregate.Repository[*domain.Payment]
	deadlines  *deadline.Manager
	dispatcher command.Dispatcher
	clock      clock.Clock
	minLead    time.Duration
	logger     *zap.Logger
}

func (h *commandHandlers) register(bus *command.Bus) {
	bus.Register(domain.CommandCreateAccount, command.Handle(h.createAccount))
	bus.Register(domain.CommandCreditAccount, command.Handle(h.creditAccount))
	bus.Register(domain.CommandDebitAccount, command.Handle(h.debitAccount))
	bus.Register(domain.CommandCreateAccountsInTransaction, command.Handle(h.createAccountsInTransaction))
	bus.Register(domain.CommandCreateImmediatePayment, command.Handle(h.createImmediatePayment))
	bus.Register(domain.CommandCreateScheduledPayment, command.Handle(h.createScheduledPayment))
	bus.Register(domain.CommandTriggerSettlement, command.Handle(h.triggerSettlement))
	bus.Register(domain.CommandCancelScheduledPayment, command.Handle(h.cancelScheduledPayment))
	bus.Register(domain.CommandMarkPaymentCompleted, command.Handle(h.markPaymentCompleted))
	bus.Register(domain.CommandMarkPaymentFailed, command.Handle(h.markPaymentFailed))
	bus.Register(domain.CommandDeliverDeadline, command.Handle(h.deliverDeadline))
}

// createAccount leaves "already exists" to the event store: appending at
// version 0 to a stream that has events is a conflict.
func (h *commandHandlers) createAccount(ctx context.Context, cmd domain.CreateAccount) error {
	events, err := domain.OpenAccount(cmd)
	if err != nil {
		return err
	}
	_, err = h.accounts.Save(ctx, cmd.AccountID, domain.NewAccount(cmd.AccountID), 0, events)
	if errors.Is(err, event_repo.ErrConcurrencyConflict) {
		return fmt.Errorf("%w: %s", domain.ErrAccountAlreadyExists, cmd.AccountID)
	}
	return err
}

func (h *commandHandlers) creditAccount(ctx context.Context, cmd domain.CreditAccount) error {
	acc, version, err := h.accounts.Load(ctx, cmd.AccountID)
	if err != nil {
		return err
	}
	events, err := acc.Credit(cmd)
	if err != nil {
		return fmt.Errorf("credit %s: %w", cmd.AccountID, err)
	}
	_, err = h.accounts.Save(ctx, cmd.AccountID, acc, version, events)
	return err
}

func (h *commandHandlers) debitAccount(ctx context.Context, cmd domain.DebitAccount) error {
	acc, version, err := h.accounts.Load(ctx, cmd.AccountID)
	if err != nil {
		return err
	}
	events, err := acc.Debit(cmd)
	if err != nil {
		return fmt.Errorf("debit %s: %w", cmd.AccountID, err)
	}
	_, err = h.accounts.Save(ctx, cmd.AccountID, acc, version, events)
	return err
}

// createAccountsInTransaction dispatches each creation on the calling
// goroutine. The bus already opened a unit for this command, so every
// creation joins it and the first failure rolls all of them back.
func (h *commandHandlers) createAccountsInTransaction(ctx context.Context, cmd domain.CreateAccountsInTransaction) error {
	for i, create := range cmd.Commands {
		if err := h.dispatcher.SendAndWait(ctx, create); err != nil {
			return fmt.Errorf("account %d of %d in batch: %w", i+1, len(cmd.Commands), err)
		}
	}
	return nil
}

func (h *commandHandlers) loadNewPayment(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	p, version, err := h.payments.Load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if version > 0 || p.Exists() {
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentAlreadyExists, paymentID)
	}
	return p, nil
}

func (h *commandHandlers) savePayment(ctx context.Context, p *domain.Payment, version int64, events []domain.Event) error {
	_, err := h.payments.Save(ctx, p.ID, p, version, events)
	if version == 0 && errors.Is(err, event_repo.ErrConcurrencyConflict) {
		return fmt.Errorf("%w: %s", domain.ErrPaymentAlreadyExists, p.ID)
	}
	return err
}

func (h *commandHandlers) createImmediatePayment(ctx context.Context, cmd domain.CreateImmediatePayment) error {
	p, err := h.loadNewPayment(ctx, cmd.PaymentID)
	if err != nil {
		return err
	}
	events, err := domain.CreateImmediate(cmd, h.clock.Now())
	if err != nil {
		return err
	}
	return h.savePayment(ctx, p, 0, events)
}

func (h *commandHandlers) createScheduledPayment(ctx context.Context, cmd domain.CreateScheduledPayment) error {
	p, err := h.loadNewPayment(ctx, cmd.PaymentID)
	if err != nil {
		return err
	}
	if err := domain.ValidateScheduled(cmd, h.clock.Now(), h.minLead); err != nil {
		return err
	}
	token, err := h.deadlines.Schedule(ctx, cmd.SettlementInstant, domain.TriggerScheduledPaymentDeadline,
		cmd.PaymentID, domain.NewSettlementDeadlinePayload(cmd.SettlementInstant))
	if err != nil {
		return err
	}
	return h.savePayment(ctx, p, 0, domain.CreateScheduled(cmd, token))
}

func (h *commandHandlers) triggerSettlement(ctx context.Context, cmd domain.TriggerSettlement) error {
	p, version, err := h.payments.Load(ctx, cmd.PaymentID)
	if err != nil {
		return err
	}
	events, err := p.TriggerSettlement(h.clock.Now())
	if err != nil {
		return err
	}
	if len(events) == 0 {
		h.warnNoOp(cmd, p)
		return nil
	}
	if p.Schedule != nil {
		if err := h.deadlines.Cancel(ctx, domain.TriggerScheduledPaymentDeadline, p.Schedule.DeadlineToken); err != nil {
			return err
		}
	}
	return h.savePayment(ctx, p, version, events)
}

func (h *commandHandlers) cancelScheduledPayment(ctx context.Context, cmd domain.CancelScheduledPayment) error {
	p, version, err := h.payments.Load(ctx, cmd.PaymentID)
	if err != nil {
		return err
	}
	events, err := p.CancelScheduled()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		h.warnNoOp(cmd, p)
		return nil
	}
	cancelled := events[0].(domain.ScheduledPaymentCancelled)
	if err := h.deadlines.Cancel(ctx, domain.TriggerScheduledPaymentDeadline, cancelled.DeadlineToken); err != nil {
		return err
	}
	return h.savePayment(ctx, p, version, events)
}

func (h *commandHandlers) markPaymentCompleted(ctx context.Context, cmd domain.MarkPaymentCompleted) error {
	p, version, err := h.payments.Load(ctx, cmd.PaymentID)
	if err != nil {
		return err
	}
	events, err := p.MarkCompleted()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		h.warnNoOp(cmd, p)
		return nil
	}
	return h.savePayment(ctx, p, version, events)
}

func (h *commandHandlers) markPaymentFailed(ctx context.Context, cmd domain.MarkPaymentFailed) error {
	p, version, err := h.payments.Load(ctx, cmd.PaymentID)
	if err != nil {
		return err
	}
	events, err := p.MarkFailed()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		h.warnNoOp(cmd, p)
		return nil
	}
	return h.savePayment(ctx, p, version, events)
}

// deliverDeadline treats a fired timer as an internal trigger. A payment that
// was cancelled or settled in the meantime ignores it.
func (h *commandHandlers) deliverDeadline(ctx context.Context, cmd domain.DeliverDeadline) error {
	if cmd.Name != domain.TriggerScheduledPaymentDeadline {
		h.logger.Warn("Ignoring deadline with unknown name", zap.String("name", cmd.Name), zap.String("token", cmd.Token))
		return nil
	}
	p, version, err := h.payments.Load(ctx, cmd.AggregateID)
	if err != nil {
		return err
	}
	if !p.Exists() {
		return fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, cmd.AggregateID)
	}
	var payload domain.DeadlinePayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return fmt.Errorf("%w: malformed deadline payload: %v", domain.ErrValidation, err)
	}
	events := p.OnDeadline(payload)
	if len(events) == 0 {
		h.logger.Info("Deadline arrived for payment no longer awaiting it",
			zap.String("payment_id", p.ID.String()),
			zap.String("status", string(p.Status)),
			zap.String("token", cmd.Token),
		)
		return nil
	}
	h.logger.Info("Settlement triggered by deadline", zap.String("payment_id", p.ID.String()), zap.String("message", payload.Message))
	return h.savePayment(ctx, p, version, events)
}

func (h *commandHandlers) warnNoOp(cmd domain.Command, p *domain.Payment) {
	h.logger.Warn("Command has no effect on payment",
		zap.String("command", cmd.CommandType()),
		zap.String("payment_id", p.ID.String()),
		zap.String("status", string(p.Status)),
	)
}
