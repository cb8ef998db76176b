package saga

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/clock"
	"ledger/internal/command"
	"ledger/internal/domain"
	"ledger/internal/metrics"
	"ledger/internal/repository/saga_repo"

	"go.uber.org/zap"
)

const ProcessorName = "settlement-saga"

// Manager is the tracking handler hosting settlement instances.
type Manager struct {
	sagas      saga_repo.SagaRepository
	history    History
	dispatcher command.Dispatcher
	clock      clock.Clock
	metrics    *metrics.Collector
	logger     *zap.Logger
}

func NewManager(sagas saga_repo.SagaRepository, history History, dispatcher command.Dispatcher, clk clock.Clock, metrics *metrics.Collector, logger *zap.Logger) *Manager {
	return &Manager{
		sagas:      sagas,
		history:    history,
		dispatcher: dispatcher,
		clock:      clk,
		metrics:    metrics,
		logger:     logger,
	}
}

// Handle applies one event. The instance is saved in its new phase before any
// command goes out, so a redelivered event always finds the phase that issued
// its commands. Commands are sent one at a time.
func (m *Manager) Handle(ctx context.Context, env domain.Envelope) error {
	paymentID, ok := CorrelationID(env.Event)
	if !ok {
		return nil
	}

	state, err := m.sagas.Find(ctx, paymentID)
	if err != nil {
		if !errors.Is(err, saga_repo.ErrSagaNotFound) {
			return fmt.Errorf("failed to load settlement saga %s: %w", paymentID, err)
		}
		state = nil
	}

	result := Transition(state, env.Event, m.clock.Now())
	if !result.changed(state) {
		return nil
	}

	if result.State != nil && result.State != state {
		if err := m.sagas.Save(ctx, *result.State); err != nil {
			return fmt.Errorf("failed to save settlement saga %s: %w", paymentID, err)
		}
		m.logger.Debug("Settlement saga advanced",
			zap.String("payment_id", paymentID.String()),
			zap.String("phase", string(result.State.Phase)),
		)
	}

	for _, cmd := range result.Commands {
		if result.Reissue {
			applied, err := m.history.Applied(ctx, cmd)
			if err != nil {
				return fmt.Errorf("failed to check %s for saga %s: %w", cmd.CommandType(), paymentID, err)
			}
			if applied {
				m.logger.Info("Settlement command already applied, not reissuing",
					zap.String("payment_id", paymentID.String()),
					zap.String("command", cmd.CommandType()),
				)
				continue
			}
		}
		if err := m.dispatcher.SendAndWait(ctx, cmd); err != nil {
			if domain.IsRejection(err) {
				m.metrics.RecordSagaFailure()
				m.logger.Error("Settlement saga command rejected, payment left unsettled",
					zap.String("payment_id", paymentID.String()),
					zap.String("event", env.Record.Type),
					zap.String("command", cmd.CommandType()),
					zap.Error(err),
				)
				m.refreshActive(ctx)
				return nil
			}
			return fmt.Errorf("failed to dispatch %s for saga %s: %w", cmd.CommandType(), paymentID, err)
		}
	}

	if result.End {
		if err := m.sagas.Delete(ctx, paymentID); err != nil {
			return fmt.Errorf("failed to end settlement saga %s: %w", paymentID, err)
		}
		m.logger.Info("Settlement saga ended", zap.String("payment_id", paymentID.String()))
	}

	m.refreshActive(ctx)
	return nil
}

func (m *Manager) refreshActive(ctx context.Context) {
	active, err := m.sagas.CountActive(ctx)
	if err != nil {
		m.logger.Warn("Failed to count active settlement sagas", zap.Error(err))
		return
	}
	m.metrics.SetActiveSagas(active)
}
