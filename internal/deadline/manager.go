// Package deadline delivers one-shot timers back to the aggregate that
// registered them.
package deadline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledger/internal/clock"
	"ledger/internal/command"
	"ledger/internal/domain"
	"ledger/internal/metrics"
	"ledger/internal/repository/deadline_repo"
	"ledger/internal/util"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const claimBatchSize = 50

type Manager struct {
	deadlines  deadline_repo.DeadlineRepository
	dispatcher command.Dispatcher
	clock      clock.Clock
	retryDelay time.Duration
	metrics    *metrics.Collector
	logger     *zap.Logger
	cron       *cron.Cron
}

func NewManager(
	deadlines deadline_repo.DeadlineRepository,
	clk clock.Clock,
	retryDelay time.Duration,
	metrics *metrics.Collector,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		deadlines:  deadlines,
		clock:      clk,
		retryDelay: retryDelay,
		metrics:    metrics,
		logger:     logger,
	}
}

// SetDispatcher breaks the construction cycle between the bus, whose handlers
// schedule deadlines, and the manager, which sends DeliverDeadline commands.
func (m *Manager) SetDispatcher(d command.Dispatcher) {
	m.dispatcher = d
}

// Schedule registers a deadline in the caller's unit of work and returns its
// token.
func (m *Manager) Schedule(ctx context.Context, when time.Time, name string, aggregateID uuid.UUID, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode deadline payload %s: %w", name, err)
	}
	d := domain.Deadline{
		Token:       util.NewToken("deadline"),
		Name:        name,
		AggregateID: aggregateID,
		DueAt:       when.UTC(),
		Payload:     raw,
		CreatedAt:   m.clock.Now(),
	}
	if err := m.deadlines.Schedule(ctx, d); err != nil {
		return "", fmt.Errorf("failed to schedule deadline %s: %w", name, err)
	}
	m.logger.Info("Deadline scheduled",
		zap.String("name", name),
		zap.String("token", d.Token),
		zap.String("aggregate_id", aggregateID.String()),
		zap.Time("due_at", d.DueAt),
	)
	return d.Token, nil
}

// Cancel is a no-op for deadlines that already fired or never existed.
func (m *Manager) Cancel(ctx context.Context, name, token string) error {
	if token == "" {
		return nil
	}
	if err := m.deadlines.Cancel(ctx, name, token); err != nil {
		return fmt.Errorf("failed to cancel deadline %s: %w", token, err)
	}
	m.logger.Info("Deadline cancelled", zap.String("name", name), zap.String("token", token))
	return nil
}

// FireDue claims every deadline due now and delivers it. A claimed deadline
// is gone from the store, so it fires at most once unless delivery fails for
// infrastructure reasons, in which case it is put back after the retry delay.
func (m *Manager) FireDue(ctx context.Context) (int, error) {
	fired := 0
	for {
		now := m.clock.Now()
		due, err := m.deadlines.ClaimDue(ctx, now, claimBatchSize)
		if err != nil {
			return fired, fmt.Errorf("failed to claim due deadlines: %w", err)
		}
		for _, d := range due {
			if m.deliver(ctx, d, now) {
				fired++
			}
		}
		if len(due) < claimBatchSize {
			return fired, nil
		}
	}
}

func (m *Manager) deliver(ctx context.Context, d domain.Deadline, now time.Time) bool {
	log := m.logger.With(
		zap.String("name", d.Name),
		zap.String("token", d.Token),
		zap.String("aggregate_id", d.AggregateID.String()),
	)
	err := m.dispatcher.SendAndWait(ctx, domain.DeliverDeadline{
		AggregateID: d.AggregateID,
		Name:        d.Name,
		Token:       d.Token,
		Payload:     d.Payload,
	})
	switch {
	case err == nil:
		m.metrics.RecordDeadlineFired()
		log.Info("Deadline fired", zap.Time("due_at", d.DueAt))
		return true
	case domain.IsRejection(err):
		log.Error("Deadline delivery rejected, dropping it", zap.Error(err))
		return false
	}

	d.DueAt = now.Add(m.retryDelay)
	if rescheduleErr := m.deadlines.Schedule(ctx, d); rescheduleErr != nil {
		log.Error("Failed to reschedule deadline after delivery failure",
			zap.NamedError("cause", err), zap.Error(rescheduleErr))
		return false
	}
	log.Warn("Deadline delivery failed, rescheduled", zap.Time("due_at", d.DueAt), zap.Error(err))
	return false
}

// Start runs FireDue on the given cron schedule, for example "@every 1s".
func (m *Manager) Start(schedule string) error {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(m.logger))
	m.cron = cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	_, err := m.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := m.FireDue(ctx); err != nil {
			m.logger.Error("Deadline sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule deadline sweep %q: %w", schedule, err)
	}
	m.logger.Info("Scheduled deadline sweep", zap.String("schedule", schedule))
	m.cron.Start()
	return nil
}

// Stop returns a context that is done once a running sweep finished.
func (m *Manager) Stop() context.Context {
	if m.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return m.cron.Stop()
}

// Pending lists deadlines not yet fired.
func (m *Manager) Pending(ctx context.Context) ([]domain.Deadline, error) {
	return m.deadlines.Pending(ctx)
}
