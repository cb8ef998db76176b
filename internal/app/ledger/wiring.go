// Package ledger composes the ledger: command handlers, the settlement saga,
// deadlines, projections and the application service on top of them.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"ledger/internal/aggregate"
	"ledger/internal/clock"
	"ledger/internal/command"
	"ledger/internal/deadline"
	"ledger/internal/domain"
	"ledger/internal/lock"
	"ledger/internal/metrics"
	"ledger/internal/processing"
	"ledger/internal/projection"
	"ledger/internal/repository/accounts_repo"
	accountmem "ledger/internal/repository/accounts_repo/memory"
	accountpg "ledger/internal/repository/accounts_repo/postgres"
	"ledger/internal/repository/constraint_repo"
	constraintmem "ledger/internal/repository/constraint_repo/memory"
	constraintpg "ledger/internal/repository/constraint_repo/postgres"
	"ledger/internal/repository/deadline_repo"
	deadlinemem "ledger/internal/repository/deadline_repo/memory"
	deadlinepg "ledger/internal/repository/deadline_repo/postgres"
	"ledger/internal/repository/event_repo"
	eventmem "ledger/internal/repository/event_repo/memory"
	eventpg "ledger/internal/repository/event_repo/postgres"
	"ledger/internal/repository/payments_repo"
	paymentmem "ledger/internal/repository/payments_repo/memory"
	paymentpg "ledger/internal/repository/payments_repo/postgres"
	"ledger/internal/repository/saga_repo"
	sagamem "ledger/internal/repository/saga_repo/memory"
	sagapg "ledger/internal/repository/saga_repo/postgres"
	"ledger/internal/repository/snapshot_repo"
	snapshotmem "ledger/internal/repository/snapshot_repo/memory"
	snapshotpg "ledger/internal/repository/snapshot_repo/postgres"
	"ledger/internal/repository/token_repo"
	tokenmem "ledger/internal/repository/token_repo/memory"
	tokenpg "ledger/internal/repository/token_repo/postgres"
	"ledger/internal/saga"
	"ledger/internal/uow"

	"go.uber.org/zap"
)

// Stores is every repository the ledger writes to. All of them must honor the
// unit of work carried in the context.
type Stores struct {
	Events       event_repo.EventRepository
	Snapshots    snapshot_repo.SnapshotRepository
	Sagas        saga_repo.SagaRepository
	Deadlines    deadline_repo.DeadlineRepository
	Emails       constraint_repo.EmailConstraintRepository
	Tokens       token_repo.TokenRepository
	AccountViews accounts_repo.AccountRepository
	PaymentViews payments_repo.PaymentRepository
}

func MemoryStores(clk clock.Clock) Stores {
	return Stores{
		Events:       eventmem.NewEventRepository(clk),
		Snapshots:    snapshotmem.NewSnapshotRepository(),
		Sagas:        sagamem.NewSagaRepository(),
		Deadlines:    deadlinemem.NewDeadlineRepository(),
		Emails:       constraintmem.NewEmailConstraintRepository(),
		Tokens:       tokenmem.NewTokenRepository(),
		AccountViews: accountmem.NewAccountRepository(),
		PaymentViews: paymentmem.NewPaymentRepository(),
	}
}

// PostgresStores backs every store with one database. Repositories join the
// transaction of the unit of work in the context.
func PostgresStores(db *sql.DB, clk clock.Clock) Stores {
	return Stores{
		Events:       eventpg.NewEventRepository(db),
		Snapshots:    snapshotpg.NewSnapshotRepository(db),
		Sagas:        sagapg.NewSagaRepository(db),
		Deadlines:    deadlinepg.NewDeadlineRepository(db),
		Emails:       constraintpg.NewEmailConstraintRepository(db),
		Tokens:       tokenpg.NewTokenRepository(db, clk),
		AccountViews: accountpg.NewAccountRepository(db),
		PaymentViews: paymentpg.NewPaymentRepository(db),
	}
}

type Options struct {
	SnapshotThreshold  int
	ScheduleMinLead    time.Duration
	DeadlineRetryDelay time.Duration
	PollInterval       time.Duration
	BatchSize          int
	GapTimeout         time.Duration
	GapWindow          int64
}

func DefaultOptions() Options {
	return Options{
		SnapshotThreshold:  3,
		ScheduleMinLead:    time.Minute,
		DeadlineRetryDelay: 5 * time.Second,
		PollInterval:       500 * time.Millisecond,
		BatchSize:          100,
		GapWindow:          1024,
	}
}

type Application struct {
	Service    *Service
	Bus        *command.Bus
	Processors *processing.Group
	Deadlines  *deadline.Manager
	Metrics    *metrics.Collector

	stores Stores
	units  *uow.Manager
	clock  clock.Clock
	opts   Options
	logger *zap.Logger
}

func NewApplication(
	stores Stores,
	units *uow.Manager,
	locker lock.Locker,
	clk clock.Clock,
	collector *metrics.Collector,
	opts Options,
	logger *zap.Logger,
) *Application {
	bus := command.NewBus(locker, units, collector, logger.With(zap.String("component", "CommandBus")))

	accounts := aggregate.NewRepository(aggregate.Config[*domain.Account]{
		StreamType:        domain.AccountStreamType,
		New:               domain.NewAccount,
		Events:            stores.Events,
		Snapshots:         stores.Snapshots,
		SnapshotThreshold: opts.SnapshotThreshold,
		Clock:             clk,
		Metrics:           collector,
		Logger:            logger.With(zap.String("component", "AccountRepository")),
	})
	payments := aggregate.NewRepository(aggregate.Config[*domain.Payment]{
		StreamType: domain.PaymentStreamType,
		New:        domain.NewPayment,
		Events:     stores.Events,
		Clock:      clk,
		Metrics:    collector,
		Logger:     logger.With(zap.String("component", "PaymentRepository")),
	})

	uniqueness := projection.NewEmailUniqueness(stores.Emails, logger.With(zap.String("component", "EmailUniqueness")))
	accounts.Subscribe(uniqueness.Handle)

	deadlines := deadline.NewManager(stores.Deadlines, clk, opts.DeadlineRetryDelay, collector,
		logger.With(zap.String("component", "DeadlineManager")))
	deadlines.SetDispatcher(bus)

	handlers := &commandHandlers{
		accounts:   accounts,
		payments:   payments,
		deadlines:  deadlines,
		dispatcher: bus,
		clock:      clk,
		minLead:    opts.ScheduleMinLead,
		logger:     logger.With(zap.String("component", "CommandHandlers")),
	}
	handlers.register(bus)

	app := &Application{
		Bus:        bus,
		Processors: processing.NewGroup(),
		Deadlines:  deadlines,
		Metrics:    collector,
		stores:     stores,
		units:      units,
		clock:      clk,
		opts:       opts,
		logger:     logger,
	}

	accountView := projection.NewAccountView(stores.AccountViews)
	paymentView := projection.NewPaymentView(stores.PaymentViews)
	settlement := saga.NewManager(stores.Sagas, saga.NewStreamHistory(stores.Events), bus, clk, collector, logger.With(zap.String("component", "SettlementSaga")))

	app.Processors.Add(app.NewTrackingProcessor(projection.AccountViewProcessor, true, accountView.Handle, accountView.Reset))
	app.Processors.Add(app.NewTrackingProcessor(projection.PaymentViewProcessor, true, paymentView.Handle, paymentView.Reset))
	app.Processors.Add(app.NewTrackingProcessor(saga.ProcessorName, false, settlement.Handle, nil))

	accounts.OnCommitted(app.Processors.WakeAll)
	payments.OnCommitted(app.Processors.WakeAll)

	app.Service = NewService(bus, stores, clk, logger.With(zap.String("component", "LedgerService")))
	return app
}

// NewTrackingProcessor builds a processor with the application's polling
// settings. The caller adds it to Processors.
func (a *Application) NewTrackingProcessor(name string, transactional bool, h processing.Handler, reset func(ctx context.Context) error) *processing.Processor {
	return processing.NewProcessor(processing.Config{
		Name:          name,
		Transactional: transactional,
		BatchSize:     a.opts.BatchSize,
		PollInterval:  a.opts.PollInterval,
		GapTimeout:    a.opts.GapTimeout,
		GapWindow:     a.opts.GapWindow,
	}, h, reset, a.stores.Events, a.stores.Tokens, a.units, a.clock, a.Metrics,
		a.logger.With(zap.String("component", "TrackingProcessor")))
}
