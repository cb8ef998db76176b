// Package processing runs tracking event processors: named readers of the
// global event log that remember how far they got.
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/metrics"
	"ledger/internal/repository/event_repo"
	"ledger/internal/repository/token_repo"
	"ledger/internal/uow"

	"go.uber.org/zap"
)

var ErrNotResettable = errors.New("processor cannot be reset")

type Handler func(ctx context.Context, env domain.Envelope) error

type Config struct {
	Name string
	// Transactional processors store their token in the same unit of work as
	// the handler's writes.
	Transactional bool
	BatchSize     int
	PollInterval  time.Duration
	// GapTimeout is how long a missing position stays in the token in case
	// its transaction commits late. Zero drops it on the next poll.
	GapTimeout time.Duration
	// GapWindow bounds how far behind the token a gap is kept.
	GapWindow int64
}

type Status struct {
	Name       string `json:"name"`
	Position   int64  `json:"position"`
	CaughtUp   bool   `json:"caughtUp"`
	Error      string `json:"error,omitempty"`
	Resettable bool   `json:"resettable"`
}

type Processor struct {
	cfg     Config
	handler Handler
	reset   func(ctx context.Context) error
	events  event_repo.EventRepository
	tokens  token_repo.TokenRepository
	units   *uow.Manager
	clock   clock.Clock
	metrics *metrics.Collector
	logger  *zap.Logger
	wake    chan struct{}

	// run serializes batches and guards gapSeen; state guards the fields below it.
	run      sync.Mutex
	gapSeen  map[int64]time.Time
	state    sync.Mutex
	position int64
	caughtUp bool
	lastErr  error
}

// NewProcessor builds a processor. reset may be nil, which makes the
// processor non-resettable.
func NewProcessor(
	cfg Config,
	handler Handler,
	reset func(ctx context.Context) error,
	events event_repo.EventRepository,
	tokens token_repo.TokenRepository,
	units *uow.Manager,
	clk clock.Clock,
	metrics *metrics.Collector,
	logger *zap.Logger,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.GapWindow <= 0 {
		cfg.GapWindow = 1024
	}
	return &Processor{
		cfg:     cfg,
		handler: handler,
		reset:   reset,
		events:  events,
		tokens:  tokens,
		units:   units,
		clock:   clk,
		metrics: metrics,
		logger:  logger.With(zap.String("processor", cfg.Name)),
		wake:    make(chan struct{}, 1),
		gapSeen: make(map[int64]time.Time),
	}
}

func (p *Processor) Name() string {
	return p.cfg.Name
}

// Wake asks the running loop to poll now. It never blocks.
func (p *Processor) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx ends.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("Starting tracking processor", zap.Duration("poll_interval", p.cfg.PollInterval))
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.ProcessAvailable(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("Tracking processor batch failed, will retry", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			p.logger.Info("Tracking processor stopped", zap.Int64("position", p.Position()))
			return nil
		case <-ticker.C:
		case <-p.wake:
		}
	}
}

// ProcessAvailable handles every committed record the token has not seen and
// returns once caught up or failed. A missing position never blocks: records
// after it are handled and the position is kept as a gap in the token.
func (p *Processor) ProcessAvailable(ctx context.Context) error {
	p.run.Lock()
	defer p.run.Unlock()

	token, err := p.tokens.Load(ctx, p.cfg.Name)
	if err != nil {
		return p.fail(fmt.Errorf("failed to load token for %s: %w", p.cfg.Name, err))
	}
	if expired := p.expireGaps(token); len(expired.Gaps) != len(token.Gaps) {
		if err := p.tokens.Store(ctx, p.cfg.Name, expired); err != nil {
			return p.fail(fmt.Errorf("failed to store token for %s: %w", p.cfg.Name, err))
		}
		token = expired
	}
	p.setPosition(token.Position, false)

	cursor := token.ReadFrom()
	for {
		records, err := p.events.ReadAll(ctx, cursor, p.cfg.BatchSize)
		if err != nil {
			return p.fail(fmt.Errorf("failed to read events after %d: %w", cursor, err))
		}

		for _, rec := range records {
			cursor = rec.Position
			if !token.Pending(rec.Position) {
				continue
			}
			next := token.Advance(rec.Position, p.cfg.GapWindow)
			if err := p.handle(ctx, rec, next); err != nil {
				return p.fail(fmt.Errorf("failed to handle %s at position %d: %w", rec.Type, rec.Position, err))
			}
			if rec.Position < token.Position {
				p.logger.Info("Handled late event position", zap.Int64("position", rec.Position))
			}
			token = next
			p.setPosition(token.Position, false)
		}

		if len(records) < p.cfg.BatchSize {
			p.markCaughtUp()
			return nil
		}
	}
}

func (p *Processor) handle(ctx context.Context, rec domain.EventRecord, next domain.TrackingToken) error {
	env, err := domain.OpenEnvelope(rec)
	if err != nil {
		return err
	}
	if !p.cfg.Transactional {
		if err := p.handler(ctx, env); err != nil {
			return err
		}
		return p.tokens.Store(ctx, p.cfg.Name, next)
	}
	return p.units.Do(ctx, func(ctx context.Context) error {
		if err := p.handler(ctx, env); err != nil {
			return err
		}
		return p.tokens.Store(ctx, p.cfg.Name, next)
	})
}

// expireGaps drops gaps that have been open for longer than the gap timeout.
// A gap is timed from the first poll that finds it in the token.
func (p *Processor) expireGaps(token domain.TrackingToken) domain.TrackingToken {
	now := p.clock.Now()
	open := make(map[int64]time.Time, len(token.Gaps))
	for _, g := range token.Gaps {
		seen, ok := p.gapSeen[g]
		if !ok {
			seen = now
		}
		open[g] = seen
	}
	p.gapSeen = open

	return token.WithoutGaps(func(g int64) bool {
		if now.Sub(open[g]) < p.cfg.GapTimeout {
			return false
		}
		p.logger.Warn("Dropping missing event position", zap.Int64("position", g))
		delete(p.gapSeen, g)
		return true
	})
}

func (p *Processor) setPosition(position int64, caughtUp bool) {
	p.state.Lock()
	p.position = position
	p.caughtUp = caughtUp
	p.state.Unlock()
	p.metrics.SetTrackingPosition(p.cfg.Name, position)
}

func (p *Processor) markCaughtUp() {
	p.state.Lock()
	p.caughtUp = true
	p.lastErr = nil
	p.state.Unlock()
}

func (p *Processor) fail(err error) error {
	p.state.Lock()
	p.lastErr = err
	p.state.Unlock()
	return err
}

func (p *Processor) Position() int64 {
	p.state.Lock()
	defer p.state.Unlock()
	return p.position
}

func (p *Processor) Status() Status {
	p.state.Lock()
	defer p.state.Unlock()
	s := Status{
		Name:       p.cfg.Name,
		Position:   p.position,
		CaughtUp:   p.caughtUp,
		Resettable: p.reset != nil,
	}
	if p.lastErr != nil {
		s.Error = p.lastErr.Error()
	}
	return s
}

// Reset clears the processor's own state and token so it replays the log
// from the start.
func (p *Processor) Reset(ctx context.Context) error {
	if p.reset == nil {
		return fmt.Errorf("%w: %s", ErrNotResettable, p.cfg.Name)
	}
	p.run.Lock()
	err := p.units.Do(ctx, func(ctx context.Context) error {
		if err := p.reset(ctx); err != nil {
			return err
		}
		return p.tokens.Delete(ctx, p.cfg.Name)
	})
	if err == nil {
		p.setPosition(0, false)
		p.state.Lock()
		p.lastErr = nil
		p.state.Unlock()
		p.gapSeen = make(map[int64]time.Time)
	}
	p.run.Unlock()
	if err != nil {
		return fmt.Errorf("failed to reset %s: %w", p.cfg.Name, err)
	}
	p.logger.Info("Tracking processor reset")
	p.Wake()
	return nil
}
