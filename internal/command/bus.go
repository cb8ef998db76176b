// Package command routes commands to their handlers, one at a time per target
// identity.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/domain"
	"ledger/internal/lock"
	"ledger/internal/metrics"
	"ledger/internal/uow"

	"go.uber.org/zap"
)

var ErrNoHandler = errors.New("no handler registered for command")

type Handler func(ctx context.Context, cmd domain.Command) error

// Handle adapts a handler written against one concrete command type.
func Handle[C domain.Command](fn func(ctx context.Context, cmd C) error) Handler {
	return func(ctx context.Context, cmd domain.Command) error {
		typed, ok := cmd.(C)
		if !ok {
			return fmt.Errorf("%w: handler for %s received %T", ErrNoHandler, cmd.CommandType(), cmd)
		}
		return fn(ctx, typed)
	}
}

type Dispatcher interface {
	SendAndWait(ctx context.Context, cmd domain.Command) error
}

type Bus struct {
	handlers map[string]Handler
	locker   lock.Locker
	units    *uow.Manager
	metrics  *metrics.Collector
	logger   *zap.Logger
}

var _ Dispatcher = (*Bus)(nil)

func NewBus(locker lock.Locker, units *uow.Manager, metrics *metrics.Collector, logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string]Handler),
		locker:   locker,
		units:    units,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register panics on a duplicate so wiring mistakes show up at startup.
func (b *Bus) Register(commandType string, h Handler) {
	if _, exists := b.handlers[commandType]; exists {
		panic(fmt.Sprintf("command handler for %s registered twice", commandType))
	}
	b.handlers[commandType] = h
}

type heldKey struct{}

type heldKeys struct {
	key    string
	parent *heldKeys
}

func (h *heldKeys) contains(key string) bool {
	for ; h != nil; h = h.parent {
		if h.key == key {
			return true
		}
	}
	return false
}

// SendAndWait runs the handler for cmd inside a unit of work and returns its
// error. A call made from inside another handler joins the caller's unit and
// skips locking keys the caller already holds.
func (b *Bus) SendAndWait(ctx context.Context, cmd domain.Command) error {
	h, ok := b.handlers[cmd.CommandType()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, cmd.CommandType())
	}

	start := time.Now()
	key := cmd.TargetID().String()
	held, _ := ctx.Value(heldKey{}).(*heldKeys)

	if !held.contains(key) {
		unlock, err := b.locker.Lock(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to lock %s for %s: %w", key, cmd.CommandType(), err)
		}
		defer unlock()
		ctx = context.WithValue(ctx, heldKey{}, &heldKeys{key: key, parent: held})
	}

	err := b.units.Do(ctx, func(ctx context.Context) error {
		return h(ctx, cmd)
	})

	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case domain.IsRejection(err):
		outcome = metrics.OutcomeRejected
		b.logger.Info("Command rejected",
			zap.String("command", cmd.CommandType()),
			zap.String("target_id", key),
			zap.Error(err),
		)
	default:
		outcome = metrics.OutcomeError
		b.logger.Error("Command failed",
			zap.String("command", cmd.CommandType()),
			zap.String("target_id", key),
			zap.Error(err),
		)
	}
	b.metrics.RecordCommand(cmd.CommandType(), outcome, time.Since(start))
	return err
}
