// Package uow carries a unit of work through a context so that every write made
// while handling one command commits or rolls back together.
package uow

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain"

	"go.uber.org/zap"
)

type ctxKey struct{}

type UnitOfWork struct {
	tx          *sql.Tx
	afterCommit []func()
	onRollback  []func()
}

type Manager struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewManager returns a manager that opens a SQL transaction per unit. With a
// nil db the unit only tracks callbacks, which is what the in-memory
// repositories need.
func NewManager(db *sql.DB, logger *zap.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

// Do runs fn inside a unit of work. A nested call joins the unit already in ctx.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := current(ctx); ok {
		return fn(ctx)
	}

	u := &UnitOfWork{}
	if m.db != nil {
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		u.tx = tx
	}
	unitCtx := context.WithValue(ctx, ctxKey{}, u)

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Recovered panic inside unit of work, rolling back", zap.Any("panic", r))
			u.rollback()
			panic(r)
		}
	}()

	if err := fn(unitCtx); err != nil {
		if rbErr := u.rollback(); rbErr != nil {
			m.logger.Error("Failed to roll back transaction", zap.NamedError("cause", err), zap.Error(rbErr))
		}
		return err
	}

	if err := u.commit(); err != nil {
		return err
	}
	for _, fn := range u.afterCommit {
		fn()
	}
	return nil
}

func (u *UnitOfWork) commit() error {
	if u.tx == nil {
		return nil
	}
	if err := u.tx.Commit(); err != nil {
		u.undo()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (u *UnitOfWork) rollback() error {
	u.undo()
	if u.tx == nil {
		return nil
	}
	if err := u.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (u *UnitOfWork) undo() {
	for i := len(u.onRollback) - 1; i >= 0; i-- {
		u.onRollback[i]()
	}
	u.onRollback = nil
}

func current(ctx context.Context) (*UnitOfWork, bool) {
	u, ok := ctx.Value(ctxKey{}).(*UnitOfWork)
	return u, ok
}

// Active reports whether ctx carries a unit of work.
func Active(ctx context.Context) bool {
	_, ok := current(ctx)
	return ok
}

// Querier returns the unit's transaction, or db when ctx has none.
func Querier(ctx context.Context, db *sql.DB) domain.Querier {
	if u, ok := current(ctx); ok && u.tx != nil {
		return u.tx
	}
	return db
}

// AfterCommit defers fn until the unit commits. Without a unit fn runs now.
func AfterCommit(ctx context.Context, fn func()) {
	if u, ok := current(ctx); ok {
		u.afterCommit = append(u.afterCommit, fn)
		return
	}
	fn()
}

// OnRollback registers an undo step. Steps run in reverse order. Without a
// unit there is nothing to undo and fn is dropped.
func OnRollback(ctx context.Context, fn func()) {
	if u, ok := current(ctx); ok {
		u.onRollback = append(u.onRollback, fn)
	}
}
