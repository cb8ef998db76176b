package uow

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestManager_Do_RunsAfterCommitOnSuccess(t *testing.T) {
	m := NewManager(nil, zap.NewNop())
	var committed, undone bool

	err := m.Do(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func() { committed = true })
		OnRollback(ctx, func() { undone = true })
		if committed {
			t.Fatal("after-commit callback ran before the unit committed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if !committed || undone {
		t.Fatalf("expected commit callbacks only, committed=%v undone=%v", committed, undone)
	}
}

func TestManager_Do_UndoesInReverseOrderOnError(t *testing.T) {
	m := NewManager(nil, zap.NewNop())
	boom := errors.New("boom")
	var order []int
	committed := false

	err := m.Do(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func() { order = append(order, 1) })
		OnRollback(ctx, func() { order = append(order, 2) })
		AfterCommit(ctx, func() { committed = true })
		return boom
	})
	if err != boom {
		t.Fatalf("expected the handler error unmodified, got %v", err)
	}
	if committed {
		t.Fatal("after-commit callback ran for a rolled-back unit")
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected undo order [2 1], got %v", order)
	}
}

func TestManager_Do_NestedCallJoinsOuterUnit(t *testing.T) {
	m := NewManager(nil, zap.NewNop())
	boom := errors.New("outer failed")
	innerUndone := false

	err := m.Do(context.Background(), func(ctx context.Context) error {
		if err := m.Do(ctx, func(inner context.Context) error {
			OnRollback(inner, func() { innerUndone = true })
			return nil
		}); err != nil {
			t.Fatalf("inner Do returned error: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected outer error, got %v", err)
	}
	if !innerUndone {
		t.Fatal("expected work of the nested call to roll back with the outer unit")
	}
}

func TestManager_Do_PanicRollsBackAndRepanics(t *testing.T) {
	m := NewManager(nil, zap.NewNop())
	undone := false

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected the panic to propagate")
		}
		if !undone {
			t.Fatal("expected rollback before re-panicking")
		}
	}()

	_ = m.Do(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func() { undone = true })
		panic("kaboom")
	})
}

func TestAfterCommit_WithoutUnitRunsImmediately(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	if !ran {
		t.Fatal("expected callback to run immediately outside a unit")
	}
	if Active(context.Background()) {
		t.Fatal("background context must not report an active unit")
	}
}
