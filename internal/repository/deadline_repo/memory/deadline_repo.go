package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ledger/internal/domain"
	"ledger/internal/repository/deadline_repo"
	"ledger/internal/uow"
)

type DeadlineRepository struct {
	mu        sync.Mutex
	deadlines map[string]domain.Deadline
}

var _ deadline_repo.DeadlineRepository = (*DeadlineRepository)(nil)

func NewDeadlineRepository() *DeadlineRepository {
	return &DeadlineRepository{deadlines: make(map[string]domain.Deadline)}
}

func (r *DeadlineRepository) Schedule(ctx context.Context, deadline domain.Deadline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadlines[deadline.Token] = deadline
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.deadlines, deadline.Token)
		r.mu.Unlock()
	})
	return nil
}

func (r *DeadlineRepository) Cancel(ctx context.Context, name, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	deadline, ok := r.deadlines[token]
	if !ok || deadline.Name != name {
		return nil
	}
	delete(r.deadlines, token)
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		r.deadlines[token] = deadline
		r.mu.Unlock()
	})
	return nil
}

func (r *DeadlineRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []domain.Deadline
	for _, d := range r.deadlines {
		if !d.DueAt.After(now) {
			due = append(due, d)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, d := range due {
		delete(r.deadlines, d.Token)
	}
	return due, nil
}

func (r *DeadlineRepository) Pending(ctx context.Context) ([]domain.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make([]domain.Deadline, 0, len(r.deadlines))
	for _, d := range r.deadlines {
		pending = append(pending, d)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].DueAt.Before(pending[j].DueAt) })
	return pending, nil
}
