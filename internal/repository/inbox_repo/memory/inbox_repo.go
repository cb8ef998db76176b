package memory

import (
	"context"
	"fmt"
	"sync"

	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/repository/inbox_repo"
	"ledger/internal/uow"
)

type InboxRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.InboxMessage
	byKafka map[string]string
	clock   clock.Clock
}

var _ inbox_repo.InboxRepository = (*InboxRepository)(nil)

func NewInboxRepository(clk clock.Clock) *InboxRepository {
	return &InboxRepository{byID: make(map[string]*domain.InboxMessage), byKafka: make(map[string]string), clock: clk}
}

func (r *InboxRepository) CreateMessage(ctx context.Context, msg *domain.InboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := msg.DeliveryKey()
	if _, exists := r.byKafka[key]; exists {
		return inbox_repo.ErrMessageAlreadyProcessed
	}
	stored := *msg
	r.byID[msg.ID] = &stored
	r.byKafka[key] = msg.ID
	uow.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.byID, msg.ID)
		delete(r.byKafka, key)
		r.mu.Unlock()
	})
	return nil
}

func (r *InboxRepository) UpdateStatus(ctx context.Context, id string, status domain.InboxMessageStatus, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", inbox_repo.ErrMessageNotFound, id)
	}
	msg.Status = status
	msg.Error = errText
	now := r.clock.Now()
	msg.ProcessedAt = &now
	return nil
}

func (r *InboxRepository) GetByKafkaMetadata(ctx context.Context, topic string, partition int, offset int64, consumerGroup string) (*domain.InboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKafka[domain.DeliveryKey(topic, partition, offset, consumerGroup)]
	if !ok {
		return nil, inbox_repo.ErrMessageNotFound
	}
	msg := *r.byID[id]
	return &msg, nil
}
