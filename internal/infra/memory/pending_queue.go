package memory

import (
	"context"
	"sync"

	"matchpoint/internal/app"
)

// PendingQueue is a process-local outbox. It does not survive restarts; use the
// Redis queue when durability matters.
type PendingQueue struct {
	mu    sync.Mutex
	items []app.PendingMutation
}

func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

func (q *PendingQueue) Push(_ context.Context, m app.PendingMutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, m)
	return nil
}

func (q *PendingQueue) Peek(_ context.Context) (app.PendingMutation, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return app.PendingMutation{}, false, nil
	}
	return q.items[0], true, nil
}

// Ack removes the mutation with id, wherever it sits.
func (q *PendingQueue) Ack(_ context.Context, mutationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.items {
		if m.ID == mutationID {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *PendingQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}
