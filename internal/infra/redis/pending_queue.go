package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"matchpoint/internal/app"
)

const outboxKey = "matchpoint:outbox"

// PendingQueue is a durable outbox kept in a Redis list (RPUSH / LINDEX 0).
type PendingQueue struct {
	client *redis.Client
	key    string
}

func NewPendingQueue(client *redis.Client) *PendingQueue {
	return &PendingQueue{client: client, key: outboxKey}
}

func (q *PendingQueue) Push(ctx context.Context, m app.PendingMutation) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mutation: %w", err)
	}
	return q.client.RPush(ctx, q.key, body).Err()
}

func (q *PendingQueue) Peek(ctx context.Context) (app.PendingMutation, bool, error) {
	body, err := q.client.LIndex(ctx, q.key, 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.PendingMutation{}, false, nil
	}
	if err != nil {
		return app.PendingMutation{}, false, err
	}
	var m app.PendingMutation
	if err := json.Unmarshal(body, &m); err != nil {
		return app.PendingMutation{}, false, fmt.Errorf("decode mutation: %w", err)
	}
	return m, true, nil
}

// Ack removes the mutation with mutationID from the list.
func (q *PendingQueue) Ack(ctx context.Context, mutationID string) error {
	items, err := q.client.LRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, raw := range items {
		var m app.PendingMutation
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		if m.ID == mutationID {
			return q.client.LRem(ctx, q.key, 1, raw).Err()
		}
	}
	return nil
}

func (q *PendingQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}
