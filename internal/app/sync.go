package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"matchpoint/internal/domain"
)

// MutationKind names a queued write.
type MutationKind string

const (
	MutationAppendResponse MutationKind = "append_response"
	MutationSaveAccount    MutationKind = "save_account"
)

// PendingMutation is a write accepted while the backend was unavailable.
type PendingMutation struct {
	ID               string                `json:"id"`
	Kind             MutationKind          `json:"kind"`
	QuizID           string                `json:"quizId,omitempty"`
	Response         *domain.ResponseEntry `json:"response,omitempty"`
	Account          *domain.Account       `json:"account,omitempty"`
	ExpectedRevision int64                 `json:"expectedRevision,omitempty"`
	EnqueuedAt       time.Time             `json:"enqueuedAt"`
}

// RetryPolicy bounds read retries against a flaky backend.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy is used when a service is built without an explicit policy.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxElapsed:      10 * time.Second,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsed
	return backoff.WithContext(b, ctx)
}

// retryRead runs op, retrying only transient failures.
func retryRead(ctx context.Context, policy RetryPolicy, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil || domain.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy.backOff(ctx))
}

// Syncer owns the degraded-mode flag and drains the outbox once the backend recovers.
type Syncer struct {
	queue    PendingQueue
	quizzes  QuizStore
	accounts AccountStore
	policy   RetryPolicy
	degraded atomic.Bool
	now      func() time.Time
	log      *logrus.Entry

	// OnApplied is invoked after a queued response lands; used to fan out live updates.
	OnApplied func(m PendingMutation)
}

func NewSyncer(queue PendingQueue, quizzes QuizStore, accounts AccountStore, log *logrus.Logger) *Syncer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Syncer{
		queue:    queue,
		quizzes:  quizzes,
		accounts: accounts,
		policy:   DefaultRetryPolicy,
		now:      time.Now,
		log:      log.WithField("component", "sync"),
	}
}

// Degraded reports whether writes are currently being queued locally.
func (s *Syncer) Degraded() bool {
	return s.degraded.Load()
}

// Enqueue stores m in the outbox and flips the service into degraded mode.
func (s *Syncer) Enqueue(ctx context.Context, m PendingMutation) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = s.now()
	}
	if err := s.queue.Push(ctx, m); err != nil {
		return fmt.Errorf("queue pending %s: %w", m.Kind, err)
	}
	s.degraded.Store(true)
	s.log.WithFields(logrus.Fields{"mutation_id": m.ID, "kind": m.Kind}).Warn("backend unavailable, write queued locally")
	return nil
}

// Pending returns the outbox length.
func (s *Syncer) Pending(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}

// Flush applies queued mutations in order until the queue is empty or the backend
// fails again. Mutations rejected for non-transient reasons are dropped and logged.
func (s *Syncer) Flush(ctx context.Context) (applied int, err error) {
	for {
		m, ok, err := s.queue.Peek(ctx)
		if err != nil {
			return applied, err
		}
		if !ok {
			s.degraded.Store(false)
			return applied, nil
		}
		if err := s.apply(ctx, m); err != nil {
			if domain.IsTransient(err) {
				s.degraded.Store(true)
				return applied, err
			}
			s.log.WithError(err).WithFields(logrus.Fields{"mutation_id": m.ID, "kind": m.Kind}).Warn("dropping queued write")
		} else {
			applied++
			if s.OnApplied != nil {
				s.OnApplied(m)
			}
		}
		if err := s.queue.Ack(ctx, m.ID); err != nil {
			return applied, err
		}
	}
}

func (s *Syncer) apply(ctx context.Context, m PendingMutation) error {
	switch m.Kind {
	case MutationAppendResponse:
		if m.Response == nil {
			return errors.New("append_response without response")
		}
		return s.quizzes.AppendResponse(ctx, m.QuizID, *m.Response)
	case MutationSaveAccount:
		if m.Account == nil {
			return errors.New("save_account without account")
		}
		_, err := s.accounts.Save(ctx, *m.Account, m.ExpectedRevision)
		return err
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

// Run drains the outbox every interval, backing off while the backend stays down.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		n, err := s.queue.Len(ctx)
		if err != nil || n == 0 {
			if err == nil {
				s.degraded.Store(false)
			}
			continue
		}
		err = backoff.Retry(func() error {
			_, err := s.Flush(ctx)
			if err != nil && !domain.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}, s.policy.backOff(ctx))
		if err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("outbox still pending")
		}
	}
}
