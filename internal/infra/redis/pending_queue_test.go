package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
)

func TestPendingQueueSurvivesReconnect(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	ctx := context.Background()

	q := NewPendingQueue(newClient(mr))
	entry := domain.ResponseEntry{ID: "r1", RespondentName: "Sam", Answers: domain.AnswerSet{0: domain.Single(1)}, Score: 100}
	if err := q.Push(ctx, app.PendingMutation{ID: "m1", Kind: app.MutationAppendResponse, QuizID: "quiz-1", Response: &entry}); err != nil {
		t.Fatalf("push: %v", err)
	}
	_ = q.Push(ctx, app.PendingMutation{ID: "m2", Kind: app.MutationSaveAccount, Account: &domain.Account{UID: "u1"}})

	// a fresh client sees the same outbox
	q2 := NewPendingQueue(newClient(mr))
	if n, _ := q2.Len(ctx); n != 2 {
		t.Fatalf("expected 2 pending, got %d", n)
	}
	m, ok, err := q2.Peek(ctx)
	if err != nil || !ok {
		t.Fatalf("peek: ok=%v err=%v", ok, err)
	}
	if m.ID != "m1" || m.Response == nil || m.Response.Answers[0][0] != 1 {
		t.Fatalf("unexpected head %+v", m)
	}

	if err := q2.Ack(ctx, "m1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	m, _, _ = q2.Peek(ctx)
	if m.ID != "m2" {
		t.Fatalf("expected m2 at head, got %s", m.ID)
	}
	_ = q2.Ack(ctx, "m2")
	if _, ok, _ := q2.Peek(ctx); ok {
		t.Fatalf("expected empty outbox")
	}
}
