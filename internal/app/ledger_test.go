package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
)

func TestSubmitRejectsDuplicateRespondent(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)
	quiz := f.publish(t, "owner")
	ctx := context.Background()

	res, err := f.ledger.Submit(ctx, quiz.ID, "  Sam ", domain.AnswerSet{0: domain.Single(1), 1: domain.Multi(0, 3)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Entry.Score != 100 || !res.Match || res.Entry.RespondentName != "Sam" {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := f.ledger.Submit(ctx, quiz.ID, "Sam", nil); !errors.Is(err, domain.ErrDuplicateRespondent) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := f.ledger.Submit(ctx, quiz.ID, "Alex", domain.AnswerSet{0: domain.Single(0)}); err != nil {
		t.Fatalf("different name should succeed: %v", err)
	}

	entries, err := f.ledger.Responses(ctx, "owner", quiz.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(entries))
	}
	if _, err := f.ledger.Responses(ctx, "someone", quiz.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSubmitConcurrentSameNameAcceptsOne(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)
	quiz := f.publish(t, "owner")

	var mu sync.Mutex
	accepted, duplicates := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Submit(context.Background(), quiz.ID, "Jordan", domain.AnswerSet{0: domain.Single(1)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrDuplicateRespondent):
				duplicates++
			}
		}()
	}
	wg.Wait()
	if accepted != 1 || duplicates != 15 {
		t.Fatalf("expected 1 accepted and 15 duplicates, got %d and %d", accepted, duplicates)
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)
	quiz := f.publish(t, "owner")
	ctx := context.Background()

	if _, err := f.ledger.Submit(ctx, quiz.ID, " ", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
	if _, err := f.ledger.Submit(ctx, quiz.ID, "Sam", domain.AnswerSet{1: domain.Multi(0, 1, 2)}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for 3 selections, got %v", err)
	}
	if _, err := f.ledger.Submit(ctx, quiz.ID, "Sam", domain.AnswerSet{7: domain.Single(0)}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown question, got %v", err)
	}
	if _, err := f.ledger.Submit(ctx, "missing", "Sam", nil); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitQueuesWhileBackendDown(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)
	quiz := f.publish(t, "owner")
	ctx := context.Background()

	// respondents read through a cache, so only the write path is down
	f.ledger = app.NewLedgerService(f.quizzes, staticReader{quiz: quiz}, f.syncer, f.feed)
	f.quizzes.down.Store(true)

	res, err := f.ledger.Submit(ctx, quiz.ID, "Sam", domain.AnswerSet{0: domain.Single(1)})
	if err != nil {
		t.Fatalf("submit while down: %v", err)
	}
	if !res.Queued || !f.syncer.Degraded() {
		t.Fatalf("expected queued response and degraded mode, got %+v degraded=%v", res, f.syncer.Degraded())
	}

	if _, err := f.syncer.Flush(ctx); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected flush to stop on unavailable, got %v", err)
	}

	f.quizzes.down.Store(false)
	applied, err := f.syncer.Flush(ctx)
	if err != nil || applied != 1 {
		t.Fatalf("expected 1 applied, got %d err=%v", applied, err)
	}
	if f.syncer.Degraded() {
		t.Fatalf("expected degraded mode cleared after drain")
	}
	stored, _ := f.quizzes.Get(ctx, quiz.ID)
	if len(stored.Responses) != 1 || stored.Responses[0].RespondentName != "Sam" {
		t.Fatalf("expected queued response persisted, got %+v", stored.Responses)
	}
}

func TestSyncerDropsRejectedMutations(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)
	quiz := f.publish(t, "owner")
	ctx := context.Background()
	_, _ = f.ledger.Submit(ctx, quiz.ID, "Sam", nil)

	entry := domain.ResponseEntry{ID: "late", RespondentName: "Sam", SubmittedAt: time.Now()}
	_ = f.syncer.Enqueue(ctx, app.PendingMutation{Kind: app.MutationAppendResponse, QuizID: quiz.ID, Response: &entry})

	applied, err := f.syncer.Flush(ctx)
	if err != nil || applied != 0 {
		t.Fatalf("expected duplicate dropped, applied=%d err=%v", applied, err)
	}
	if n, _ := f.syncer.Pending(ctx); n != 0 {
		t.Fatalf("expected empty outbox, got %d", n)
	}
}

func TestSubmitPublishesToFeed(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)
	quiz := f.publish(t, "owner")

	ch, cancel := f.feed.Subscribe(quiz.ID, 0)
	defer cancel()

	if _, err := f.ledger.Submit(context.Background(), quiz.ID, "Sam", domain.AnswerSet{0: domain.Single(1)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Response.RespondentName != "Sam" || ev.Total != 1 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected feed event")
	}
}

func TestFeedDropsOldestForSlowWatcher(t *testing.T) {
	feed := app.NewResponseFeed()
	ch, cancel := feed.Subscribe("quiz", 3)
	defer cancel()

	for i := 0; i < 20; i++ {
		feed.Publish("quiz", domain.ResponseEntry{RespondentName: "r"})
	}
	var last app.ResponseEvent
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Total != 23 {
		t.Fatalf("expected newest event to survive with total 23, got %d", last.Total)
	}
	if feed.Watchers("quiz") != 1 {
		t.Fatalf("expected one watcher")
	}
}

type staticReader struct {
	quiz domain.QuizDefinition
}

func (r staticReader) GetQuiz(_ context.Context, quizID string) (domain.QuizDefinition, error) {
	if quizID != r.quiz.ID {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	return r.quiz, nil
}
