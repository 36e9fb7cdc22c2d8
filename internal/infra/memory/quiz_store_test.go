package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"matchpoint/internal/domain"
)

func TestAppendResponseRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	store := NewQuizStore()
	_ = store.Create(ctx, sampleQuiz("quiz-1"))

	if err := store.AppendResponse(ctx, "quiz-1", domain.ResponseEntry{ID: "r1", RespondentName: "Sam"}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := store.AppendResponse(ctx, "quiz-1", domain.ResponseEntry{ID: "r2", RespondentName: "Sam"})
	if !errors.Is(err, domain.ErrDuplicateRespondent) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if err := store.AppendResponse(ctx, "quiz-1", domain.ResponseEntry{ID: "r3", RespondentName: "sam"}); err != nil {
		t.Fatalf("names differing in case are distinct respondents: %v", err)
	}
	if err := store.AppendResponse(ctx, "nope", domain.ResponseEntry{RespondentName: "Sam"}); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAppendResponseConcurrentSameName(t *testing.T) {
	ctx := context.Background()
	store := NewQuizStore()
	_ = store.Create(ctx, sampleQuiz("quiz-1"))

	var accepted int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.AppendResponse(ctx, "quiz-1", domain.ResponseEntry{ID: fmt.Sprint(i), RespondentName: "Alex"})
			if err == nil {
				atomic.AddInt32(&accepted, 1)
			}
		}(i)
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted response, got %d", accepted)
	}
	quiz, _ := store.Get(ctx, "quiz-1")
	if len(quiz.Responses) != 1 {
		t.Fatalf("expected 1 stored response, got %d", len(quiz.Responses))
	}
}

func TestQuizStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewQuizStore()
	older := sampleQuiz("a")
	newer := sampleQuiz("b")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	other := sampleQuiz("c")
	other.OwnerID = "owner-2"
	for _, q := range []domain.QuizDefinition{older, newer, other} {
		_ = store.Create(ctx, q)
	}

	mine, _ := store.ListByOwner(ctx, "owner-1")
	if len(mine) != 2 || mine[0].ID != "b" {
		t.Fatalf("expected newest first for owner-1, got %+v", mine)
	}
	all, _ := store.ListAll(ctx)
	if len(all) != 3 {
		t.Fatalf("expected 3 quizzes, got %d", len(all))
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected deleted quiz gone, got %v", err)
	}
}

func TestQuizStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewQuizStore()
	_ = store.Create(ctx, sampleQuiz("quiz-1"))

	got, _ := store.Get(ctx, "quiz-1")
	got.Questions[0].Options[0] = "changed"
	again, _ := store.Get(ctx, "quiz-1")
	if again.Questions[0].Options[0] != "Out" {
		t.Fatalf("stored quiz mutated through returned copy")
	}
}

func TestCreateWithinLimitCountsOwnerQuizzes(t *testing.T) {
	ctx := context.Background()
	store := NewQuizStore()

	if err := store.CreateWithinLimit(ctx, sampleQuiz("quiz-1"), 1); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := store.CreateWithinLimit(ctx, sampleQuiz("quiz-2"), 1); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	other := sampleQuiz("quiz-3")
	other.OwnerID = "owner-2"
	if err := store.CreateWithinLimit(ctx, other, 1); err != nil {
		t.Fatalf("other owner create: %v", err)
	}
	if err := store.CreateWithinLimit(ctx, sampleQuiz("quiz-4"), 2); err != nil {
		t.Fatalf("raised limit create: %v", err)
	}
}
