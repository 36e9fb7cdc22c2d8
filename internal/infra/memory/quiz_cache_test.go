package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"matchpoint/internal/domain"
)

func TestQuizCacheCaches(t *testing.T) {
	loader := &countingLoader{store: NewQuizStore()}
	_ = loader.store.Create(context.Background(), sampleQuiz("quiz-1"))
	cache := NewQuizCache(loader, time.Minute)

	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.count())
	}

	cache.Invalidate(context.Background(), "quiz-1")
	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if loader.count() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.count())
	}
}

func TestQuizCacheDropsResponses(t *testing.T) {
	store := NewQuizStore()
	ctx := context.Background()
	_ = store.Create(ctx, sampleQuiz("quiz-1"))
	_ = store.AppendResponse(ctx, "quiz-1", domain.ResponseEntry{ID: "r1", RespondentName: "Sam"})

	got, err := NewQuizCache(store, time.Minute).GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if len(got.Responses) != 0 {
		t.Fatalf("expected cached quiz without responses, got %d", len(got.Responses))
	}
}

func TestQuizCacheDoesNotCacheMisses(t *testing.T) {
	loader := &countingLoader{store: NewQuizStore()}
	cache := NewQuizCache(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if loader.count() != 2 {
		t.Fatalf("expected misses to reach the loader, got %d calls", loader.count())
	}
}

type countingLoader struct {
	store *QuizStore
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.store.Get(ctx, quizID)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuiz(id string) domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:      id,
		OwnerID: "owner-1",
		Name:    "Are we a match?",
		Questions: []domain.QuizQuestion{
			{
				TemplateID:      "q1",
				Text:            "Ideal weekend?",
				Options:         []string{"Out", "In"},
				PreferredAnswer: domain.Single(0),
			},
		},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}
