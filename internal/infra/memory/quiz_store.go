package memory

import (
	"context"
	"sort"
	"sync"

	"matchpoint/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizStore.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.QuizDefinition
}

func NewQuizStore() *QuizStore {
	return &QuizStore{quizzes: make(map[string]domain.QuizDefinition)}
}

func (s *QuizStore) Create(_ context.Context, quiz domain.QuizDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

// CreateWithinLimit stores quiz unless its owner already holds limit quizzes.
func (s *QuizStore) CreateWithinLimit(_ context.Context, quiz domain.QuizDefinition, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := 0
	for _, q := range s.quizzes {
		if q.OwnerID == quiz.OwnerID {
			owned++
		}
	}
	if owned >= limit {
		return domain.ErrQuotaExceeded
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *QuizStore) Get(_ context.Context, quizID string) (domain.QuizDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

// GetQuiz lets the store act as the loader behind a QuizCache.
func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	return s.Get(ctx, quizID)
}

func (s *QuizStore) ListByOwner(_ context.Context, ownerID string) ([]domain.QuizDefinition, error) {
	return s.list(func(q domain.QuizDefinition) bool { return q.OwnerID == ownerID }), nil
}

func (s *QuizStore) ListAll(_ context.Context) ([]domain.QuizDefinition, error) {
	return s.list(func(domain.QuizDefinition) bool { return true }), nil
}

func (s *QuizStore) list(keep func(domain.QuizDefinition) bool) []domain.QuizDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizDefinition, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		if keep(q) {
			out = append(out, cloneQuiz(q))
		}
	}
	// newest first, like the dashboard lists them
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *QuizStore) SetImage(_ context.Context, quizID, imageRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.ImageRef = imageRef
	s.quizzes[quizID] = quiz
	return nil
}

func (s *QuizStore) Delete(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	return nil
}

// AppendResponse checks and appends under one lock.
func (s *QuizStore) AppendResponse(_ context.Context, quizID string, entry domain.ResponseEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	if quiz.HasRespondent(entry.RespondentName) {
		return domain.ErrDuplicateRespondent
	}
	entry.Answers = entry.Answers.Clone()
	quiz.Responses = append(append([]domain.ResponseEntry(nil), quiz.Responses...), entry)
	s.quizzes[quizID] = quiz
	return nil
}

func cloneQuiz(q domain.QuizDefinition) domain.QuizDefinition {
	out := q
	out.Questions = make([]domain.QuizQuestion, len(q.Questions))
	for i, qq := range q.Questions {
		qq.Options = append([]string(nil), qq.Options...)
		qq.PreferredAnswer = append(domain.Selection(nil), qq.PreferredAnswer...)
		out.Questions[i] = qq
	}
	if q.Responses != nil {
		out.Responses = make([]domain.ResponseEntry, len(q.Responses))
		for i, r := range q.Responses {
			r.Answers = r.Answers.Clone()
			out.Responses[i] = r
		}
	}
	return out
}
