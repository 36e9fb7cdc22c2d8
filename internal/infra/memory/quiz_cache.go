package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
)

// QuizCache caches published quizzes with TTL to avoid repeated store hits on the
// respondent path. Cached copies never carry responses.
type QuizCache struct {
	loader app.QuizReader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.QuizDefinition
	expiresAt time.Time
}

func NewQuizCache(loader app.QuizReader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	if quiz, ok := c.lookup(quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := c.lookup(quizID); ok {
			return quiz, nil
		}

		quiz, err := c.loader.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizDefinition{}, err
		}
		quiz = quiz.WithoutResponses()

		c.mu.Lock()
		c.cache[quizID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	return result.(domain.QuizDefinition), nil
}

// Invalidate drops quizID so the next read goes to the store.
func (c *QuizCache) Invalidate(_ context.Context, quizID string) {
	c.mu.Lock()
	delete(c.cache, quizID)
	c.mu.Unlock()
	c.sf.Forget(quizID)
}

func (c *QuizCache) lookup(quizID string) (domain.QuizDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[quizID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.QuizDefinition{}, false
	}
	return entry.quiz, true
}

// ttlWithJitter must be called with mu held.
func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
