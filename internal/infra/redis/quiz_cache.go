package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
)

// QuizCache caches published quizzes in Redis as JSON and falls back to the
// loader on a miss. Layout: SET quiz:{quizID}:definition <json> EX ttl.
// A Redis outage degrades to direct loader reads.
type QuizCache struct {
	client *redis.Client
	loader app.QuizReader
	ttl    time.Duration
	sf     singleflight.Group
	log    *logrus.Entry

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizCache(client *redis.Client, loader app.QuizReader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    logrus.StandardLogger().WithField("component", "quiz-cache"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	if quiz, ok := c.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := c.loader.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizDefinition{}, err
		}
		quiz = quiz.WithoutResponses()

		body, err := json.Marshal(quiz)
		if err == nil {
			if err := c.client.Set(ctx, c.key(quizID), body, c.ttlWithJitter()).Err(); err != nil {
				c.log.WithError(err).WithField("quiz_id", quizID).Warn("cache fill failed")
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	return result.(domain.QuizDefinition), nil
}

// Invalidate deletes the cached copy of quizID.
func (c *QuizCache) Invalidate(ctx context.Context, quizID string) {
	if err := c.client.Del(ctx, c.key(quizID)).Err(); err != nil {
		c.log.WithError(err).WithField("quiz_id", quizID).Warn("cache invalidate failed")
	}
	c.sf.Forget(quizID)
}

func (c *QuizCache) cached(ctx context.Context, quizID string) (domain.QuizDefinition, bool) {
	body, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		return domain.QuizDefinition{}, false
	}
	var quiz domain.QuizDefinition
	if err := json.Unmarshal(body, &quiz); err != nil {
		return domain.QuizDefinition{}, false
	}
	return quiz, true
}

func (c *QuizCache) key(quizID string) string {
	return "quiz:" + quizID + ":definition"
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
