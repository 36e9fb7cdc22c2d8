package app_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
	"matchpoint/internal/identity"
	"matchpoint/internal/infra/memory"
	"matchpoint/internal/media"
)

var fastRetry = app.RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsed:      20 * time.Millisecond,
}

// flakyQuizStore fails every call with domain.ErrUnavailable while down is set.
type flakyQuizStore struct {
	*memory.QuizStore
	down atomic.Bool
}

func (s *flakyQuizStore) Get(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	if s.down.Load() {
		return domain.QuizDefinition{}, domain.ErrUnavailable
	}
	return s.QuizStore.Get(ctx, quizID)
}

func (s *flakyQuizStore) AppendResponse(ctx context.Context, quizID string, entry domain.ResponseEntry) error {
	if s.down.Load() {
		return domain.ErrUnavailable
	}
	return s.QuizStore.AppendResponse(ctx, quizID, entry)
}

type fixture struct {
	quizzes  *flakyQuizStore
	accounts *memory.AccountStore
	blob     *media.MemoryBlob
	idp      *identity.Local
	syncer   *app.Syncer
	feed     *app.ResponseFeed

	quizSvc    *app.QuizService
	ledger     *app.LedgerService
	sessions   *app.SessionService
	accountSvc *app.AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		quizzes:  &flakyQuizStore{QuizStore: memory.NewQuizStore()},
		accounts: memory.NewAccountStore(),
		blob:     media.NewMemoryBlob("http://media.test"),
		feed:     app.NewResponseFeed(),
	}
	idp, err := identity.NewLocal(identity.Config{Secret: []byte("test"), BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	f.idp = idp
	f.syncer = app.NewSyncer(memory.NewPendingQueue(), f.quizzes, f.accounts, nil)

	uploader := media.NewUploader(f.blob, media.QuizImageOptions, nil)
	f.quizSvc = app.NewQuizService(f.quizzes, nil, f.accounts, uploader)
	f.quizSvc.SetRetryPolicy(fastRetry)
	f.ledger = app.NewLedgerService(f.quizzes, nil, f.syncer, f.feed)
	f.ledger.SetRetryPolicy(fastRetry)
	f.sessions = app.NewSessionService(memory.NewSessionStore(), f.quizzes, f.ledger)
	f.accountSvc = app.NewAccountService(f.accounts, idp, media.NewUploader(f.blob, media.ProfilePhotoOptions, nil), f.syncer)
	f.accountSvc.SetRetryPolicy(fastRetry)
	return f
}

// newAccount creates an account directly in the store.
func (f *fixture) newAccount(t *testing.T, uid string, tier domain.SubscriptionTier) domain.Account {
	t.Helper()
	acct := domain.NewAccount(domain.Principal{UID: uid, Email: uid + "@example.com"}, time.Now())
	acct.SubscriptionTier = tier
	if err := f.accounts.Create(context.Background(), acct); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acct
}

// publish creates a two-question quiz (q1 single, q3 multi) for ownerID.
func (f *fixture) publish(t *testing.T, ownerID string) domain.QuizDefinition {
	t.Helper()
	quiz, err := f.quizSvc.Publish(context.Background(), ownerID, app.PublishRequest{
		Name: "Are we a match?",
		Questions: []app.PublishQuestion{
			{TemplateID: "q1", PreferredAnswer: domain.Single(1)},
			{TemplateID: "q3", PreferredAnswer: domain.Multi(0, 3)},
		},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return quiz
}
