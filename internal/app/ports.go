package app

import (
	"context"

	"matchpoint/internal/domain"
)

// QuizStore persists quiz definitions with their embedded response ledger.
type QuizStore interface {
	Create(ctx context.Context, quiz domain.QuizDefinition) error
	Get(ctx context.Context, quizID string) (domain.QuizDefinition, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.QuizDefinition, error)
	ListAll(ctx context.Context) ([]domain.QuizDefinition, error)
	SetImage(ctx context.Context, quizID, imageRef string) error
	Delete(ctx context.Context, quizID string) error
	// AppendResponse atomically appends entry unless entry.RespondentName already
	// answered; it returns domain.ErrDuplicateRespondent in that case.
	AppendResponse(ctx context.Context, quizID string, entry domain.ResponseEntry) error
}

// LimitedCreator is implemented by stores that can enforce an owner's quiz cap in
// the same write that creates the quiz. It returns domain.ErrQuotaExceeded when
// the owner already holds limit quizzes.
type LimitedCreator interface {
	CreateWithinLimit(ctx context.Context, quiz domain.QuizDefinition, limit int) error
}

// QuizReader serves published quizzes to respondents, usually through a cache.
type QuizReader interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// QuizInvalidator drops cached copies of a quiz.
type QuizInvalidator interface {
	Invalidate(ctx context.Context, quizID string)
}

// AccountStore persists accounts. Save is conditional on expectedRevision and
// returns domain.ErrStaleWrite when another save landed first.
type AccountStore interface {
	Create(ctx context.Context, acct domain.Account) error
	Get(ctx context.Context, uid string) (domain.Account, error)
	Save(ctx context.Context, acct domain.Account, expectedRevision int64) (domain.Account, error)
}

// SessionRepository abstracts where respondent sessions live (in-memory, Redis, etc).
type SessionRepository interface {
	Save(session *RespondentSession)
	Get(sessionID string) (*RespondentSession, bool)
	Delete(sessionID string)
}

// PendingQueue is the durable outbox of writes that could not reach the backend.
type PendingQueue interface {
	Push(ctx context.Context, m PendingMutation) error
	Peek(ctx context.Context) (PendingMutation, bool, error)
	Ack(ctx context.Context, mutationID string) error
	Len(ctx context.Context) (int, error)
}

// ImageStore compresses and stores images, returning a reference usable as a URL.
type ImageStore interface {
	Store(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// IdentityProvider is the external identity service.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password, displayName string) (domain.Principal, error)
	SignIn(ctx context.Context, email, password string) (domain.Principal, error)
	SignInFederated(ctx context.Context, assertion string) (domain.Principal, error)
	Issue(ctx context.Context, p domain.Principal) (domain.SessionToken, error)
	Verify(ctx context.Context, token string) (domain.Principal, error)
	SignOut(ctx context.Context, token string) error
	OnAuthStateChange(fn func(domain.AuthEvent)) (unsubscribe func())
}
