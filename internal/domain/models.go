package domain

import (
	"time"
)

// MaxQuestions is the upper bound of questions a quiz may carry.
const MaxQuestions = 20

// MatchThreshold is the score at or above which a response counts as a match.
const MatchThreshold = 70

// QuestionTemplate is a read-only entry of the question bank.
type QuestionTemplate struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Options     []string `json:"options"`
	MultiSelect bool     `json:"multiSelect"`
}

// QuizQuestion is a question copied by value into a published quiz, annotated with the
// creator's preferred answer.
type QuizQuestion struct {
	TemplateID      string    `json:"templateId"`
	Text            string    `json:"text"`
	Options         []string  `json:"options"`
	MultiSelect     bool      `json:"multiSelect"`
	PreferredAnswer Selection `json:"preferredAnswer"`
}

// QuizDefinition is immutable once published; only the image reference and the
// response ledger change after creation.
type QuizDefinition struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Name      string          `json:"name"`
	ImageRef  string          `json:"imageRef,omitempty"`
	Questions []QuizQuestion  `json:"questions"`
	Responses []ResponseEntry `json:"responses,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// HasRespondent reports whether name already answered the quiz (case-sensitive).
func (q QuizDefinition) HasRespondent(name string) bool {
	for _, r := range q.Responses {
		if r.RespondentName == name {
			return true
		}
	}
	return false
}

// WithoutResponses returns a copy with the response ledger stripped.
func (q QuizDefinition) WithoutResponses() QuizDefinition {
	q.Responses = nil
	return q
}

// AnswerSet maps a question index to the respondent's selection.
type AnswerSet map[int]Selection

// Clone returns a deep copy of the set.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = append(Selection(nil), v...)
	}
	return out
}

// ResponseEntry is a finalized respondent submission. Never mutated after creation.
type ResponseEntry struct {
	ID             string    `json:"id"`
	RespondentName string    `json:"respondentName"`
	Answers        AnswerSet `json:"answers"`
	Score          int       `json:"score"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// IsMatch reports whether the response reaches the match threshold.
func (r ResponseEntry) IsMatch() bool {
	return r.Score >= MatchThreshold
}

// SubscriptionTier is the billing level of an account.
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierPremium SubscriptionTier = "premium"
)

// AgeRange is the preferred partner age window.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Profile is captured once through onboarding and editable afterwards.
type Profile struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Age       int      `json:"age"`
	PhotoURL  string   `json:"photoUrl,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	AgeRange  AgeRange `json:"ageRange"`
	Interests []string `json:"interests"`
}

// Account is owned by the signed-in user. Revision increments on every durable save
// and guards concurrent profile writes.
type Account struct {
	UID                 string           `json:"uid"`
	Name                string           `json:"name"`
	Email               string           `json:"email"`
	SubscriptionTier    SubscriptionTier `json:"subscriptionTier"`
	OnboardingCompleted bool             `json:"onboardingCompleted"`
	Profile             *Profile         `json:"profile,omitempty"`
	Revision            int64            `json:"revision"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// NewAccount builds the default account created on first sign-in.
func NewAccount(p Principal, now time.Time) Account {
	acct := Account{
		UID:              p.UID,
		Name:             p.DisplayName,
		Email:            p.Email,
		SubscriptionTier: TierFree,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if acct.Name == "" {
		acct.Name = p.Email
	}
	if p.PhotoURL != "" {
		acct.Profile = &Profile{PhotoURL: p.PhotoURL}
	}
	return acct
}

// Principal is an identity asserted by the identity provider.
type Principal struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	Provider    string `json:"provider"`
}

// Credential is a password login. Emails are stored lower-cased.
type Credential struct {
	UID          string
	Email        string
	DisplayName  string
	PasswordHash []byte
	CreatedAt    time.Time
}

// SessionToken is a bearer credential for a principal.
type SessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthEventType distinguishes auth state transitions.
type AuthEventType string

const (
	AuthSignedIn  AuthEventType = "signed_in"
	AuthSignedOut AuthEventType = "signed_out"
)

// AuthEvent is delivered to auth state listeners.
type AuthEvent struct {
	Type      AuthEventType
	Principal Principal
	At        time.Time
}

// AuthState is the onboarding gate state of a visitor.
type AuthState string

const (
	StateAnonymous       AuthState = "ANONYMOUS"
	StateNeedsOnboarding AuthState = "AUTHENTICATED_NO_ONBOARDING"
	StateOnboarded       AuthState = "AUTHENTICATED_ONBOARDED"
)
