package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrQuizNotFound indicates the quiz id does not resolve.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrDuplicateRespondent is returned when the respondent name already answered the quiz.
	ErrDuplicateRespondent = errors.New("you have already taken this quiz")
	// ErrAccountNotFound indicates no account document exists for the uid.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned by stores when creating an account twice.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned for a wrong email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailInUse is returned on sign-up with a registered email.
	ErrEmailInUse = errors.New("email already registered")
	// ErrProviderCancelled is returned when the federated sign-in was abandoned.
	ErrProviderCancelled = errors.New("sign-in cancelled by provider")
	// ErrUnauthorized means no valid session accompanies the call.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the session may not act on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrOnboardingComplete is returned when onboarding is submitted twice.
	ErrOnboardingComplete = errors.New("onboarding already completed")
	// ErrSessionNotFound indicates an unknown respondent session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when acting on an already submitted session.
	ErrSessionClosed = errors.New("quiz session already submitted")
	// ErrQuotaExceeded is returned when a free account hits its quiz limit.
	ErrQuotaExceeded = errors.New("free plan quiz limit reached, upgrade to premium for unlimited quizzes")
	// ErrUnavailable marks transient backend failures (network, quota, rate limit).
	ErrUnavailable = errors.New("backend temporarily unavailable")
	// ErrImageTooLarge is returned when an image exceeds the size ceiling.
	ErrImageTooLarge = errors.New("image too large")
	// ErrUnsupportedImage is returned for image types other than jpeg, png and webp.
	ErrUnsupportedImage = errors.New("please upload a valid image file (JPEG, PNG, or WebP)")
	// ErrStaleWrite is returned when a save was based on an outdated revision.
	ErrStaleWrite = errors.New("account was modified concurrently")
	// ErrCredentialNotFound indicates no password login exists for an email.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrInvalidInput is matched by every ValidationError.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports every failing field at once so callers can highlight them.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

// NewValidationError returns an empty error ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records msg for field, keeping the first message per field.
func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = msg
}

// Has reports whether field already failed.
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Fields[field]
	return ok
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrInvalidInput) match any validation error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// IsTransient reports whether err should be retried or queued.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
