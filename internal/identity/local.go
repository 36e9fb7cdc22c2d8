// Package identity provides the bundled identity provider: bcrypt password
// credentials and HS256 session tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"matchpoint/internal/domain"
)

const (
	ProviderPassword = "password"
	defaultTokenTTL  = 24 * time.Hour
)

// CredentialStore persists password logins. CreateCredential returns
// domain.ErrEmailInUse for a taken email; CredentialByEmail returns
// domain.ErrCredentialNotFound for an unknown one.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c domain.Credential) error
	CredentialByEmail(ctx context.Context, email string) (domain.Credential, error)
}

// Config configures a Local provider.
type Config struct {
	Secret          []byte
	FederatedSecret []byte
	TokenTTL        time.Duration
	Issuer          string
	BcryptCost      int
	// Credentials defaults to an in-process map that does not survive restarts.
	Credentials CredentialStore
}

type sessionClaims struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// FederatedClaims is the assertion an upstream identity provider hands over
// after it has authenticated the user.
type FederatedClaims struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Picture   string `json:"picture,omitempty"`
	Provider  string `json:"provider"`
	Cancelled bool   `json:"cancelled,omitempty"`
	jwt.RegisteredClaims
}

// Local is an in-process identity provider.
type Local struct {
	cfg Config
	now func() time.Time

	creds CredentialStore

	mu        sync.RWMutex
	revoked   map[string]time.Time
	listeners map[int]func(domain.AuthEvent)
	nextID    int
}

func NewLocal(cfg Config) (*Local, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("identity: token secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "matchpoint"
	}
	creds := cfg.Credentials
	if creds == nil {
		creds = newMemoryCredentials()
	}
	return &Local{
		cfg:       cfg,
		now:       time.Now,
		creds:     creds,
		revoked:   make(map[string]time.Time),
		listeners: make(map[int]func(domain.AuthEvent)),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (l *Local) SignUp(ctx context.Context, email, password, displayName string) (domain.Principal, error) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cfg.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		verr := domain.NewValidationError()
		verr.Add("password", "Password must be at most 72 bytes")
		return domain.Principal{}, verr
	}
	if err != nil {
		return domain.Principal{}, fmt.Errorf("hash password: %w", err)
	}

	cred := domain.Credential{
		UID:          uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    l.now().UTC(),
	}
	if err := l.creds.CreateCredential(ctx, cred); err != nil {
		return domain.Principal{}, err
	}

	p := domain.Principal{UID: cred.UID, Email: email, DisplayName: displayName, Provider: ProviderPassword}
	l.emit(domain.AuthSignedIn, p)
	return p, nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (domain.Principal, error) {
	cred, err := l.creds.CredentialByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrCredentialNotFound) {
		return domain.Principal{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Principal{}, err
	}
	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		return domain.Principal{}, domain.ErrInvalidCredentials
	}
	p := domain.Principal{UID: cred.UID, Email: cred.Email, DisplayName: cred.DisplayName, Provider: ProviderPassword}
	l.emit(domain.AuthSignedIn, p)
	return p, nil
}

// SignInFederated verifies an upstream assertion signed with the federated secret.
func (l *Local) SignInFederated(_ context.Context, assertion string) (domain.Principal, error) {
	if assertion == "" {
		return domain.Principal{}, domain.ErrProviderCancelled
	}
	if len(l.cfg.FederatedSecret) == 0 {
		return domain.Principal{}, errors.New("identity: federated sign-in not configured")
	}
	var claims FederatedClaims
	_, err := jwt.ParseWithClaims(assertion, &claims, func(*jwt.Token) (interface{}, error) {
		return l.cfg.FederatedSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(l.now))
	if err != nil {
		return domain.Principal{}, domain.ErrInvalidCredentials
	}
	if claims.Cancelled {
		return domain.Principal{}, domain.ErrProviderCancelled
	}
	if claims.Subject == "" || claims.Provider == "" {
		return domain.Principal{}, domain.ErrInvalidCredentials
	}
	p := domain.Principal{
		UID:         claims.Provider + ":" + claims.Subject,
		Email:       normalizeEmail(claims.Email),
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
		Provider:    claims.Provider,
	}
	l.emit(domain.AuthSignedIn, p)
	return p, nil
}

// Issue mints a session token for p.
func (l *Local) Issue(_ context.Context, p domain.Principal) (domain.SessionToken, error) {
	now := l.now()
	exp := now.Add(l.cfg.TokenTTL)
	claims := sessionClaims{
		Email:    p.Email,
		Name:     p.DisplayName,
		Picture:  p.PhotoURL,
		Provider: p.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UID,
			Issuer:    l.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.cfg.Secret)
	if err != nil {
		return domain.SessionToken{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.SessionToken{Token: signed, ExpiresAt: exp}, nil
}

func (l *Local) parse(token string) (*sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return l.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(l.cfg.Issuer), jwt.WithTimeFunc(l.now))
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

// Verify checks a session token and rejects signed-out ones.
func (l *Local) Verify(_ context.Context, token string) (domain.Principal, error) {
	claims, err := l.parse(token)
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	l.mu.RLock()
	_, revoked := l.revoked[claims.ID]
	l.mu.RUnlock()
	if revoked {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return domain.Principal{
		UID:         claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
		Provider:    claims.Provider,
	}, nil
}

// SignOut revokes token until it would have expired anyway.
func (l *Local) SignOut(_ context.Context, token string) error {
	claims, err := l.parse(token)
	if err != nil {
		return domain.ErrUnauthorized
	}
	now := l.now()
	l.mu.Lock()
	for id, until := range l.revoked {
		if until.Before(now) {
			delete(l.revoked, id)
		}
	}
	exp := now.Add(l.cfg.TokenTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	l.revoked[claims.ID] = exp
	l.mu.Unlock()

	l.emit(domain.AuthSignedOut, domain.Principal{UID: claims.Subject, Email: claims.Email, Provider: claims.Provider})
	return nil
}

// OnAuthStateChange registers fn for sign-in and sign-out events.
func (l *Local) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

func (l *Local) emit(typ domain.AuthEventType, p domain.Principal) {
	ev := domain.AuthEvent{Type: typ, Principal: p, At: l.now()}
	l.mu.RLock()
	fns := make([]func(domain.AuthEvent), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// SignAssertion mints a federated assertion the way an upstream provider would.
func SignAssertion(secret []byte, claims FederatedClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

type memoryCredentials struct {
	mu      sync.RWMutex
	byEmail map[string]domain.Credential
}

func newMemoryCredentials() *memoryCredentials {
	return &memoryCredentials{byEmail: make(map[string]domain.Credential)}
}

func (m *memoryCredentials) CreateCredential(_ context.Context, c domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[c.Email]; ok {
		return domain.ErrEmailInUse
	}
	m.byEmail[c.Email] = c
	return nil
}

func (m *memoryCredentials) CredentialByEmail(_ context.Context, email string) (domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byEmail[email]
	if !ok {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	return c, nil
}
