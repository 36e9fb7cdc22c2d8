package memory

import (
	"context"
	"sync"

	"matchpoint/internal/domain"
)

// AccountStore is an in-memory implementation of app.AccountStore.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.Account)}
}

func (s *AccountStore) Create(_ context.Context, acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.UID]; ok {
		return domain.ErrAccountExists
	}
	s.accounts[acct.UID] = cloneAccount(acct)
	return nil
}

func (s *AccountStore) Get(_ context.Context, uid string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[uid]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

// Save replaces the account when its stored revision still equals expectedRevision.
func (s *AccountStore) Save(_ context.Context, acct domain.Account, expectedRevision int64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[acct.UID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if cur.Revision != expectedRevision {
		return domain.Account{}, domain.ErrStaleWrite
	}
	acct.Revision = expectedRevision + 1
	acct.CreatedAt = cur.CreatedAt
	s.accounts[acct.UID] = cloneAccount(acct)
	return cloneAccount(acct), nil
}

func cloneAccount(a domain.Account) domain.Account {
	if a.Profile != nil {
		p := *a.Profile
		p.Interests = append([]string(nil), p.Interests...)
		a.Profile = &p
	}
	return a
}
