package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"matchpoint/internal/domain"
)

type credentialRow struct {
	bun.BaseModel `bun:"table:credentials,alias:c"`

	Email        string    `bun:"email,pk"`
	UID          string    `bun:"uid"`
	DisplayName  string    `bun:"display_name"`
	PasswordHash []byte    `bun:"password_hash"`
	CreatedAt    time.Time `bun:"created_at"`
}

// CredentialStore keeps password logins next to the accounts they sign into.
type CredentialStore struct {
	db bun.IDB
}

func NewCredentialStore(db bun.IDB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) CreateCredential(ctx context.Context, c domain.Credential) error {
	row := &credentialRow{
		Email:        c.Email,
		UID:          c.UID,
		DisplayName:  c.DisplayName,
		PasswordHash: c.PasswordHash,
		CreatedAt:    c.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrEmailInUse
		}
		return fmt.Errorf("insert credential: %w", transient(err))
	}
	return nil
}

func (s *CredentialStore) CredentialByEmail(ctx context.Context, email string) (domain.Credential, error) {
	row := new(credentialRow)
	err := s.db.NewSelect().Model(row).Where("email = ?", email).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("load credential: %w", transient(err))
	}
	return domain.Credential{
		UID:          row.UID,
		Email:        row.Email,
		DisplayName:  row.DisplayName,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
	}, nil
}
