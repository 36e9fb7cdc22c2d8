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

type accountRow struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	UID                 string          `bun:"uid,pk"`
	Name                string          `bun:"name"`
	Email               string          `bun:"email"`
	SubscriptionTier    string          `bun:"subscription_tier"`
	OnboardingCompleted bool            `bun:"onboarding_completed"`
	Profile             *domain.Profile `bun:"profile,type:jsonb"`
	Revision            int64           `bun:"revision"`
	CreatedAt           time.Time       `bun:"created_at"`
	UpdatedAt           time.Time       `bun:"updated_at"`
}

func toRow(a domain.Account) *accountRow {
	return &accountRow{
		UID:                 a.UID,
		Name:                a.Name,
		Email:               a.Email,
		SubscriptionTier:    string(a.SubscriptionTier),
		OnboardingCompleted: a.OnboardingCompleted,
		Profile:             a.Profile,
		Revision:            a.Revision,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func (r *accountRow) account() domain.Account {
	return domain.Account{
		UID:                 r.UID,
		Name:                r.Name,
		Email:               r.Email,
		SubscriptionTier:    domain.SubscriptionTier(r.SubscriptionTier),
		OnboardingCompleted: r.OnboardingCompleted,
		Profile:             r.Profile,
		Revision:            r.Revision,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// AccountStore persists accounts through bun.
type AccountStore struct {
	db bun.IDB
}

func NewAccountStore(db bun.IDB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, acct domain.Account) error {
	if _, err := s.db.NewInsert().Model(toRow(acct)).Exec(ctx); err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", transient(err))
	}
	return nil
}

func (s *AccountStore) Get(ctx context.Context, uid string) (domain.Account, error) {
	row := new(accountRow)
	err := s.db.NewSelect().Model(row).Where("uid = ?", uid).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", transient(err))
	}
	return row.account(), nil
}

// Save updates the row only while its revision still equals expectedRevision.
func (s *AccountStore) Save(ctx context.Context, acct domain.Account, expectedRevision int64) (domain.Account, error) {
	row := toRow(acct)
	row.Revision = expectedRevision + 1
	res, err := s.db.NewUpdate().Model(row).
		Column("name", "email", "subscription_tier", "onboarding_completed", "profile", "revision", "updated_at").
		Where("uid = ?", row.UID).
		Where("revision = ?", expectedRevision).
		Exec(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("update account: %w", transient(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Account{}, fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, acct.UID); err != nil {
			return domain.Account{}, err
		}
		return domain.Account{}, domain.ErrStaleWrite
	}
	return s.Get(ctx, acct.UID)
}
