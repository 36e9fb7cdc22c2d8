package memory

import (
	"context"
	"errors"
	"testing"

	"matchpoint/internal/domain"
)

func TestAccountStoreRevisionGuard(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore()
	acct := domain.Account{UID: "u1", Email: "u1@example.com", SubscriptionTier: domain.TierFree}
	if err := store.Create(ctx, acct); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, acct); !errors.Is(err, domain.ErrAccountExists) {
		t.Fatalf("expected exists, got %v", err)
	}

	acct.Name = "First"
	saved, err := store.Save(ctx, acct, 0)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", saved.Revision)
	}

	acct.Name = "Stale"
	if _, err := store.Save(ctx, acct, 0); !errors.Is(err, domain.ErrStaleWrite) {
		t.Fatalf("expected stale write, got %v", err)
	}
	got, _ := store.Get(ctx, "u1")
	if got.Name != "First" {
		t.Fatalf("stale write leaked: %q", got.Name)
	}
}
