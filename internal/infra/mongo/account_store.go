package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"matchpoint/internal/domain"
)

// AccountStore keeps one document per account, keyed by uid.
type AccountStore struct {
	coll *mongo.Collection
}

func NewAccountStore(db *mongo.Database) *AccountStore {
	return &AccountStore{coll: db.Collection("accounts")}
}

func (s *AccountStore) Create(ctx context.Context, acct domain.Account) error {
	if _, err := s.coll.InsertOne(ctx, toAccountDoc(acct)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", transient(err))
	}
	return nil
}

func (s *AccountStore) Get(ctx context.Context, uid string) (domain.Account, error) {
	var doc accountDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", transient(err))
	}
	return doc.account(), nil
}

func (s *AccountStore) Save(ctx context.Context, acct domain.Account, expectedRevision int64) (domain.Account, error) {
	acct.Revision = expectedRevision + 1
	doc := toAccountDoc(acct)
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": acct.UID, "revision": expectedRevision}, doc)
	if err != nil {
		return domain.Account{}, fmt.Errorf("save account: %w", transient(err))
	}
	if res.MatchedCount == 0 {
		if _, err := s.Get(ctx, acct.UID); err != nil {
			return domain.Account{}, err
		}
		return domain.Account{}, domain.ErrStaleWrite
	}
	return acct, nil
}
