package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"matchpoint/internal/domain"
)

// credentialDoc is keyed by the lower-cased email so the _id index enforces
// one login per address.
type credentialDoc struct {
	Email        string    `bson:"_id"`
	UID          string    `bson:"uid"`
	DisplayName  string    `bson:"displayName"`
	PasswordHash []byte    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
}

// CredentialStore keeps password logins in the "credentials" collection.
type CredentialStore struct {
	coll *mongo.Collection
}

func NewCredentialStore(db *mongo.Database) *CredentialStore {
	return &CredentialStore{coll: db.Collection("credentials")}
}

func (s *CredentialStore) CreateCredential(ctx context.Context, c domain.Credential) error {
	doc := credentialDoc{
		Email:        c.Email,
		UID:          c.UID,
		DisplayName:  c.DisplayName,
		PasswordHash: c.PasswordHash,
		CreatedAt:    c.CreatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrEmailInUse
		}
		return fmt.Errorf("insert credential: %w", transient(err))
	}
	return nil
}

func (s *CredentialStore) CredentialByEmail(ctx context.Context, email string) (domain.Credential, error) {
	var doc credentialDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("load credential: %w", transient(err))
	}
	return domain.Credential{
		UID:          doc.UID,
		Email:        doc.Email,
		DisplayName:  doc.DisplayName,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
	}, nil
}
