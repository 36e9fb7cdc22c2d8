package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"matchpoint/internal/domain"
)

// QuizStore keeps each quiz as one document with its response ledger embedded.
type QuizStore struct {
	coll *mongo.Collection
}

func NewQuizStore(db *mongo.Database) *QuizStore {
	return &QuizStore{coll: db.Collection("quizzes")}
}

func (s *QuizStore) Create(ctx context.Context, quiz domain.QuizDefinition) error {
	if _, err := s.coll.InsertOne(ctx, toQuizDoc(quiz)); err != nil {
		return fmt.Errorf("insert quiz: %w", transient(err))
	}
	return nil
}

func (s *QuizStore) Get(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	return s.findOne(ctx, quizID)
}

// GetQuiz loads the quiz without its ledger.
func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	return s.findOne(ctx, quizID, options.FindOne().SetProjection(bson.M{"responses": 0}))
}

func (s *QuizStore) findOne(ctx context.Context, quizID string, opts ...*options.FindOneOptions) (domain.QuizDefinition, error) {
	var doc quizDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": quizID}, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizDefinition{}, fmt.Errorf("load quiz: %w", transient(err))
	}
	return doc.quiz(), nil
}

func (s *QuizStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.QuizDefinition, error) {
	return s.find(ctx, bson.M{"ownerId": ownerID})
}

func (s *QuizStore) ListAll(ctx context.Context) ([]domain.QuizDefinition, error) {
	return s.find(ctx, bson.M{})
}

func (s *QuizStore) find(ctx context.Context, filter bson.M) ([]domain.QuizDefinition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", transient(err))
	}
	defer cursor.Close(ctx)

	var docs []quizDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", transient(err))
	}
	quizzes := make([]domain.QuizDefinition, 0, len(docs))
	for _, d := range docs {
		quizzes = append(quizzes, d.quiz())
	}
	return quizzes, nil
}

func (s *QuizStore) SetImage(ctx context.Context, quizID, imageRef string) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": quizID}, bson.M{"$set": bson.M{"imageRef": imageRef}})
	if err != nil {
		return fmt.Errorf("update quiz image: %w", transient(err))
	}
	if res.MatchedCount == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) Delete(ctx context.Context, quizID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": quizID})
	if err != nil {
		return fmt.Errorf("delete quiz: %w", transient(err))
	}
	if res.DeletedCount == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// AppendResponse pushes entry only when no response with the same name exists;
// the filter and the push run as one document update.
func (s *QuizStore) AppendResponse(ctx context.Context, quizID string, entry domain.ResponseEntry) error {
	filter := bson.M{
		"_id":                      quizID,
		"responses.respondentName": bson.M{"$ne": entry.RespondentName},
	}
	update := bson.M{"$push": bson.M{"responses": toResponseDoc(entry)}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("append response: %w", transient(err))
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": quizID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("append response: %w", transient(err))
	}
	if n == 0 {
		return domain.ErrQuizNotFound
	}
	return domain.ErrDuplicateRespondent
}

// EnsureIndexes creates the indexes the listing queries rely on.
func (s *QuizStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return err
}

func transient(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
