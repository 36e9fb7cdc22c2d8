package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"matchpoint/internal/domain"
)

// QuizStore keeps quiz definitions in quizzes (questions as JSONB) and the
// response ledger in quiz_responses, where UNIQUE (quiz_id, respondent_name)
// makes the duplicate check and the append one statement.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func (s *QuizStore) Create(ctx context.Context, quiz domain.QuizDefinition) error {
	return insertQuiz(ctx, s.pool, quiz)
}

// CreateWithinLimit counts and inserts under a per-owner advisory lock, so
// concurrent publishes from any replica see each other.
func (s *QuizStore) CreateWithinLimit(ctx context.Context, quiz domain.QuizDefinition, limit int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", transient(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, quiz.OwnerID); err != nil {
		return fmt.Errorf("lock owner: %w", transient(err))
	}
	var owned int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM quizzes WHERE owner_id = $1`, quiz.OwnerID).Scan(&owned); err != nil {
		return fmt.Errorf("count quizzes: %w", transient(err))
	}
	if owned >= limit {
		return domain.ErrQuotaExceeded
	}
	if err := insertQuiz(ctx, tx, quiz); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", transient(err))
	}
	return nil
}

func insertQuiz(ctx context.Context, db execer, quiz domain.QuizDefinition) error {
	data, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = db.Exec(ctx,
		`INSERT INTO quizzes (id, owner_id, name, image_ref, data, created_at) VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		quiz.ID, quiz.OwnerID, quiz.Name, quiz.ImageRef, string(data), quiz.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", transient(err))
	}
	return nil
}

const selectQuiz = `SELECT id, owner_id, name, image_ref, data, created_at FROM quizzes`

func (s *QuizStore) Get(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	quiz, err := scanQuiz(s.pool.QueryRow(ctx, selectQuiz+` WHERE id = $1`, quizID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizDefinition{}, fmt.Errorf("load quiz: %w", transient(err))
	}
	responses, err := s.responses(ctx, []string{quizID})
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	quiz.Responses = responses[quizID]
	return quiz, nil
}

// GetQuiz loads a quiz without its ledger; it backs the respondent cache.
func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	quiz, err := scanQuiz(s.pool.QueryRow(ctx, selectQuiz+` WHERE id = $1`, quizID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizDefinition{}, fmt.Errorf("load quiz: %w", transient(err))
	}
	return quiz, nil
}

func (s *QuizStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.QuizDefinition, error) {
	return s.list(ctx, selectQuiz+` WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
}

func (s *QuizStore) ListAll(ctx context.Context) ([]domain.QuizDefinition, error) {
	return s.list(ctx, selectQuiz+` ORDER BY created_at DESC, id`)
}

func (s *QuizStore) list(ctx context.Context, query string, args ...interface{}) ([]domain.QuizDefinition, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", transient(err))
	}
	defer rows.Close()

	quizzes := []domain.QuizDefinition{}
	ids := []string{}
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
		ids = append(ids, quiz.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", transient(err))
	}
	if len(ids) == 0 {
		return quizzes, nil
	}

	responses, err := s.responses(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range quizzes {
		quizzes[i].Responses = responses[quizzes[i].ID]
	}
	return quizzes, nil
}

func (s *QuizStore) responses(ctx context.Context, quizIDs []string) (map[string][]domain.ResponseEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT quiz_id, id, respondent_name, answers, score, submitted_at
		   FROM quiz_responses WHERE quiz_id = ANY($1) ORDER BY submitted_at, id`, quizIDs)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", transient(err))
	}
	defer rows.Close()

	out := make(map[string][]domain.ResponseEntry, len(quizIDs))
	for rows.Next() {
		var (
			quizID  string
			entry   domain.ResponseEntry
			answers []byte
		)
		if err := rows.Scan(&quizID, &entry.ID, &entry.RespondentName, &answers, &entry.Score, &entry.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if err := json.Unmarshal(answers, &entry.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		out[quizID] = append(out[quizID], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load responses: %w", transient(err))
	}
	return out, nil
}

func (s *QuizStore) SetImage(ctx context.Context, quizID, imageRef string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quizzes SET image_ref = $2 WHERE id = $1`, quizID, imageRef)
	if err != nil {
		return fmt.Errorf("update quiz image: %w", transient(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// Delete removes the quiz; responses go with it through ON DELETE CASCADE.
func (s *QuizStore) Delete(ctx context.Context, quizID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", transient(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) AppendResponse(ctx context.Context, quizID string, entry domain.ResponseEntry) error {
	answers, err := json.Marshal(entry.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_responses (id, quiz_id, respondent_name, answers, score, submitted_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6)`,
		entry.ID, quizID, entry.RespondentName, string(answers), entry.Score, entry.SubmittedAt)
	switch pgCode(err) {
	case "":
	case codeUniqueViolation:
		return domain.ErrDuplicateRespondent
	case codeForeignKeyViolation:
		return domain.ErrQuizNotFound
	}
	if err != nil {
		return fmt.Errorf("insert response: %w", transient(err))
	}
	return nil
}

func scanQuiz(row pgx.Row) (domain.QuizDefinition, error) {
	var (
		quiz      domain.QuizDefinition
		data      []byte
		createdAt time.Time
	)
	if err := row.Scan(&quiz.ID, &quiz.OwnerID, &quiz.Name, &quiz.ImageRef, &data, &createdAt); err != nil {
		return domain.QuizDefinition{}, err
	}
	if err := json.Unmarshal(data, &quiz.Questions); err != nil {
		return domain.QuizDefinition{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	quiz.CreatedAt = createdAt.UTC()
	return quiz, nil
}
