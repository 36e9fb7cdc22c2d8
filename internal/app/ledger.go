package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"matchpoint/internal/domain"
)

// SubmitResult is what a respondent gets back after submitting.
type SubmitResult struct {
	Entry     domain.ResponseEntry `json:"response"`
	Breakdown []QuestionScore      `json:"breakdown"`
	Match     bool                 `json:"match"`
	// Queued is set when the backend was unavailable and the response waits in the outbox.
	Queued bool `json:"queued"`
}

// LedgerService records respondents' answers, at most one entry per respondent name.
type LedgerService struct {
	store  QuizStore
	reader QuizReader
	syncer *Syncer
	feed   *ResponseFeed
	policy RetryPolicy
	now    func() time.Time
	newID  func() string
	log    *logrus.Entry
}

// NewLedgerService builds a ledger. syncer and feed may be nil.
func NewLedgerService(store QuizStore, reader QuizReader, syncer *Syncer, feed *ResponseFeed) *LedgerService {
	if reader == nil {
		reader = StoreReader{Store: store}
	}
	return &LedgerService{
		store:  store,
		reader: reader,
		syncer: syncer,
		feed:   feed,
		policy: DefaultRetryPolicy,
		now:    time.Now,
		newID:  uuid.NewString,
		log:    logrus.StandardLogger().WithField("component", "ledger"),
	}
}

func (l *LedgerService) SetLogger(log *logrus.Logger) {
	l.log = log.WithField("component", "ledger")
}

func (l *LedgerService) SetRetryPolicy(p RetryPolicy) { l.policy = p }

// Submit scores answers against the quiz and appends the entry. A name that already
// answered gets domain.ErrDuplicateRespondent; names compare case-sensitively.
func (l *LedgerService) Submit(ctx context.Context, quizID, respondentName string, answers domain.AnswerSet) (SubmitResult, error) {
	name := strings.TrimSpace(respondentName)
	if name == "" {
		verr := domain.NewValidationError()
		verr.Add("respondentName", "Please enter your name")
		return SubmitResult{}, verr
	}

	var quiz domain.QuizDefinition
	err := retryRead(ctx, l.policy, func() error {
		var err error
		quiz, err = l.reader.GetQuiz(ctx, quizID)
		return err
	})
	if err != nil {
		return SubmitResult{}, err
	}

	answers = answers.Clone()
	if err := ValidateAnswers(quiz, answers); err != nil {
		return SubmitResult{}, err
	}

	breakdown, score := Breakdown(quiz, answers)
	entry := domain.ResponseEntry{
		ID:             l.newID(),
		RespondentName: name,
		Answers:        answers,
		Score:          score,
		SubmittedAt:    l.now().UTC(),
	}
	result := SubmitResult{Entry: entry, Breakdown: breakdown, Match: entry.IsMatch()}

	logger := l.log.WithFields(logrus.Fields{"quiz_id": quizID, "response_id": entry.ID})
	if err := l.store.AppendResponse(ctx, quizID, entry); err != nil {
		if domain.IsTransient(err) && l.syncer != nil {
			qerr := l.syncer.Enqueue(ctx, PendingMutation{
				Kind:     MutationAppendResponse,
				QuizID:   quizID,
				Response: &entry,
			})
			if qerr != nil {
				return SubmitResult{}, fmt.Errorf("append response: %w", err)
			}
			result.Queued = true
			return result, nil
		}
		return SubmitResult{}, err
	}

	logger.WithField("score", score).Info("response recorded")
	if l.feed != nil {
		l.feed.Publish(quizID, entry)
	}
	return result, nil
}

// Responses returns the ledger of quizID to its owner.
func (l *LedgerService) Responses(ctx context.Context, ownerID, quizID string) ([]domain.ResponseEntry, error) {
	var quiz domain.QuizDefinition
	err := retryRead(ctx, l.policy, func() error {
		var err error
		quiz, err = l.store.Get(ctx, quizID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if quiz.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	if quiz.Responses == nil {
		return []domain.ResponseEntry{}, nil
	}
	return quiz.Responses, nil
}

// ValidateAnswers checks every answered question exists and carries a legal selection.
// Missing questions are fine: scoring leaves them out.
func ValidateAnswers(quiz domain.QuizDefinition, answers domain.AnswerSet) error {
	verr := domain.NewValidationError()
	for idx, sel := range answers {
		field := fmt.Sprintf("answers[%d]", idx)
		if idx < 0 || idx >= len(quiz.Questions) {
			verr.Add(field, "no such question")
			continue
		}
		if msg := checkSelection(quiz.Questions[idx], sel); msg != "" {
			verr.Add(field, msg)
		}
	}
	return verr.OrNil()
}

func checkSelection(q domain.QuizQuestion, sel domain.Selection) string {
	if sel.Empty() {
		return ""
	}
	for _, idx := range sel {
		if idx < 0 || idx >= len(q.Options) {
			return "answer is not one of the options"
		}
	}
	norm := sel.Normalize()
	if !q.MultiSelect && len(norm) != 1 {
		return "choose one answer"
	}
	if q.MultiSelect && len(norm) > 2 {
		return "choose up to 2 answers"
	}
	return ""
}
