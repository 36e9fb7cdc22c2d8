package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"matchpoint/internal/domain"
)

// SessionStatus is the lifecycle stage of a respondent session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionSubmitted SessionStatus = "submitted"
)

// RespondentSession tracks one respondent's in-progress answers to a quiz.
type RespondentSession struct {
	mu sync.Mutex

	id             string
	quizID         string
	respondentName string
	quiz           domain.QuizDefinition
	answers        domain.AnswerSet
	startedAt      time.Time
	lastActivity   time.Time
	deadline       time.Time
	status         SessionStatus
	autoSubmitted  bool
	result         *SubmitResult
	submitErr      error
	timer          *time.Timer
	// idle evicts untimed sessions nobody touches for the retention period.
	idle *time.Timer
}

// SessionSnapshot is a read-only copy of a session's state.
type SessionSnapshot struct {
	ID             string           `json:"id"`
	QuizID         string           `json:"quizId"`
	RespondentName string           `json:"respondentName"`
	Answers        domain.AnswerSet `json:"answers"`
	StartedAt      time.Time        `json:"startedAt"`
	Deadline       *time.Time       `json:"deadline,omitempty"`
	Status         SessionStatus    `json:"status"`
	AutoSubmitted  bool             `json:"autoSubmitted"`
	Result         *SubmitResult    `json:"result,omitempty"`
	Error          string           `json:"error,omitempty"`
}

func (s *RespondentSession) ID() string { return s.id }

func (s *RespondentSession) QuizID() string { return s.quizID }

// Deadline is when the soft timer fires; zero for untimed sessions.
func (s *RespondentSession) Deadline() time.Time { return s.deadline }

// Snapshot copies the current state under the session lock.
func (s *RespondentSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *RespondentSession) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{
		ID:             s.id,
		QuizID:         s.quizID,
		RespondentName: s.respondentName,
		Answers:        s.answers.Clone(),
		StartedAt:      s.startedAt,
		Status:         s.status,
		AutoSubmitted:  s.autoSubmitted,
		Result:         s.result,
	}
	if !s.deadline.IsZero() {
		d := s.deadline
		snap.Deadline = &d
	}
	if s.submitErr != nil {
		snap.Error = s.submitErr.Error()
	}
	return snap
}

// SessionService runs timed respondent sessions on top of the ledger.
type SessionService struct {
	sessions  SessionRepository
	reader    QuizReader
	ledger    *LedgerService
	timeLimit time.Duration
	retention time.Duration
	policy    RetryPolicy
	now       func() time.Time
	newID     func() string
	log       *logrus.Entry
}

func NewSessionService(sessions SessionRepository, reader QuizReader, ledger *LedgerService) *SessionService {
	return &SessionService{
		sessions:  sessions,
		reader:    reader,
		ledger:    ledger,
		retention: 30 * time.Minute,
		policy:    DefaultRetryPolicy,
		now:       time.Now,
		newID:     uuid.NewString,
		log:       logrus.StandardLogger().WithField("component", "session"),
	}
}

// SetTimeLimit sets the default soft timer used when Start gets no explicit limit.
func (s *SessionService) SetTimeLimit(d time.Duration) { s.timeLimit = d }

// SetRetention controls how long finished sessions stay readable and how long an
// untimed session may sit idle before it is dropped.
func (s *SessionService) SetRetention(d time.Duration) { s.retention = d }

func (s *SessionService) SetLogger(log *logrus.Logger) {
	s.log = log.WithField("component", "session")
}

// Start opens a session for respondentName. A timeLimit of zero falls back to the
// service default; a negative one disables the timer.
func (s *SessionService) Start(ctx context.Context, quizID, respondentName string, timeLimit time.Duration) (SessionSnapshot, error) {
	name := strings.TrimSpace(respondentName)
	if name == "" {
		verr := domain.NewValidationError()
		verr.Add("respondentName", "Please enter your name")
		return SessionSnapshot{}, verr
	}

	var quiz domain.QuizDefinition
	err := retryRead(ctx, s.policy, func() error {
		var err error
		quiz, err = s.reader.GetQuiz(ctx, quizID)
		return err
	})
	if err != nil {
		return SessionSnapshot{}, err
	}

	if timeLimit == 0 {
		timeLimit = s.timeLimit
	}
	sess := &RespondentSession{
		id:             s.newID(),
		quizID:         quizID,
		respondentName: name,
		quiz:           quiz.WithoutResponses(),
		answers:        make(domain.AnswerSet),
		startedAt:      s.now().UTC(),
		status:         SessionActive,
	}
	sess.lastActivity = sess.startedAt
	id := sess.id
	if timeLimit > 0 {
		sess.deadline = sess.startedAt.Add(timeLimit)
		sess.timer = time.AfterFunc(timeLimit, func() { s.expire(id) })
	} else if s.retention > 0 {
		sess.idle = time.AfterFunc(s.retention, func() { s.evictIdle(id) })
	}
	s.sessions.Save(sess)

	s.log.WithFields(logrus.Fields{"session_id": sess.id, "quiz_id": quizID}).Debug("session started")
	return sess.Snapshot(), nil
}

// Answer records sel for the question at index. An empty selection clears the answer.
func (s *SessionService) Answer(ctx context.Context, sessionID string, index int, sel domain.Selection) (SessionSnapshot, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return SessionSnapshot{}, domain.ErrSessionNotFound
	}

	sess.mu.Lock()
	if sess.status != SessionActive {
		sess.mu.Unlock()
		return SessionSnapshot{}, domain.ErrSessionClosed
	}
	if !sess.deadline.IsZero() && !s.now().Before(sess.deadline) {
		sess.mu.Unlock()
		return SessionSnapshot{}, domain.ErrSessionClosed
	}
	field := fmt.Sprintf("answers[%d]", index)
	if index < 0 || index >= len(sess.quiz.Questions) {
		sess.mu.Unlock()
		verr := domain.NewValidationError()
		verr.Add(field, "no such question")
		return SessionSnapshot{}, verr
	}
	if msg := checkSelection(sess.quiz.Questions[index], sel); msg != "" {
		sess.mu.Unlock()
		verr := domain.NewValidationError()
		verr.Add(field, msg)
		return SessionSnapshot{}, verr
	}
	if sel.Empty() {
		delete(sess.answers, index)
	} else {
		sess.answers[index] = sel.Normalize()
	}
	sess.lastActivity = s.now()
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	s.sessions.Save(sess)
	return snap, nil
}

// Submit finalizes the session through the ledger. A session submits at most once.
func (s *SessionService) Submit(ctx context.Context, sessionID string) (SubmitResult, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return SubmitResult{}, domain.ErrSessionNotFound
	}
	return s.finish(ctx, sess, false)
}

// Get returns the current state of a session.
func (s *SessionService) Get(sessionID string) (SessionSnapshot, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

func (s *SessionService) expire(sessionID string) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := s.finish(ctx, sess, true)
	logger := s.log.WithFields(logrus.Fields{"session_id": sessionID, "quiz_id": sess.quizID})
	switch {
	case errors.Is(err, domain.ErrSessionClosed):
	case err != nil:
		logger.WithError(err).Warn("auto-submit failed")
	default:
		logger.Info("session auto-submitted on timeout")
	}
}

// evictIdle drops an untimed session whose last answer is older than the
// retention period, re-arming itself when the respondent was active since.
func (s *SessionService) evictIdle(sessionID string) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	sess.mu.Lock()
	if sess.status != SessionActive {
		sess.mu.Unlock()
		return
	}
	if remaining := s.retention - s.now().Sub(sess.lastActivity); remaining > 0 {
		sess.idle = time.AfterFunc(remaining, func() { s.evictIdle(sessionID) })
		sess.mu.Unlock()
		return
	}
	sess.status = SessionSubmitted
	sess.submitErr = domain.ErrSessionClosed
	sess.mu.Unlock()

	s.sessions.Delete(sessionID)
	s.log.WithFields(logrus.Fields{"session_id": sessionID, "quiz_id": sess.quizID}).Debug("idle session evicted")
}

func (s *SessionService) finish(ctx context.Context, sess *RespondentSession, auto bool) (SubmitResult, error) {
	sess.mu.Lock()
	if sess.status != SessionActive {
		sess.mu.Unlock()
		return SubmitResult{}, domain.ErrSessionClosed
	}
	sess.status = SessionSubmitted
	sess.autoSubmitted = auto
	if sess.timer != nil {
		sess.timer.Stop()
	}
	if sess.idle != nil {
		sess.idle.Stop()
	}
	answers := sess.answers.Clone()
	sess.mu.Unlock()

	result, err := s.ledger.Submit(ctx, sess.quizID, sess.respondentName, answers)

	sess.mu.Lock()
	switch {
	case err == nil:
		sess.result = &result
	case errors.Is(err, domain.ErrDuplicateRespondent), errors.Is(err, domain.ErrQuizNotFound), auto:
		// terminal: the respondent cannot fix these by retrying
		sess.submitErr = err
	default:
		sess.status = SessionActive
		if !sess.deadline.IsZero() {
			id := sess.id
			remaining := sess.deadline.Sub(s.now())
			if remaining < 0 {
				remaining = 0
			}
			sess.timer = time.AfterFunc(remaining, func() { s.expire(id) })
		} else if s.retention > 0 {
			id := sess.id
			sess.lastActivity = s.now()
			sess.idle = time.AfterFunc(s.retention, func() { s.evictIdle(id) })
		}
	}
	closed := sess.status == SessionSubmitted
	sess.mu.Unlock()

	s.sessions.Save(sess)
	if closed && s.retention > 0 {
		id := sess.id
		time.AfterFunc(s.retention, func() { s.sessions.Delete(id) })
	}
	return result, err
}
