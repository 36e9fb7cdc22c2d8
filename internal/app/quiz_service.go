package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"matchpoint/internal/domain"
	"matchpoint/internal/questionbank"
)

// PublishQuestion is one bank question picked by the creator with their preferred answer.
type PublishQuestion struct {
	TemplateID      string           `json:"templateId"`
	PreferredAnswer domain.Selection `json:"preferredAnswer"`
}

// ImageUpload is a raw image supplied by a client.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PublishRequest is the creator's quiz form.
type PublishRequest struct {
	Name      string            `json:"name"`
	Questions []PublishQuestion `json:"questions"`
	Image     *ImageUpload      `json:"-"`
}

// PublicQuestion is what respondents see: no preferred answer.
type PublicQuestion struct {
	Text        string   `json:"text"`
	Options     []string `json:"options"`
	MultiSelect bool     `json:"multiSelect"`
}

// PublicQuiz is the respondent-facing view of a quiz.
type PublicQuiz struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	ImageRef  string           `json:"imageRef,omitempty"`
	Questions []PublicQuestion `json:"questions"`
	CreatedAt time.Time        `json:"createdAt"`
}

// QuizService contains the creator-side quiz use cases.
type QuizService struct {
	store     QuizStore
	reader    QuizReader
	accounts  AccountStore
	images    ImageStore
	cache     QuizInvalidator
	freeLimit int
	policy    RetryPolicy
	now       func() time.Time
	newID     func() string
	log       *logrus.Entry

	// ownerLocks serialise quota-checked publishes per owner.
	ownerLocks [32]sync.Mutex
}

func NewQuizService(store QuizStore, reader QuizReader, accounts AccountStore, images ImageStore) *QuizService {
	if reader == nil {
		reader = StoreReader{Store: store}
	}
	return &QuizService{
		store:     store,
		reader:    reader,
		accounts:  accounts,
		images:    images,
		freeLimit: 1,
		policy:    DefaultRetryPolicy,
		now:       time.Now,
		newID:     uuid.NewString,
		log:       logrus.StandardLogger().WithField("component", "quiz"),
	}
}

// SetFreeQuizLimit caps how many quizzes a free account may own; n <= 0 disables the cap.
func (s *QuizService) SetFreeQuizLimit(n int) { s.freeLimit = n }

// SetInvalidator wires the respondent-side cache so deletions are visible immediately.
func (s *QuizService) SetInvalidator(inv QuizInvalidator) { s.cache = inv }

func (s *QuizService) SetLogger(log *logrus.Logger) {
	s.log = log.WithField("component", "quiz")
}

// SetRetryPolicy overrides the read retry policy.
func (s *QuizService) SetRetryPolicy(p RetryPolicy) { s.policy = p }

// Publish validates the form, copies the selected bank questions by value and persists
// the quiz. Nothing is written unless every check passes.
func (s *QuizService) Publish(ctx context.Context, ownerID string, req PublishRequest) (domain.QuizDefinition, error) {
	questions, err := validatePublish(req)
	if err != nil {
		return domain.QuizDefinition{}, err
	}

	limit, err := s.quizLimit(ctx, ownerID)
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	if limit > 0 {
		mu := s.ownerLock(ownerID)
		mu.Lock()
		defer mu.Unlock()
		if err := s.checkQuota(ctx, ownerID, limit); err != nil {
			return domain.QuizDefinition{}, err
		}
	}

	quiz := domain.QuizDefinition{
		ID:        s.newID(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(req.Name),
		Questions: questions,
		CreatedAt: s.now().UTC(),
	}

	if req.Image != nil && s.images != nil {
		ref, err := s.images.Store(ctx, quizImagePath(quiz.ID, req.Image.Filename, s.now()), req.Image.Data, req.Image.ContentType)
		if err != nil {
			return domain.QuizDefinition{}, fmt.Errorf("store quiz image: %w", err)
		}
		quiz.ImageRef = ref
	}

	if err := s.create(ctx, quiz, limit); err != nil {
		if quiz.ImageRef != "" {
			s.deleteImage(ctx, quiz.ImageRef)
		}
		return domain.QuizDefinition{}, fmt.Errorf("create quiz: %w", err)
	}
	s.log.WithFields(logrus.Fields{"quiz_id": quiz.ID, "uid": ownerID, "questions": len(quiz.Questions)}).Info("quiz published")
	return quiz, nil
}

// validatePublish checks name, question count and preferred answers, in that order,
// and resolves the selected templates.
func validatePublish(req PublishRequest) ([]domain.QuizQuestion, error) {
	verr := domain.NewValidationError()

	if strings.TrimSpace(req.Name) == "" {
		verr.Add("name", "Please enter a quiz name")
	}
	switch n := len(req.Questions); {
	case n == 0:
		verr.Add("questions", "Please select at least 1 question for your quiz")
	case n > domain.MaxQuestions:
		verr.Add("questions", fmt.Sprintf("Please select no more than %d questions (maximum allowed)", domain.MaxQuestions))
	}

	out := make([]domain.QuizQuestion, 0, len(req.Questions))
	seen := make(map[string]bool, len(req.Questions))
	for i, pq := range req.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if pq.PreferredAnswer.Empty() {
			verr.Add(field+".preferredAnswer", "Please set your preferred answer for all selected questions")
		}
		tmpl, ok := questionbank.Get(pq.TemplateID)
		if !ok {
			verr.Add(field+".templateId", "unknown question")
			continue
		}
		if seen[tmpl.ID] {
			verr.Add(field+".templateId", "question selected twice")
			continue
		}
		seen[tmpl.ID] = true

		preferred := pq.PreferredAnswer.Normalize()
		if !preferred.Empty() {
			if msg := checkPreferred(tmpl, preferred); msg != "" {
				verr.Add(field+".preferredAnswer", msg)
			}
		}
		out = append(out, domain.QuizQuestion{
			TemplateID:      tmpl.ID,
			Text:            tmpl.Text,
			Options:         tmpl.Options,
			MultiSelect:     tmpl.MultiSelect,
			PreferredAnswer: preferred,
		})
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkPreferred(tmpl domain.QuestionTemplate, preferred domain.Selection) string {
	for _, idx := range preferred {
		if idx < 0 || idx >= len(tmpl.Options) {
			return "preferred answer is not one of the options"
		}
	}
	if !tmpl.MultiSelect && len(preferred) != 1 {
		return "choose exactly one preferred answer"
	}
	if tmpl.MultiSelect && len(preferred) > 2 {
		return "choose up to 2 preferred answers"
	}
	return ""
}

// quizLimit returns how many quizzes ownerID may hold; 0 means unlimited.
func (s *QuizService) quizLimit(ctx context.Context, ownerID string) (int, error) {
	if s.freeLimit <= 0 || s.accounts == nil {
		return 0, nil
	}
	var acct domain.Account
	err := retryRead(ctx, s.policy, func() error {
		var err error
		acct, err = s.accounts.Get(ctx, ownerID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("load owner: %w", err)
	}
	if acct.SubscriptionTier == domain.TierPremium {
		return 0, nil
	}
	return s.freeLimit, nil
}

// checkQuota fails early, before any image is uploaded.
func (s *QuizService) checkQuota(ctx context.Context, ownerID string, limit int) error {
	owned, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if len(owned) >= limit {
		return domain.ErrQuotaExceeded
	}
	return nil
}

// create repeats the cap inside the store write when the store supports it, so
// publishes from other processes cannot slip past the count.
func (s *QuizService) create(ctx context.Context, quiz domain.QuizDefinition, limit int) error {
	if lc, ok := s.store.(LimitedCreator); ok && limit > 0 {
		return lc.CreateWithinLimit(ctx, quiz, limit)
	}
	return s.store.Create(ctx, quiz)
}

func (s *QuizService) ownerLock(ownerID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ownerID))
	return &s.ownerLocks[h.Sum32()%uint32(len(s.ownerLocks))]
}

// Quota describes how many quizzes an account may still publish. Limit 0 means unlimited.
type Quota struct {
	Tier      domain.SubscriptionTier `json:"tier"`
	Used      int                     `json:"used"`
	Limit     int                     `json:"limit"`
	CanCreate bool                    `json:"canCreate"`
}

// Quota reports acct's plan usage.
func (s *QuizService) Quota(ctx context.Context, acct domain.Account) (Quota, error) {
	owned, err := s.ListByOwner(ctx, acct.UID)
	if err != nil {
		return Quota{}, err
	}
	q := Quota{Tier: acct.SubscriptionTier, Used: len(owned), CanCreate: true}
	if acct.SubscriptionTier != domain.TierPremium && s.freeLimit > 0 {
		q.Limit = s.freeLimit
		q.CanCreate = q.Used < q.Limit
	}
	return q, nil
}

// Get returns the full quiz for respondents' scoring paths, served through the cache.
func (s *QuizService) Get(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	var quiz domain.QuizDefinition
	err := retryRead(ctx, s.policy, func() error {
		var err error
		quiz, err = s.reader.GetQuiz(ctx, quizID)
		return err
	})
	return quiz, err
}

// PublicView returns the quiz without preferred answers or responses.
func (s *QuizService) PublicView(ctx context.Context, quizID string) (PublicQuiz, error) {
	quiz, err := s.Get(ctx, quizID)
	if err != nil {
		return PublicQuiz{}, err
	}
	return ToPublic(quiz), nil
}

// ToPublic strips creator-only data from quiz.
func ToPublic(quiz domain.QuizDefinition) PublicQuiz {
	view := PublicQuiz{
		ID:        quiz.ID,
		Name:      quiz.Name,
		ImageRef:  quiz.ImageRef,
		CreatedAt: quiz.CreatedAt,
		Questions: make([]PublicQuestion, len(quiz.Questions)),
	}
	for i, q := range quiz.Questions {
		view.Questions[i] = PublicQuestion{Text: q.Text, Options: q.Options, MultiSelect: q.MultiSelect}
	}
	return view
}

// ListByOwner returns the creator's quizzes including their responses.
func (s *QuizService) ListByOwner(ctx context.Context, ownerID string) ([]domain.QuizDefinition, error) {
	var quizzes []domain.QuizDefinition
	err := retryRead(ctx, s.policy, func() error {
		var err error
		quizzes, err = s.store.ListByOwner(ctx, ownerID)
		return err
	})
	return quizzes, err
}

// Owned loads quizID straight from the store and checks ownerID owns it.
func (s *QuizService) Owned(ctx context.Context, ownerID, quizID string) (domain.QuizDefinition, error) {
	var quiz domain.QuizDefinition
	err := retryRead(ctx, s.policy, func() error {
		var err error
		quiz, err = s.store.Get(ctx, quizID)
		return err
	})
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	if quiz.OwnerID != ownerID {
		return domain.QuizDefinition{}, domain.ErrForbidden
	}
	return quiz, nil
}

// Delete removes the quiz, its image and its embedded responses.
func (s *QuizService) Delete(ctx context.Context, ownerID, quizID string) error {
	quiz, err := s.Owned(ctx, ownerID, quizID)
	if err != nil {
		return err
	}
	if quiz.ImageRef != "" {
		s.deleteImage(ctx, quiz.ImageRef)
	}
	if err := s.store.Delete(ctx, quizID); err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	s.invalidate(ctx, quizID)
	s.log.WithFields(logrus.Fields{"quiz_id": quizID, "uid": ownerID, "responses": len(quiz.Responses)}).Info("quiz deleted")
	return nil
}

// ReplaceImage uploads a new quiz image and drops the previous one.
func (s *QuizService) ReplaceImage(ctx context.Context, ownerID, quizID string, img ImageUpload) (string, error) {
	if s.images == nil {
		return "", errors.New("image storage not configured")
	}
	quiz, err := s.Owned(ctx, ownerID, quizID)
	if err != nil {
		return "", err
	}
	ref, err := s.images.Store(ctx, quizImagePath(quizID, img.Filename, s.now()), img.Data, img.ContentType)
	if err != nil {
		return "", fmt.Errorf("store quiz image: %w", err)
	}
	if err := s.store.SetImage(ctx, quizID, ref); err != nil {
		s.deleteImage(ctx, ref)
		return "", fmt.Errorf("set quiz image: %w", err)
	}
	if quiz.ImageRef != "" {
		s.deleteImage(ctx, quiz.ImageRef)
	}
	s.invalidate(ctx, quizID)
	return ref, nil
}

// RemoveImage clears the quiz image.
func (s *QuizService) RemoveImage(ctx context.Context, ownerID, quizID string) error {
	quiz, err := s.Owned(ctx, ownerID, quizID)
	if err != nil {
		return err
	}
	if quiz.ImageRef == "" {
		return nil
	}
	if err := s.store.SetImage(ctx, quizID, ""); err != nil {
		return fmt.Errorf("clear quiz image: %w", err)
	}
	s.deleteImage(ctx, quiz.ImageRef)
	s.invalidate(ctx, quizID)
	return nil
}

// deleteImage is best effort: a stale blob never blocks the quiz operation.
func (s *QuizService) deleteImage(ctx context.Context, ref string) {
	if s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, ref); err != nil {
		s.log.WithError(err).WithField("image", ref).Warn("delete quiz image failed")
	}
}

func (s *QuizService) invalidate(ctx context.Context, quizID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, quizID)
	}
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

func quizImagePath(quizID, filename string, now time.Time) string {
	return fmt.Sprintf("quiz-images/%s/%d_%s", quizID, now.UnixMilli(), sanitizeFilename(filename))
}

func profilePhotoPath(uid, filename string, now time.Time) string {
	return fmt.Sprintf("profile-pictures/%s/%d_%s", uid, now.UnixMilli(), sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	if name == "" {
		return "image.jpg"
	}
	return unsafeName.ReplaceAllString(name, "_")
}

// StoreReader adapts a QuizStore to QuizReader when no cache is configured.
type StoreReader struct {
	Store QuizStore
}

func (r StoreReader) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	return r.Store.Get(ctx, quizID)
}
