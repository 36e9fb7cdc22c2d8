package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"matchpoint/internal/domain"
)

// ProfileInput is the onboarding and profile edit form.
type ProfileInput struct {
	FirstName string          `json:"firstName" validate:"required"`
	LastName  string          `json:"lastName" validate:"required"`
	Age       int             `json:"age" validate:"required,min=18,max=100"`
	PhotoURL  string          `json:"photoUrl,omitempty"`
	Gender    string          `json:"gender,omitempty" validate:"omitempty,gender"`
	AgeRange  domain.AgeRange `json:"ageRange"`
	Interests []string        `json:"interests" validate:"min=3,dive,interest"`
}

type ageRangeInput struct {
	Min int `json:"min" validate:"min=18,max=100"`
	Max int `json:"max" validate:"min=18,max=100,gtefield=Min"`
}

var profileMessages = map[string]string{
	"firstName":       "First name is required",
	"lastName":        "Last name is required",
	"age.required":    "Age is required",
	"age":             "Age must be between 18 and 100",
	"gender":          "Please choose one of the listed options",
	"interests.min":   "Please select at least 3 interests",
	"interests":       "Unknown interest",
	"ageRange.min":    "Ages must be between 18 and 100",
	"ageRange.max":    "Maximum age must be between the minimum and 100",
	"name":            "Please enter your name",
	"email.required":  "Email is required",
	"email":           "Please enter a valid email address",
	"password.min":    "Password must be at least 6 characters",
	"password.bcrypt": "Password must be at most 72 bytes",
	"password":        "Password is required",
	"displayName.max": "Name is too long",
}

func (in ProfileInput) validate() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	verr := domain.NewValidationError()
	if err := ValidateStruct(in, profileMessages); err != nil {
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		for k, v := range ve.Fields {
			verr.Add(k, v)
		}
	}
	if err := ValidateStruct(ageRangeInput(in.AgeRange), nil); err != nil {
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		for k := range ve.Fields {
			verr.Add("ageRange."+k, profileMessages["ageRange."+k])
		}
	}
	return verr.OrNil()
}

func (in ProfileInput) profile() *domain.Profile {
	return &domain.Profile{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Age:       in.Age,
		PhotoURL:  in.PhotoURL,
		Gender:    in.Gender,
		AgeRange:  in.AgeRange,
		Interests: append([]string(nil), in.Interests...),
	}
}

type signUpInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6,bcrypt"`
	DisplayName string `json:"displayName" validate:"max=100"`
}

// AuthResult is returned by every sign-in flavor.
type AuthResult struct {
	Account domain.Account      `json:"account"`
	Token   domain.SessionToken `json:"session"`
	State   domain.AuthState    `json:"state"`
}

// SaveResult reports whether an account write landed or waits in the outbox.
type SaveResult struct {
	Account domain.Account `json:"account"`
	Queued  bool           `json:"queued"`
}

// BillingEventType is an inbound subscription change from the billing provider.
type BillingEventType string

const (
	BillingActivated BillingEventType = "subscription.activated"
	BillingCancelled BillingEventType = "subscription.cancelled"
)

// BillingEvent upgrades or downgrades an account.
type BillingEvent struct {
	UID  string           `json:"uid" validate:"required"`
	Type BillingEventType `json:"type" validate:"required,oneof=subscription.activated subscription.cancelled"`
}

// AccountService owns sign-in, onboarding and profile updates.
type AccountService struct {
	accounts AccountStore
	idp      IdentityProvider
	images   ImageStore
	syncer   *Syncer
	saves    singleflight.Group
	policy   RetryPolicy
	now      func() time.Time
	log      *logrus.Entry
}

// NewAccountService wires the service. images and syncer may be nil.
func NewAccountService(accounts AccountStore, idp IdentityProvider, images ImageStore, syncer *Syncer) *AccountService {
	return &AccountService{
		accounts: accounts,
		idp:      idp,
		images:   images,
		syncer:   syncer,
		policy:   DefaultRetryPolicy,
		now:      time.Now,
		log:      logrus.StandardLogger().WithField("component", "account"),
	}
}

func (s *AccountService) SetLogger(log *logrus.Logger) {
	s.log = log.WithField("component", "account")
}

func (s *AccountService) SetRetryPolicy(p RetryPolicy) { s.policy = p }

// SignUp registers credentials and creates the default account.
func (s *AccountService) SignUp(ctx context.Context, email, password, displayName string) (AuthResult, error) {
	in := signUpInput{Email: strings.TrimSpace(email), Password: password, DisplayName: strings.TrimSpace(displayName)}
	if err := ValidateStruct(in, profileMessages); err != nil {
		return AuthResult{}, err
	}
	p, err := s.idp.SignUp(ctx, in.Email, in.Password, in.DisplayName)
	if err != nil {
		return AuthResult{}, err
	}
	return s.signedIn(ctx, p)
}

func (s *AccountService) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	p, err := s.idp.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return AuthResult{}, err
	}
	return s.signedIn(ctx, p)
}

// SignInFederated accepts an assertion from an upstream identity provider.
func (s *AccountService) SignInFederated(ctx context.Context, assertion string) (AuthResult, error) {
	p, err := s.idp.SignInFederated(ctx, assertion)
	if err != nil {
		return AuthResult{}, err
	}
	return s.signedIn(ctx, p)
}

func (s *AccountService) signedIn(ctx context.Context, p domain.Principal) (AuthResult, error) {
	acct, err := s.ensureAccount(ctx, p)
	if err != nil {
		return AuthResult{}, err
	}
	tok, err := s.idp.Issue(ctx, p)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue session: %w", err)
	}
	s.log.WithFields(logrus.Fields{"uid": p.UID, "provider": p.Provider}).Info("signed in")
	return AuthResult{Account: acct, Token: tok, State: StateOf(&acct)}, nil
}

// ensureAccount loads the account for p, creating the default one on first sign-in.
func (s *AccountService) ensureAccount(ctx context.Context, p domain.Principal) (domain.Account, error) {
	acct, err := s.load(ctx, p.UID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, err
	}
	acct = domain.NewAccount(p, s.now().UTC())
	if err := s.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			return s.load(ctx, p.UID)
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

func (s *AccountService) SignOut(ctx context.Context, token string) error {
	return s.idp.SignOut(ctx, token)
}

// Authenticate resolves a bearer token to a freshly loaded account.
func (s *AccountService) Authenticate(ctx context.Context, token string) (domain.Account, error) {
	if token == "" {
		return domain.Account{}, domain.ErrUnauthorized
	}
	p, err := s.idp.Verify(ctx, token)
	if err != nil {
		return domain.Account{}, domain.ErrUnauthorized
	}
	return s.ensureAccount(ctx, p)
}

// Current returns the account of uid.
func (s *AccountService) Current(ctx context.Context, uid string) (domain.Account, error) {
	return s.load(ctx, uid)
}

func (s *AccountService) load(ctx context.Context, uid string) (domain.Account, error) {
	var acct domain.Account
	err := retryRead(ctx, s.policy, func() error {
		var err error
		acct, err = s.accounts.Get(ctx, uid)
		return err
	})
	return acct, err
}

// CompleteOnboarding stores the profile and flips onboardingCompleted. It runs once.
func (s *AccountService) CompleteOnboarding(ctx context.Context, uid string, in ProfileInput) (SaveResult, error) {
	if err := in.validate(); err != nil {
		return SaveResult{}, err
	}
	acct, err := s.load(ctx, uid)
	if err != nil {
		return SaveResult{}, err
	}
	if acct.OnboardingCompleted {
		return SaveResult{}, domain.ErrOnboardingComplete
	}
	profile := in.profile()
	if profile.PhotoURL == "" && acct.Profile != nil {
		profile.PhotoURL = acct.Profile.PhotoURL
	}
	expected := acct.Revision
	acct.Profile = profile
	acct.OnboardingCompleted = true
	return s.save(ctx, acct, expected)
}

// ProfileUpdate is an edit based on the account revision the client read.
type ProfileUpdate struct {
	Name     string       `json:"name"`
	Profile  ProfileInput `json:"profile"`
	Revision int64        `json:"revision"`
}

// UpdateProfile saves an edit. Saves based on an outdated revision fail with
// domain.ErrStaleWrite and identical concurrent saves collapse into one write.
func (s *AccountService) UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate) (SaveResult, error) {
	if err := upd.Profile.validate(); err != nil {
		return SaveResult{}, err
	}
	acct, err := s.load(ctx, uid)
	if err != nil {
		return SaveResult{}, err
	}
	if acct.Revision != upd.Revision {
		return SaveResult{}, domain.ErrStaleWrite
	}
	if name := strings.TrimSpace(upd.Name); name != "" {
		acct.Name = name
	}
	profile := upd.Profile.profile()
	if profile.PhotoURL == "" && acct.Profile != nil {
		profile.PhotoURL = acct.Profile.PhotoURL
	}
	acct.Profile = profile
	return s.save(ctx, acct, upd.Revision)
}

// UpdatePhoto compresses and uploads a new profile photo.
func (s *AccountService) UpdatePhoto(ctx context.Context, uid string, img ImageUpload, revision int64) (SaveResult, error) {
	if s.images == nil {
		return SaveResult{}, errors.New("image storage not configured")
	}
	acct, err := s.load(ctx, uid)
	if err != nil {
		return SaveResult{}, err
	}
	if acct.Revision != revision {
		return SaveResult{}, domain.ErrStaleWrite
	}
	ref, err := s.images.Store(ctx, profilePhotoPath(uid, img.Filename, s.now()), img.Data, img.ContentType)
	if err != nil {
		return SaveResult{}, fmt.Errorf("store profile photo: %w", err)
	}
	var old string
	if acct.Profile == nil {
		acct.Profile = &domain.Profile{}
	} else {
		cp := *acct.Profile
		acct.Profile = &cp
		old = cp.PhotoURL
	}
	acct.Profile.PhotoURL = ref
	res, err := s.save(ctx, acct, revision)
	if err != nil {
		_ = s.images.Delete(ctx, ref)
		return SaveResult{}, err
	}
	if old != "" && !res.Queued {
		if err := s.images.Delete(ctx, old); err != nil {
			s.log.WithError(err).WithField("uid", uid).Warn("delete old profile photo failed")
		}
	}
	return res, nil
}

// ApplyBillingEvent moves the account between free and premium.
func (s *AccountService) ApplyBillingEvent(ctx context.Context, ev BillingEvent) (domain.Account, error) {
	if err := ValidateStruct(ev, nil); err != nil {
		return domain.Account{}, err
	}
	tier := domain.TierFree
	if ev.Type == BillingActivated {
		tier = domain.TierPremium
	}
	for attempt := 0; attempt < 3; attempt++ {
		acct, err := s.load(ctx, ev.UID)
		if err != nil {
			return domain.Account{}, err
		}
		if acct.SubscriptionTier == tier {
			return acct, nil
		}
		expected := acct.Revision
		acct.SubscriptionTier = tier
		saved, err := s.accounts.Save(ctx, s.stamp(acct), expected)
		if errors.Is(err, domain.ErrStaleWrite) {
			continue
		}
		if err != nil {
			return domain.Account{}, err
		}
		s.log.WithFields(logrus.Fields{"uid": ev.UID, "tier": tier}).Info("subscription changed")
		return saved, nil
	}
	return domain.Account{}, domain.ErrStaleWrite
}

func (s *AccountService) stamp(acct domain.Account) domain.Account {
	acct.UpdatedAt = s.now().UTC()
	return acct
}

// save writes acct conditionally on expected. Identical saves racing for the same
// revision share one store call.
func (s *AccountService) save(ctx context.Context, acct domain.Account, expected int64) (SaveResult, error) {
	acct = s.stamp(acct)
	key := saveKey(acct, expected)
	v, err, _ := s.saves.Do(key, func() (interface{}, error) {
		return s.accounts.Save(ctx, acct, expected)
	})
	if err != nil {
		if domain.IsTransient(err) && s.syncer != nil {
			if qerr := s.syncer.Enqueue(ctx, PendingMutation{
				Kind:             MutationSaveAccount,
				Account:          &acct,
				ExpectedRevision: expected,
			}); qerr == nil {
				return SaveResult{Account: acct, Queued: true}, nil
			}
		}
		return SaveResult{}, err
	}
	return SaveResult{Account: v.(domain.Account)}, nil
}

func saveKey(acct domain.Account, expected int64) string {
	body, _ := json.Marshal(struct {
		Name    string
		Profile *domain.Profile
		Done    bool
	}{acct.Name, acct.Profile, acct.OnboardingCompleted})
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%s:%d:%s", acct.UID, expected, hex.EncodeToString(sum[:8]))
}
