package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"matchpoint/internal/app"
	"matchpoint/internal/identity"
	"matchpoint/internal/infra/memory"
	"matchpoint/internal/media"
)

const testBillingSecret = "billing-secret"

type harness struct {
	srv  *httptest.Server
	feed *app.ResponseFeed
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	quizzes := memory.NewQuizStore()
	accounts := memory.NewAccountStore()
	blob := media.NewMemoryBlob("http://media.test")
	idp, err := identity.NewLocal(identity.Config{Secret: []byte("test"), BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	syncer := app.NewSyncer(memory.NewPendingQueue(), quizzes, accounts, nil)
	feed := app.NewResponseFeed()
	quizSvc := app.NewQuizService(quizzes, nil, accounts, media.NewUploader(blob, media.QuizImageOptions, nil))
	quizSvc.SetFreeQuizLimit(1)
	ledger := app.NewLedgerService(quizzes, nil, syncer, feed)
	sessions := app.NewSessionService(memory.NewSessionStore(), quizzes, ledger)

	server := NewServer(Deps{
		Quizzes:       quizSvc,
		Ledger:        ledger,
		Sessions:      sessions,
		Accounts:      app.NewAccountService(accounts, idp, media.NewUploader(blob, media.ProfilePhotoOptions, nil), syncer),
		Analytics:     app.NewAnalyticsService(quizSvc, syncer),
		Feed:          feed,
		Syncer:        syncer,
		BillingSecret: testBillingSecret,
	})
	h := &harness{srv: httptest.NewServer(server.Router()), feed: feed}
	t.Cleanup(h.srv.Close)
	return h
}

type reply struct {
	status int
	body   map[string]interface{}
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}, headers ...string) reply {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := reply{status: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), "body: %s", raw)
	}
	return out
}

func (h *harness) signUp(t *testing.T, email string) (token, uid string) {
	t.Helper()
	res := h.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": email, "password": "secret123", "displayName": "Ana",
	})
	require.Equal(t, http.StatusCreated, res.status, res.body)
	session := res.body["session"].(map[string]interface{})
	account := res.body["account"].(map[string]interface{})
	return session["token"].(string), account["uid"].(string)
}

var validProfile = map[string]interface{}{
	"firstName": "Ana",
	"lastName":  "Lee",
	"age":       29,
	"ageRange":  map[string]int{"min": 25, "max": 35},
	"interests": []string{"Music", "Travel", "Art"},
}

func (h *harness) onboardedCreator(t *testing.T, email string) (token, uid string) {
	t.Helper()
	token, uid = h.signUp(t, email)
	res := h.do(t, http.MethodPost, "/v1/onboarding", token, validProfile)
	require.Equal(t, http.StatusOK, res.status, res.body)
	return token, uid
}

func (h *harness) publish(t *testing.T, token string) string {
	t.Helper()
	res := h.do(t, http.MethodPost, "/v1/quizzes", token, map[string]interface{}{
		"name": "Are we a match?",
		"questions": []map[string]interface{}{
			{"templateId": "q1", "preferredAnswer": 1},
			{"templateId": "q3", "preferredAnswer": []int{0, 3}},
		},
	})
	require.Equal(t, http.StatusCreated, res.status, res.body)
	return res.body["id"].(string)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	res := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ok", res.body["status"])
	assert.Equal(t, false, res.body["degraded"])
}

func TestGateFollowsOnboardingState(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodGet, "/v1/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)

	token, _ := h.signUp(t, "ana@example.com")
	res = h.do(t, http.MethodGet, "/v1/dashboard", token, nil)
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "/onboarding", res.body["redirect"])

	res = h.do(t, http.MethodPost, "/v1/onboarding", token, map[string]interface{}{"firstName": "Ana"})
	require.Equal(t, http.StatusUnprocessableEntity, res.status)
	fields := res.body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "lastName")
	assert.Contains(t, fields, "interests")

	res = h.do(t, http.MethodPost, "/v1/onboarding", token, validProfile)
	require.Equal(t, http.StatusOK, res.status, res.body)

	res = h.do(t, http.MethodGet, "/v1/dashboard", token, nil)
	assert.Equal(t, http.StatusOK, res.status)

	res = h.do(t, http.MethodPost, "/v1/onboarding", token, validProfile)
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "/dashboard", res.body["redirect"])
}

func TestResolveRoute(t *testing.T) {
	h := newHarness(t)
	res := h.do(t, http.MethodGet, "/v1/routes/resolve?path=/dashboard", "", nil)
	assert.Equal(t, "ANONYMOUS", res.body["state"])
	assert.Equal(t, "/", res.body["redirect"])

	res = h.do(t, http.MethodGet, "/v1/routes/resolve?path=/quiz/abc", "", nil)
	assert.Equal(t, true, res.body["allow"])

	token, _ := h.signUp(t, "sam@example.com")
	res = h.do(t, http.MethodGet, "/v1/routes/resolve?path=/subscription", token, nil)
	assert.Equal(t, "AUTHENTICATED_NO_ONBOARDING", res.body["state"])
	assert.Equal(t, "/onboarding", res.body["redirect"])
}

func TestPublishAndRespond(t *testing.T) {
	h := newHarness(t)
	token, _ := h.onboardedCreator(t, "ana@example.com")
	quizID := h.publish(t, token)

	res := h.do(t, http.MethodGet, "/v1/quizzes/"+quizID, "", nil)
	require.Equal(t, http.StatusOK, res.status)
	questions := res.body["questions"].([]interface{})
	require.Len(t, questions, 2)
	assert.NotContains(t, questions[0].(map[string]interface{}), "preferredAnswer")

	submit := map[string]interface{}{
		"respondentName": "Alex",
		"answers":        map[string]interface{}{"0": 1, "1": []int{0, 3}},
	}
	res = h.do(t, http.MethodPost, "/v1/quizzes/"+quizID+"/responses", "", submit)
	require.Equal(t, http.StatusCreated, res.status, res.body)
	assert.Equal(t, true, res.body["match"])
	assert.Equal(t, float64(100), res.body["response"].(map[string]interface{})["score"])

	res = h.do(t, http.MethodPost, "/v1/quizzes/"+quizID+"/responses", "", submit)
	assert.Equal(t, http.StatusConflict, res.status)

	res = h.do(t, http.MethodGet, "/v1/quizzes/"+quizID+"/responses", token, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Len(t, res.body["responses"], 1)

	res = h.do(t, http.MethodGet, "/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, float64(1), res.body["totalResponses"])
	assert.Equal(t, float64(100), res.body["matchRate"])
}

func TestPublishValidationAndQuota(t *testing.T) {
	h := newHarness(t)
	token, _ := h.onboardedCreator(t, "ana@example.com")

	res := h.do(t, http.MethodPost, "/v1/quizzes", token, map[string]interface{}{"name": "", "questions": []interface{}{}})
	require.Equal(t, http.StatusUnprocessableEntity, res.status)
	fields := res.body["fields"].(map[string]interface{})
	assert.Equal(t, "Please enter a quiz name", fields["name"])

	h.publish(t, token)
	res = h.do(t, http.MethodPost, "/v1/quizzes", token, map[string]interface{}{
		"name":      "Second",
		"questions": []map[string]interface{}{{"templateId": "q1", "preferredAnswer": 0}},
	})
	assert.Equal(t, http.StatusPaymentRequired, res.status)

	res = h.do(t, http.MethodGet, "/v1/subscription", token, nil)
	assert.Equal(t, false, res.body["canCreate"])
}

func TestImageUploadRejectsNonMultipartBody(t *testing.T) {
	h := newHarness(t)
	token, _ := h.onboardedCreator(t, "ana@example.com")
	quizID := h.publish(t, token)

	res := h.do(t, http.MethodPut, "/v1/quizzes/"+quizID+"/image", token, map[string]string{"image": "nope"})
	assert.Equal(t, http.StatusBadRequest, res.status, res.body)

	res = h.do(t, http.MethodPut, "/v1/quizzes/"+quizID+"/image", token, map[string]string{"image": "nope"},
		"Content-Type", "multipart/form-data; boundary=missing")
	assert.Equal(t, http.StatusBadRequest, res.status, res.body)

	res = h.do(t, http.MethodPut, "/v1/profile/photo", token, nil)
	assert.Equal(t, http.StatusBadRequest, res.status, res.body)
}

func TestOtherCreatorCannotDelete(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.onboardedCreator(t, "ana@example.com")
	other, _ := h.onboardedCreator(t, "sam@example.com")
	quizID := h.publish(t, owner)

	res := h.do(t, http.MethodDelete, "/v1/quizzes/"+quizID, other, nil)
	assert.Equal(t, http.StatusForbidden, res.status)

	res = h.do(t, http.MethodDelete, "/v1/quizzes/"+quizID, owner, nil)
	assert.Equal(t, http.StatusNoContent, res.status)

	res = h.do(t, http.MethodGet, "/v1/quizzes/"+quizID, "", nil)
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestSessionFlow(t *testing.T) {
	h := newHarness(t)
	token, _ := h.onboardedCreator(t, "ana@example.com")
	quizID := h.publish(t, token)

	res := h.do(t, http.MethodPost, "/v1/quizzes/"+quizID+"/sessions", "", map[string]interface{}{"respondentName": "Kim", "timeLimitSeconds": -1})
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)

	res = h.do(t, http.MethodPost, "/v1/quizzes/"+quizID+"/sessions", "", map[string]interface{}{"respondentName": "Kim", "timeLimitSeconds": 600})
	require.Equal(t, http.StatusCreated, res.status, res.body)
	sid := res.body["id"].(string)

	res = h.do(t, http.MethodPut, "/v1/sessions/"+sid+"/answers/0", "", map[string]interface{}{"selection": 1})
	require.Equal(t, http.StatusOK, res.status, res.body)

	res = h.do(t, http.MethodPut, "/v1/sessions/"+sid+"/answers/0", "", map[string]interface{}{"selection": []int{0, 1}})
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)

	res = h.do(t, http.MethodPost, "/v1/sessions/"+sid+"/submit", "", nil)
	require.Equal(t, http.StatusOK, res.status, res.body)
	// one of two questions answered and correct; the unanswered one is excluded
	assert.Equal(t, float64(100), res.body["response"].(map[string]interface{})["score"])

	res = h.do(t, http.MethodPost, "/v1/sessions/"+sid+"/submit", "", nil)
	assert.Equal(t, http.StatusConflict, res.status)

	res = h.do(t, http.MethodGet, "/v1/sessions/"+sid, "", nil)
	assert.Equal(t, "submitted", res.body["status"])
}

func TestBillingEventRequiresSecret(t *testing.T) {
	h := newHarness(t)
	token, uid := h.onboardedCreator(t, "ana@example.com")
	event := map[string]string{"uid": uid, "type": "subscription.activated"}

	res := h.do(t, http.MethodPost, "/v1/billing/events", "", event, "X-Billing-Secret", "wrong")
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = h.do(t, http.MethodPost, "/v1/billing/events", "", event, "X-Billing-Secret", testBillingSecret)
	require.Equal(t, http.StatusOK, res.status, res.body)
	assert.Equal(t, "premium", res.body["subscriptionTier"])

	res = h.do(t, http.MethodGet, "/v1/subscription", token, nil)
	assert.Equal(t, true, res.body["canCreate"])
	assert.Equal(t, float64(0), res.body["limit"])
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	h.signUp(t, "ana@example.com")

	res := h.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "ana@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = h.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "not-an-email"})
	require.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Contains(t, res.body["fields"], "password")

	res = h.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "ana@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, res.status)
	token := res.body["session"].(map[string]interface{})["token"].(string)

	res = h.do(t, http.MethodPost, "/v1/auth/signout", token, nil)
	assert.Equal(t, http.StatusNoContent, res.status)
	res = h.do(t, http.MethodGet, "/v1/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)
}

func TestValidationFieldsNamedAlikeAcrossEndpoints(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{"email": "not-an-email", "password": "secret123"})
	require.Equal(t, http.StatusUnprocessableEntity, res.status, res.body)
	signUpFields := res.body["fields"].(map[string]interface{})

	res = h.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "not-an-email"})
	require.Equal(t, http.StatusUnprocessableEntity, res.status, res.body)
	signInFields := res.body["fields"].(map[string]interface{})

	assert.Equal(t, "Please enter a valid email address", signUpFields["email"])
	assert.Equal(t, signUpFields["email"], signInFields["email"])
	assert.Equal(t, "password is required", signInFields["password"])

	res = h.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{"email": "long@example.com", "password": strings.Repeat("x", 73)})
	require.Equal(t, http.StatusUnprocessableEntity, res.status, res.body)
	assert.Equal(t, "Password must be at most 72 bytes", res.body["fields"].(map[string]interface{})["password"])
}
