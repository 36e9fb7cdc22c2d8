package http

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"matchpoint/internal/app"
)

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.accounts.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := s.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type federatedRequest struct {
	Assertion string `json:"assertion"`
}

func (s *Server) signInFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.accounts.SignInFederated(r.Context(), req.Assertion)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.SignOut(r.Context(), tokenFrom(r.Context())); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": acct,
		"state":   app.StateOf(&acct),
	})
}

func (s *Server) completeOnboarding(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	var in app.ProfileInput
	if !decode(w, r, &in) {
		return
	}
	res, err := s.accounts.CompleteOnboarding(r.Context(), acct.UID, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, statusOrAccepted(res.Queued, http.StatusOK), res)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	var upd app.ProfileUpdate
	if !decode(w, r, &upd) {
		return
	}
	res, err := s.accounts.UpdateProfile(r.Context(), acct.UID, upd)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, statusOrAccepted(res.Queued, http.StatusOK), res)
}

// updatePhoto takes a multipart form with an "image" file and the "revision" the
// client last saw.
func (s *Server) updatePhoto(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	img, err := readImage(w, r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if img == nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	revision := acct.Revision
	if raw := r.FormValue("revision"); raw != "" {
		if revision, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid revision")
			return
		}
	}
	res, err := s.accounts.UpdatePhoto(r.Context(), acct.UID, *img, revision)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, statusOrAccepted(res.Queued, http.StatusOK), res)
}

func (s *Server) subscription(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	q, err := s.quizzes.Quota(r.Context(), acct)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	d, err := s.analytics.Dashboard(r.Context(), acct.UID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// billingEvent applies a subscription change pushed by the billing provider.
func (s *Server) billingEvent(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Billing-Secret")
	if s.billingSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.billingSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid billing signature")
		return
	}
	var ev app.BillingEvent
	if !decode(w, r, &ev) {
		return
	}
	acct, err := s.accounts.ApplyBillingEvent(r.Context(), ev)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
