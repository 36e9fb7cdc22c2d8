package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
	"matchpoint/internal/questionbank"
)

func (s *Server) questionBank(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": questionbank.All()})
}

// publicQuiz serves GET /v1/quizzes/{id}; preferred answers never leave the server.
func (s *Server) publicQuiz(w http.ResponseWriter, r *http.Request) {
	view, err := s.quizzes.PublicView(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type submitRequest struct {
	RespondentName string           `json:"respondentName"`
	Answers        domain.AnswerSet `json:"answers"`
}

func (s *Server) submitResponse(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.ledger.Submit(r.Context(), mux.Vars(r)["id"], req.RespondentName, req.Answers)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, statusOrAccepted(res.Queued, http.StatusCreated), res)
}

type startSessionRequest struct {
	RespondentName string `json:"respondentName"`
	// TimeLimitSeconds of 0 uses the server default.
	TimeLimitSeconds int `json:"timeLimitSeconds" validate:"min=0,max=86400"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeValid(w, r, &req) {
		return
	}
	limit := time.Duration(req.TimeLimitSeconds) * time.Second
	snap, err := s.sessions.Start(r.Context(), mux.Vars(r)["id"], req.RespondentName, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Get(mux.Vars(r)["sid"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type answerRequest struct {
	Selection domain.Selection `json:"selection"`
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question index")
		return
	}
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := s.sessions.Answer(r.Context(), vars["sid"], index, req.Selection)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) submitSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.sessions.Submit(r.Context(), mux.Vars(r)["sid"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, statusOrAccepted(res.Queued, http.StatusOK), res)
}

type routeDecision struct {
	Path  string           `json:"path"`
	State domain.AuthState `json:"state"`
	app.Decision
}

// resolveRoute answers where a visitor in their current state may go. A missing or
// invalid token is treated as anonymous.
func (s *Server) resolveRoute(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = app.RouteLanding
	}
	state := app.StateOf(nil)
	if tok := bearerToken(r); tok != "" {
		if acct, err := s.accounts.Authenticate(r.Context(), tok); err == nil {
			state = app.StateOf(&acct)
		}
	}
	writeJSON(w, http.StatusOK, routeDecision{Path: path, State: state, Decision: app.Decide(state, path)})
}
