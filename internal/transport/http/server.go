package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"matchpoint/internal/app"
)

// Deps holds everything the router dispatches to.
type Deps struct {
	Quizzes   *app.QuizService
	Ledger    *app.LedgerService
	Sessions  *app.SessionService
	Accounts  *app.AccountService
	Analytics *app.AnalyticsService
	Feed      *app.ResponseFeed
	Syncer    *app.Syncer

	// BillingSecret authenticates POST /v1/billing/events; empty disables the endpoint.
	BillingSecret string
	// MediaDir, when set, is served under /media/.
	MediaDir string
	Logger   *logrus.Logger
}

type Server struct {
	quizzes       *app.QuizService
	ledger        *app.LedgerService
	sessions      *app.SessionService
	accounts      *app.AccountService
	analytics     *app.AnalyticsService
	syncer        *app.Syncer
	ws            *WSHandler
	billingSecret string
	mediaDir      string
	log           *logrus.Entry
}

func NewServer(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		quizzes:       d.Quizzes,
		ledger:        d.Ledger,
		sessions:      d.Sessions,
		accounts:      d.Accounts,
		analytics:     d.Analytics,
		syncer:        d.Syncer,
		ws:            NewWSHandler(d.Quizzes, d.Feed, log),
		billingSecret: d.BillingSecret,
		mediaDir:      d.MediaDir,
		log:           log.WithField("component", "http"),
	}
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(requestLogger(s.log))

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if s.mediaDir != "" {
		r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(http.Dir(s.mediaDir))))
	}

	v1 := r.PathPrefix("/v1").Subrouter()

	// respondents and visitors
	v1.HandleFunc("/question-bank", s.questionBank).Methods(http.MethodGet)
	v1.HandleFunc("/quizzes/{id}", s.publicQuiz).Methods(http.MethodGet)
	v1.HandleFunc("/quizzes/{id}/responses", s.submitResponse).Methods(http.MethodPost)
	v1.HandleFunc("/quizzes/{id}/sessions", s.startSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}", s.getSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{sid}/answers/{index:[0-9]+}", s.answer).Methods(http.MethodPut)
	v1.HandleFunc("/sessions/{sid}/submit", s.submitSession).Methods(http.MethodPost)
	v1.HandleFunc("/routes/resolve", s.resolveRoute).Methods(http.MethodGet)

	v1.HandleFunc("/auth/signup", s.signUp).Methods(http.MethodPost)
	v1.HandleFunc("/auth/signin", s.signIn).Methods(http.MethodPost)
	v1.HandleFunc("/auth/federated", s.signInFederated).Methods(http.MethodPost)
	v1.HandleFunc("/billing/events", s.billingEvent).Methods(http.MethodPost)

	authed := v1.NewRoute().Subrouter()
	authed.Use(s.requireAuth)
	authed.HandleFunc("/auth/signout", s.signOut).Methods(http.MethodPost)
	authed.HandleFunc("/me", s.me).Methods(http.MethodGet)

	onboarding := v1.NewRoute().Subrouter()
	onboarding.Use(s.requireAuth, gate(app.RouteOnboardingOnly))
	onboarding.HandleFunc("/onboarding", s.completeOnboarding).Methods(http.MethodPost)

	protected := v1.NewRoute().Subrouter()
	protected.Use(s.requireAuth, gate(app.RouteProtected))
	protected.HandleFunc("/dashboard", s.dashboard).Methods(http.MethodGet)
	protected.HandleFunc("/quizzes", s.listQuizzes).Methods(http.MethodGet)
	protected.HandleFunc("/quizzes", s.createQuiz).Methods(http.MethodPost)
	protected.HandleFunc("/quizzes/{id}", s.deleteQuiz).Methods(http.MethodDelete)
	protected.HandleFunc("/quizzes/{id}/image", s.replaceImage).Methods(http.MethodPut)
	protected.HandleFunc("/quizzes/{id}/image", s.removeImage).Methods(http.MethodDelete)
	protected.HandleFunc("/quizzes/{id}/responses", s.listResponses).Methods(http.MethodGet)
	protected.HandleFunc("/profile", s.updateProfile).Methods(http.MethodPut)
	protected.HandleFunc("/profile/photo", s.updatePhoto).Methods(http.MethodPut)
	protected.HandleFunc("/subscription", s.subscription).Methods(http.MethodGet)
	protected.HandleFunc("/ws/quizzes/{id}", s.ws.ServeWS).Methods(http.MethodGet)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok", "degraded": false}
	if s.syncer != nil && s.syncer.Degraded() {
		body["status"] = "degraded"
		body["degraded"] = true
		if n, err := s.syncer.Pending(r.Context()); err == nil {
			body["pending"] = n
		}
	}
	writeJSON(w, http.StatusOK, body)
}
