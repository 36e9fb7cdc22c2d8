package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
)

type contextKey string

const (
	accountKey contextKey = "account"
	tokenKey   contextKey = "token"
)

func accountFrom(ctx context.Context) (domain.Account, bool) {
	acct, ok := ctx.Value(accountKey).(domain.Account)
	return acct, ok
}

func tokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey).(string)
	return tok
}

// bearerToken reads the Authorization header, falling back to ?token= for websockets.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// requireAuth resolves the bearer token to a freshly loaded account.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		acct, err := s.accounts.Authenticate(r.Context(), token)
		if err != nil {
			writeErr(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), accountKey, acct)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// gate enforces the onboarding policy for a class of routes. It must run after requireAuth.
func gate(class app.RouteClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct, ok := accountFrom(r.Context())
			var state domain.AuthState
			if ok {
				state = app.StateOf(&acct)
			} else {
				state = app.StateOf(nil)
			}
			d := app.DecideClass(state, class)
			if d.Allow {
				next.ServeHTTP(w, r)
				return
			}
			if state == domain.StateAnonymous {
				writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
				return
			}
			writeJSON(w, http.StatusConflict, errorBody{Error: "route not available in state " + string(state), Redirect: d.Redirect})
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			entry := log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warn("request failed")
				return
			}
			entry.Debug("request served")
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Billing-Secret")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
