package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeErr maps a service error to its HTTP status.
func writeErr(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: verr.Fields})
		return
	}
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRespondent),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrOnboardingComplete),
		errors.Is(err, domain.ErrStaleWrite),
		errors.Is(err, domain.ErrEmailInUse),
		errors.Is(err, domain.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrProviderCancelled), errors.Is(err, errBadMultipart):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// decodeValid is decode followed by the validate tags of a request DTO.
func decodeValid(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if !decode(w, r, dst) {
		return false
	}
	err := app.ValidateStruct(dst, nil)
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		writeErr(w, err)
	} else {
		writeError(w, http.StatusBadRequest, err.Error())
	}
	return false
}

// statusOrAccepted picks 202 for writes parked in the outbox.
func statusOrAccepted(queued bool, ok int) int {
	if queued {
		return http.StatusAccepted
	}
	return ok
}
