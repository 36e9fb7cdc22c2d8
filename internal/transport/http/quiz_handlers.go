package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
	"matchpoint/internal/media"
)

const multipartOverhead = 1 << 20

// errBadMultipart marks request bodies that are not a readable multipart form.
var errBadMultipart = errors.New("invalid multipart body")

// readImage pulls the optional "image" part out of a multipart request.
func readImage(w http.ResponseWriter, r *http.Request) (*app.ImageUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(media.MaxUploadBytes + multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, domain.ErrImageTooLarge
		}
		return nil, fmt.Errorf("%w: %v", errBadMultipart, err)
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadMultipart, err)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, media.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > media.MaxUploadBytes {
		return nil, domain.ErrImageTooLarge
	}
	return &app.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// createQuiz accepts either a JSON body or a multipart form whose "quiz" field
// carries the JSON and whose "image" part is the optional cover image.
func (s *Server) createQuiz(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	var req app.PublishRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		img, err := readImage(w, r)
		if err != nil {
			writeErr(w, err)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("quiz")), &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid quiz field")
			return
		}
		req.Image = img
	} else if !decode(w, r, &req) {
		return
	}

	quiz, err := s.quizzes.Publish(r.Context(), acct.UID, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (s *Server) listQuizzes(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	quizzes, err := s.quizzes.ListByOwner(r.Context(), acct.UID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quizzes": quizzes})
}

func (s *Server) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	if err := s.quizzes.Delete(r.Context(), acct.UID, mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) replaceImage(w http.ResponseWriter, r *http.Request) {
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
	ref, err := s.quizzes.ReplaceImage(r.Context(), acct.UID, mux.Vars(r)["id"], *img)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"imageRef": ref})
}

func (s *Server) removeImage(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	if err := s.quizzes.RemoveImage(r.Context(), acct.UID, mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listResponses(w http.ResponseWriter, r *http.Request) {
	acct, _ := accountFrom(r.Context())
	responses, err := s.ledger.Responses(r.Context(), acct.UID, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"responses": responses})
}
