package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
)

// WSHandler streams a quiz's new responses to its owner.
type WSHandler struct {
	quizzes  *app.QuizService
	feed     *app.ResponseFeed
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewWSHandler(quizzes *app.QuizService, feed *app.ResponseFeed, log *logrus.Logger) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHandler{
		quizzes: quizzes,
		feed:    feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.WithField("component", "ws"),
	}
}

type inboundMessage struct {
	Type string `json:"type"`
}

type snapshotPayload struct {
	QuizID    string                 `json:"quizId"`
	Name      string                 `json:"name"`
	Responses []domain.ResponseEntry `json:"responses"`
	Total     int                    `json:"total"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades an authenticated owner's request and pushes a "snapshot" of the
// ledger followed by one "response" message per new submission. Clients may send
// {"type":"refresh"} to get a fresh snapshot.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFrom(r.Context())
	if !ok {
		writeErr(w, domain.ErrUnauthorized)
		return
	}
	quizID := mux.Vars(r)["id"]
	quiz, err := h.quizzes.Owned(r.Context(), acct.UID, quizID)
	if err != nil {
		writeErr(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	logger := h.log.WithFields(logrus.Fields{"quiz_id": quizID, "uid": acct.UID})
	updates, cancel := h.feed.Subscribe(quizID, len(quiz.Responses))
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "response", Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "snapshot", Payload: snapshotOf(quiz)}

	for {
		var inbound inboundMessage
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := json.Unmarshal(raw, &inbound); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid message"}}
			continue
		}
		switch inbound.Type {
		case "refresh":
			fresh, err := h.quizzes.Owned(r.Context(), acct.UID, quizID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "snapshot", Payload: snapshotOf(fresh)}
		case "ping":
			send <- outboundMessage[any]{Type: "pong", Payload: struct{}{}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func snapshotOf(quiz domain.QuizDefinition) snapshotPayload {
	responses := quiz.Responses
	if responses == nil {
		responses = []domain.ResponseEntry{}
	}
	return snapshotPayload{QuizID: quiz.ID, Name: quiz.Name, Responses: responses, Total: len(responses)}
}
