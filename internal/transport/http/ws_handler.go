// Package http exposes the coordinator operations over a websocket endpoint
// with typed JSON messages.
package http

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"endurance-quiz-service/internal/app"
	"endurance-quiz-service/internal/broadcast"
	"endurance-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, hub *broadcast.Hub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// outboundMessage is one frame to the client. Topic is set only on broadcast
// events forwarded from the hub; direct replies to an inbound message leave
// it empty, so clients can tell the two apart.
type outboundMessage struct {
	Topic   string `json:"topic,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type quizRefPayload struct {
	QuizID string `json:"quizId"`
}

type joinPayload struct {
	QuizID string        `json:"quizId"`
	Player domain.Player `json:"player"`
}

type leavePayload struct {
	QuizID   string `json:"quizId"`
	PlayerID string `json:"playerId"`
}

type createTriviaPayload struct {
	Title         string `json:"title"`
	QuestionCount int    `json:"questionCount"`
	Difficulty    string `json:"difficulty"`
}

// ServeWS upgrades the request and pumps typed messages between the client
// and the coordinator. Joining a quiz subscribes the connection to that
// quiz's state and roster topics.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var forwarders sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// cancels is only touched by the read loop.
	cancels := make(map[string]func())
	subscribe := func(topic string) {
		if _, ok := cancels[topic]; ok {
			return
		}
		events, cancel := h.hub.Subscribe(topic)
		cancels[topic] = cancel
		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			for {
				select {
				case event, ok := <-events:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage{Topic: event.Topic, Type: event.Type, Payload: event.Payload}:
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
	}

	subscribe(broadcast.TopicQuizList)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleMessage(r, inbound, send, subscribe)
	}

	close(closeSignals)
	for _, cancel := range cancels {
		cancel()
	}
	forwarders.Wait()
	close(send)
	<-writerDone
}

func (h *WSHandler) handleMessage(r *http.Request, inbound inboundMessage, send chan<- outboundMessage, subscribe func(string)) {
	ctx := r.Context()

	switch inbound.Type {
	case "list":
		quizzes, err := h.service.AvailableQuizzes(ctx)
		h.reply(send, "quizzes", quizzes, err)

	case "listAll":
		quizzes, err := h.service.AllQuizzes(ctx)
		h.reply(send, "quizzes", quizzes, err)

	case "get":
		var payload quizRefPayload
		if !h.decode(send, inbound.Payload, &payload) {
			return
		}
		quiz, err := h.service.GetQuiz(ctx, payload.QuizID)
		h.reply(send, "quiz", quiz, err)

	case "create":
		var quiz domain.Quiz
		if !h.decode(send, inbound.Payload, &quiz) {
			return
		}
		created, err := h.service.CreateQuiz(ctx, quiz)
		h.reply(send, "created", created, err)

	case "createTrivia":
		var payload createTriviaPayload
		if !h.decode(send, inbound.Payload, &payload) {
			return
		}
		created, err := h.service.CreateTriviaQuiz(ctx, payload.Title, payload.QuestionCount, payload.Difficulty)
		h.reply(send, "created", created, err)

	case "join":
		var payload joinPayload
		if !h.decode(send, inbound.Payload, &payload) {
			return
		}
		roster, err := h.service.Join(ctx, payload.QuizID, payload.Player)
		if err == nil {
			subscribe(broadcast.StateTopic(payload.QuizID))
			subscribe(broadcast.RosterTopic(payload.QuizID))
		}
		h.reply(send, "players", roster, err)

	case "leave":
		var payload leavePayload
		if !h.decode(send, inbound.Payload, &payload) {
			return
		}
		roster, err := h.service.Leave(ctx, payload.PlayerID, payload.QuizID)
		h.reply(send, "players", roster, err)

	case "start":
		var payload quizRefPayload
		if !h.decode(send, inbound.Payload, &payload) {
			return
		}
		state, err := h.service.Start(ctx, payload.QuizID)
		h.reply(send, "state", state, err)

	case "answer":
		var sub domain.AnswerSubmission
		if !h.decode(send, inbound.Payload, &sub) {
			return
		}
		state, err := h.service.SubmitAnswer(ctx, sub)
		h.reply(send, "state", state, err)

	case "pause":
		var payload quizRefPayload
		if !h.decode(send, inbound.Payload, &payload) {
			return
		}
		state, err := h.service.Pause(ctx, payload.QuizID)
		h.reply(send, "state", state, err)

	case "end":
		var payload quizRefPayload
		if !h.decode(send, inbound.Payload, &payload) {
			return
		}
		state, err := h.service.End(ctx, payload.QuizID)
		h.reply(send, "state", state, err)

	case "state":
		var payload quizRefPayload
		if !h.decode(send, inbound.Payload, &payload) {
			return
		}
		state, err := h.service.CurrentState(payload.QuizID)
		h.reply(send, "state", state, err)

	default:
		send <- outboundMessage{Type: "error", Payload: errorPayload{
			Code:    "validation",
			Message: "unsupported message type",
		}}
	}
}

func (h *WSHandler) decode(send chan<- outboundMessage, raw json.RawMessage, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		send <- outboundMessage{Type: "error", Payload: errorPayload{
			Code:    "validation",
			Message: "invalid payload",
		}}
		return false
	}
	return true
}

func (h *WSHandler) reply(send chan<- outboundMessage, typ string, payload any, err error) {
	if err != nil {
		send <- outboundMessage{Type: "error", Payload: errorPayload{
			Code:    errorCode(err),
			Message: err.Error(),
		}}
		return
	}
	send <- outboundMessage{Type: typ, Payload: payload}
}

func errorCode(err error) string {
	switch {
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsInvalidState(err):
		return "invalid_state"
	case domain.IsValidation(err):
		return "validation"
	default:
		return "internal"
	}
}
