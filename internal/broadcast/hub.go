// Package broadcast is the in-process delivery layer for session snapshots.
// Publishes are fire-and-forget: a slow subscriber has its oldest pending
// event dropped rather than blocking the publisher.
package broadcast

import (
	"sync"

	"endurance-quiz-service/internal/domain"
)

// Topic names mirror the destinations the transport layer exposes.
const TopicQuizList = "quiz.list"

// StateTopic is the per-quiz state snapshot topic.
func StateTopic(quizID string) string { return "quiz.state." + quizID }

// RosterTopic is the per-quiz roster update topic.
func RosterTopic(quizID string) string { return "quiz.players." + quizID }

// Event is one published message on a topic.
type Event struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans events out to per-topic subscriber channels.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel receiving events published to topic. The
// caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, 8)

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.topics[topic]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of topic, displacing the
// oldest buffered event for subscribers that have fallen behind. If a
// concurrent publisher refills the buffer between the drain and the retry,
// the event is dropped instead of blocking.
func (h *Hub) Publish(topic, typ string, payload any) {
	event := Event{Topic: topic, Type: typ, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.topics[topic] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// PublishState implements app.Broadcaster.
func (h *Hub) PublishState(quizID string, state domain.QuizState) {
	h.Publish(StateTopic(quizID), "state", state)
}

// PublishRoster implements app.Broadcaster.
func (h *Hub) PublishRoster(quizID string, roster []domain.RosterEntry) {
	h.Publish(RosterTopic(quizID), "players", roster)
}

// PublishQuizList implements app.Broadcaster.
func (h *Hub) PublishQuizList(quizzes []domain.Quiz) {
	h.Publish(TopicQuizList, "quizzes", quizzes)
}
