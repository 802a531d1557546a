package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"endurance-quiz-service/internal/domain"
)

// SnapshotMirror is a best-effort app.Broadcaster that keeps the latest
// snapshots in Redis so out-of-process readers (dashboards, a future pub/sub
// projector) can observe session state. Failures are swallowed: the mirror
// carries no delivery guarantee.
type SnapshotMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotMirror(client *redis.Client, ttl time.Duration) *SnapshotMirror {
	return &SnapshotMirror{client: client, ttl: ttl}
}

func (m *SnapshotMirror) PublishState(quizID string, state domain.QuizState) {
	m.set("quiz:state:"+quizID, state)
}

func (m *SnapshotMirror) PublishRoster(quizID string, roster []domain.RosterEntry) {
	m.set("quiz:players:"+quizID, roster)
}

func (m *SnapshotMirror) PublishQuizList(quizzes []domain.Quiz) {
	m.set("quiz:list", quizzes)
}

func (m *SnapshotMirror) set(key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = m.client.Set(context.Background(), key, data, m.ttl).Err()
}
