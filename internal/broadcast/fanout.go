package broadcast

import (
	"endurance-quiz-service/internal/app"
	"endurance-quiz-service/internal/domain"
)

// Fanout replicates every publish to all wrapped broadcasters, e.g. the
// in-process hub plus an AMQP exchange.
type Fanout []app.Broadcaster

func (f Fanout) PublishState(quizID string, state domain.QuizState) {
	for _, bc := range f {
		bc.PublishState(quizID, state)
	}
}

func (f Fanout) PublishRoster(quizID string, roster []domain.RosterEntry) {
	for _, bc := range f {
		bc.PublishRoster(quizID, roster)
	}
}

func (f Fanout) PublishQuizList(quizzes []domain.Quiz) {
	for _, bc := range f {
		bc.PublishQuizList(quizzes)
	}
}
