package generator

import (
	"context"

	"github.com/google/uuid"

	"endurance-quiz-service/internal/domain"
)

// Static serves questions from a fixed bank instead of a chat model, useful
// for demos and deployments without a model configured. If the bank is
// smaller than the requested count, the whole bank is returned.
type Static struct {
	bank []domain.Question
}

func NewStatic(bank []domain.Question) *Static {
	return &Static{bank: bank}
}

func (s *Static) Generate(_ context.Context, count int, difficulty string) ([]domain.Question, error) {
	points := PointsForDifficulty(difficulty)
	n := count
	if n > len(s.bank) {
		n = len(s.bank)
	}

	questions := make([]domain.Question, 0, n)
	for _, q := range s.bank[:n] {
		q.ID = uuid.NewString()
		q.Points = points
		questions = append(questions, q)
	}
	return questions, nil
}
