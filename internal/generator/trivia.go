// Package generator produces quiz questions from a prompt-driven chat model.
// Responses use a marker format (QUESTION/OPTIONS/CORRECT/EXPLANATION) and
// blocks that fail to parse are skipped, so callers may receive fewer
// questions than requested.
package generator

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"endurance-quiz-service/internal/domain"
)

const (
	questionMarker    = "QUESTION:"
	optionsMarker     = "OPTIONS:"
	correctMarker     = "CORRECT:"
	explanationMarker = "EXPLANATION:"
)

var optionPattern = regexp.MustCompile(`^([A-D]): (.+)$`)

const systemPromptTemplate = `You are a trivia expert. Create engaging,
factually accurate multiple-choice trivia questions.

Each question should be %s difficulty.

Format your response as follows for each question:

QUESTION: [The question text]
OPTIONS:
A: [Option A]
B: [Option B]
C: [Option C]
D: [Option D]
CORRECT: [The letter of the correct answer]
EXPLANATION: [Brief explanation of the answer]`

// ChatModel abstracts the prompt-driven completion backend.
type ChatModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// TriviaGenerator implements app.QuestionGenerator on top of a ChatModel.
type TriviaGenerator struct {
	model ChatModel
}

func New(model ChatModel) *TriviaGenerator {
	return &TriviaGenerator{model: model}
}

// Generate asks the model for count questions at the given difficulty and
// parses whatever well-formed blocks come back.
func (g *TriviaGenerator) Generate(ctx context.Context, count int, difficulty string) ([]domain.Question, error) {
	system := fmt.Sprintf(systemPromptTemplate, difficulty)
	user := fmt.Sprintf("Generate %d trivia questions", count)

	response, err := g.model.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	return ParseQuestions(response, PointsForDifficulty(difficulty)), nil
}

// PointsForDifficulty maps a difficulty label to a per-question point value.
// Unrecognized labels fall back to 1.
func PointsForDifficulty(difficulty string) int {
	switch strings.ToLower(difficulty) {
	case "easy":
		return 1
	case "medium":
		return 2
	case "hard":
		return 3
	default:
		return 1
	}
}

// ParseQuestions splits a marker-formatted response into questions. Blocks
// that cannot be parsed are logged and skipped.
func ParseQuestions(response string, points int) []domain.Question {
	blocks := strings.Split(response, questionMarker)

	var questions []domain.Question
	for _, block := range blocks[1:] {
		question, err := parseQuestionBlock(strings.TrimSpace(block), points)
		if err != nil {
			log.Printf("failed to parse question block: %v", err)
			continue
		}
		questions = append(questions, question)
	}
	return questions
}

func parseQuestionBlock(block string, points int) (domain.Question, error) {
	text, err := section(block, "", optionsMarker)
	if err != nil {
		return domain.Question{}, err
	}

	optionsSection, err := section(block, optionsMarker, correctMarker)
	if err != nil {
		return domain.Question{}, err
	}
	options := parseOptions(optionsSection)
	if len(options) == 0 {
		return domain.Question{}, fmt.Errorf("no options found")
	}

	correctSection, err := section(block, correctMarker, explanationMarker)
	if err != nil {
		// EXPLANATION is optional; take the rest of the block.
		idx := strings.Index(block, correctMarker)
		if idx < 0 {
			return domain.Question{}, fmt.Errorf("missing %s marker", correctMarker)
		}
		correctSection = strings.TrimSpace(block[idx+len(correctMarker):])
	}
	if correctSection == "" {
		return domain.Question{}, fmt.Errorf("empty correct answer")
	}
	correctIndex := int(correctSection[0] - 'A')
	if correctIndex < 0 || correctIndex >= len(options) {
		return domain.Question{}, fmt.Errorf("correct answer %q out of range", correctSection[0:1])
	}

	return domain.Question{
		ID:           uuid.NewString(),
		Text:         text,
		Options:      options,
		CorrectIndex: correctIndex,
		Points:       points,
	}, nil
}

func section(block, startMarker, endMarker string) (string, error) {
	start := 0
	if startMarker != "" {
		idx := strings.Index(block, startMarker)
		if idx < 0 {
			return "", fmt.Errorf("missing %s marker", startMarker)
		}
		start = idx + len(startMarker)
	}
	end := strings.Index(block, endMarker)
	if end < 0 || end < start {
		return "", fmt.Errorf("missing %s marker", endMarker)
	}
	return strings.TrimSpace(block[start:end]), nil
}

func parseOptions(optionsSection string) []string {
	var options []string
	for _, line := range strings.Split(optionsSection, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := optionPattern.FindStringSubmatch(line); m != nil {
			options = append(options, m[2])
		}
	}
	return options
}
