package domain

import "time"

// Status is the quiz lifecycle state. CREATED and WAITING are joinable;
// FINISHED is terminal.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

// Joinable reports whether players may join a quiz in this status.
func (s Status) Joinable() bool {
	return s == StatusCreated || s == StatusWaiting
}

// Question is a multiple-choice question. CorrectIndex is a zero-based index
// into Options and must always be in bounds.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Points       int      `json:"points"` // defaults to 1 if zero
}

// Quiz is an ordered collection of questions. The question sequence is
// immutable once the quiz is created.
type Quiz struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Questions          []Question `json:"questions"`
	TimePerQuestionSec int        `json:"timePerQuestionSec"`
	Status             Status     `json:"status"`
}

// Player is a stable identity. Ready is the readiness flag the player
// reported when joining; the authoritative per-quiz value lives on the
// roster entry.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

// RosterEntry is a player's membership in one quiz, with the quiz-scoped
// score.
type RosterEntry struct {
	Player Player `json:"player"`
	Score  int    `json:"score"`
	Ready  bool   `json:"ready"`
}

// AnswerSubmission records one player's answer to one question. At most one
// submission is ever accepted per (quiz, player, question).
type AnswerSubmission struct {
	PlayerID       string    `json:"playerId"`
	QuizID         string    `json:"quizId"`
	QuestionID     string    `json:"questionId"`
	SelectedOption int       `json:"selectedOption"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// QuizState is the live snapshot of a running quiz: the question currently
// awaiting answers, its index, and accumulated scores keyed by player ID.
// TimePerQuestionSec is advisory metadata for clients; the coordinator never
// advances on a timer.
type QuizState struct {
	QuizID             string         `json:"quizId"`
	CurrentQuestion    Question       `json:"currentQuestion"`
	CurrentIndex       int            `json:"currentIndex"`
	Scores             map[string]int `json:"scores"`
	QuestionStartedAt  time.Time      `json:"questionStartedAt"`
	TimePerQuestionSec int            `json:"timePerQuestionSec"`
}

// CloneScores returns a copy of the score map so snapshots stay immutable
// once handed out.
func (s QuizState) CloneScores() map[string]int {
	scores := make(map[string]int, len(s.Scores))
	for id, score := range s.Scores {
		scores[id] = score
	}
	return scores
}
