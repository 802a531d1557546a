// Package memory provides in-memory implementations of the app storage
// contracts, used in tests and redis/postgres-less deployments.
package memory

import (
	"context"
	"sync"

	"endurance-quiz-service/internal/domain"
)

type rosterRow struct {
	score int
	ready bool
}

// Storage is a mutex-guarded in-memory implementation of app.Storage.
type Storage struct {
	mu            sync.RWMutex
	quizzes       map[string]domain.Quiz
	questionOwner map[string]string // question ID -> quiz ID
	players       map[string]domain.Player
	roster        map[string]map[string]rosterRow           // quiz ID -> player ID -> row
	rosterOrder   map[string][]string                       // quiz ID -> player IDs in join order
	submissions   map[string]map[string]map[string]struct{} // quiz ID -> question ID -> player IDs
	subRecords    []domain.AnswerSubmission
}

func NewStorage() *Storage {
	return &Storage{
		quizzes:       make(map[string]domain.Quiz),
		questionOwner: make(map[string]string),
		players:       make(map[string]domain.Player),
		roster:        make(map[string]map[string]rosterRow),
		rosterOrder:   make(map[string][]string),
		submissions:   make(map[string]map[string]map[string]struct{}),
	}
}

func (s *Storage) GetQuiz(_ context.Context, id string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, &domain.NotFoundError{Resource: "Quiz", ID: id}
	}
	return cloneQuiz(quiz), nil
}

func (s *Storage) SaveQuiz(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	for _, q := range quiz.Questions {
		s.questionOwner[q.ID] = quiz.ID
	}
	return cloneQuiz(quiz), nil
}

func (s *Storage) ListQuizzes(_ context.Context, statuses ...domain.Status) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var quizzes []domain.Quiz
	for _, quiz := range s.quizzes {
		if len(statuses) == 0 || statusIn(quiz.Status, statuses) {
			quizzes = append(quizzes, cloneQuiz(quiz))
		}
	}
	return quizzes, nil
}

func (s *Storage) QuestionsOrdered(_ context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "Quiz", ID: quizID}
	}
	return cloneQuiz(quiz).Questions, nil
}

func (s *Storage) GetQuestion(_ context.Context, questionID string) (domain.Question, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quizID, ok := s.questionOwner[questionID]
	if !ok {
		return domain.Question{}, "", &domain.NotFoundError{Resource: "Question", ID: questionID}
	}
	for _, q := range s.quizzes[quizID].Questions {
		if q.ID == questionID {
			return cloneQuestion(q), quizID, nil
		}
	}
	return domain.Question{}, "", &domain.NotFoundError{Resource: "Question", ID: questionID}
}

func (s *Storage) GetPlayer(_ context.Context, id string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return domain.Player{}, &domain.NotFoundError{Resource: "Player", ID: id}
	}
	return player, nil
}

func (s *Storage) SavePlayer(_ context.Context, player domain.Player) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[player.ID] = player
	return player, nil
}

func (s *Storage) Roster(_ context.Context, quizID string) ([]domain.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.roster[quizID]
	entries := make([]domain.RosterEntry, 0, len(rows))
	for _, playerID := range s.rosterOrder[quizID] {
		row, ok := rows[playerID]
		if !ok {
			continue
		}
		entries = append(entries, domain.RosterEntry{
			Player: s.players[playerID],
			Score:  row.score,
			Ready:  row.ready,
		})
	}
	return entries, nil
}

func (s *Storage) UpsertRosterEntry(_ context.Context, quizID, playerID string, ready bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.roster[quizID]
	if !ok {
		rows = make(map[string]rosterRow)
		s.roster[quizID] = rows
	}
	if row, ok := rows[playerID]; ok {
		row.ready = ready
		rows[playerID] = row
		return nil
	}
	rows[playerID] = rosterRow{ready: ready}
	s.rosterOrder[quizID] = append(s.rosterOrder[quizID], playerID)
	return nil
}

func (s *Storage) SetRosterScore(_ context.Context, quizID, playerID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.roster[quizID]
	if !ok {
		return &domain.NotFoundError{Resource: "Roster entry for player", ID: playerID}
	}
	row, ok := rows[playerID]
	if !ok {
		return &domain.NotFoundError{Resource: "Roster entry for player", ID: playerID}
	}
	row.score = score
	rows[playerID] = row
	return nil
}

func (s *Storage) RemoveRosterEntry(_ context.Context, quizID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roster[quizID], playerID)
	order := s.rosterOrder[quizID]
	for i, id := range order {
		if id == playerID {
			s.rosterOrder[quizID] = append(order[:i:i], order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Storage) HasSubmission(_ context.Context, quizID, playerID, questionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.submissions[quizID][questionID][playerID]
	return ok, nil
}

func (s *Storage) RecordSubmission(_ context.Context, sub domain.AnswerSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byQuestion, ok := s.submissions[sub.QuizID]
	if !ok {
		byQuestion = make(map[string]map[string]struct{})
		s.submissions[sub.QuizID] = byQuestion
	}
	byPlayer, ok := byQuestion[sub.QuestionID]
	if !ok {
		byPlayer = make(map[string]struct{})
		byQuestion[sub.QuestionID] = byPlayer
	}
	byPlayer[sub.PlayerID] = struct{}{}
	s.subRecords = append(s.subRecords, sub)
	return nil
}

func (s *Storage) CountSubmissions(_ context.Context, quizID, questionID string, playerIDs []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPlayer := s.submissions[quizID][questionID]
	count := 0
	for _, playerID := range playerIDs {
		if _, ok := byPlayer[playerID]; ok {
			count++
		}
	}
	return count, nil
}

func cloneQuiz(quiz domain.Quiz) domain.Quiz {
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		questions[i] = cloneQuestion(q)
	}
	quiz.Questions = questions
	return quiz
}

func cloneQuestion(q domain.Question) domain.Question {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	q.Options = options
	return q
}

func statusIn(status domain.Status, statuses []domain.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
