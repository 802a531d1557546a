// Package postgres is the durable app.Storage backed by a pgx pool. Schema
// is managed by bun migrations (see migrations/).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"endurance-quiz-service/internal/domain"
)

type Storage struct {
	pool *pgxpool.Pool
}

func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

func (s *Storage) GetQuiz(ctx context.Context, id string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, time_per_question_sec, status FROM quizzes WHERE id=$1`, id).
		Scan(&quiz.ID, &quiz.Title, &quiz.TimePerQuestionSec, &quiz.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, &domain.NotFoundError{Resource: "Quiz", ID: id}
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("get quiz: %w", err)
	}

	questions, err := s.QuestionsOrdered(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions
	return quiz, nil
}

func (s *Storage) SaveQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO quizzes (id, title, time_per_question_sec, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title,
		   time_per_question_sec=EXCLUDED.time_per_question_sec,
		   status=EXCLUDED.status`,
		quiz.ID, quiz.Title, quiz.TimePerQuestionSec, string(quiz.Status))
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE quiz_id=$1`, quiz.ID); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz questions: %w", err)
	}
	for i, q := range quiz.Questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("marshal options: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO questions (id, quiz_id, question_order, text, options, correct_index, points)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			q.ID, quiz.ID, i, q.Text, options, q.CorrectIndex, q.Points)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("save question: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	return quiz, nil
}

func (s *Storage) ListQuizzes(ctx context.Context, statuses ...domain.Status) ([]domain.Quiz, error) {
	query := `SELECT id, title, time_per_question_sec, status FROM quizzes`
	args := []any{}
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		args = append(args, names)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var quiz domain.Quiz
		if err := rows.Scan(&quiz.ID, &quiz.Title, &quiz.TimePerQuestionSec, &quiz.Status); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	for i := range quizzes {
		questions, err := s.QuestionsOrdered(ctx, quizzes[i].ID)
		if err != nil {
			return nil, err
		}
		quizzes[i].Questions = questions
	}
	return quizzes, nil
}

func (s *Storage) QuestionsOrdered(ctx context.Context, quizID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, options, correct_index, points
		 FROM questions WHERE quiz_id=$1 ORDER BY question_order ASC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("questions ordered: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("questions ordered: %w", err)
	}
	return questions, nil
}

func (s *Storage) GetQuestion(ctx context.Context, questionID string) (domain.Question, string, error) {
	var (
		q       domain.Question
		quizID  string
		rawOpts []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, quiz_id, text, options, correct_index, points FROM questions WHERE id=$1`,
		questionID).
		Scan(&q.ID, &quizID, &q.Text, &rawOpts, &q.CorrectIndex, &q.Points)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, "", &domain.NotFoundError{Resource: "Question", ID: questionID}
	}
	if err != nil {
		return domain.Question{}, "", fmt.Errorf("get question: %w", err)
	}
	if err := json.Unmarshal(rawOpts, &q.Options); err != nil {
		return domain.Question{}, "", fmt.Errorf("unmarshal options: %w", err)
	}
	return q, quizID, nil
}

func (s *Storage) GetPlayer(ctx context.Context, id string) (domain.Player, error) {
	var player domain.Player
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM players WHERE id=$1`, id).
		Scan(&player.ID, &player.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, &domain.NotFoundError{Resource: "Player", ID: id}
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player: %w", err)
	}
	return player, nil
}

func (s *Storage) SavePlayer(ctx context.Context, player domain.Player) (domain.Player, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO players (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name`,
		player.ID, player.Name)
	if err != nil {
		return domain.Player{}, fmt.Errorf("save player: %w", err)
	}
	return player, nil
}

func (s *Storage) Roster(ctx context.Context, quizID string) ([]domain.RosterEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, qp.score, qp.ready
		 FROM quiz_players qp JOIN players p ON p.id = qp.player_id
		 WHERE qp.quiz_id=$1 ORDER BY qp.joined_at ASC, p.id ASC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	defer rows.Close()

	var roster []domain.RosterEntry
	for rows.Next() {
		var entry domain.RosterEntry
		if err := rows.Scan(&entry.Player.ID, &entry.Player.Name, &entry.Score, &entry.Ready); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		entry.Player.Ready = entry.Ready
		roster = append(roster, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	return roster, nil
}

func (s *Storage) UpsertRosterEntry(ctx context.Context, quizID, playerID string, ready bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_players (quiz_id, player_id, ready) VALUES ($1, $2, $3)
		 ON CONFLICT (quiz_id, player_id) DO UPDATE SET ready=EXCLUDED.ready`,
		quizID, playerID, ready)
	if err != nil {
		return fmt.Errorf("upsert roster entry: %w", err)
	}
	return nil
}

func (s *Storage) SetRosterScore(ctx context.Context, quizID, playerID string, score int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quiz_players SET score=$3 WHERE quiz_id=$1 AND player_id=$2`,
		quizID, playerID, score)
	if err != nil {
		return fmt.Errorf("set roster score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "Roster entry for player", ID: playerID}
	}
	return nil
}

func (s *Storage) RemoveRosterEntry(ctx context.Context, quizID, playerID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM quiz_players WHERE quiz_id=$1 AND player_id=$2`, quizID, playerID)
	if err != nil {
		return fmt.Errorf("remove roster entry: %w", err)
	}
	return nil
}

func (s *Storage) HasSubmission(ctx context.Context, quizID, playerID, questionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM answer_submissions
		 WHERE quiz_id=$1 AND player_id=$2 AND question_id=$3)`,
		quizID, playerID, questionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has submission: %w", err)
	}
	return exists, nil
}

func (s *Storage) RecordSubmission(ctx context.Context, sub domain.AnswerSubmission) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO answer_submissions (quiz_id, player_id, question_id, selected_option, submitted_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sub.QuizID, sub.PlayerID, sub.QuestionID, sub.SelectedOption, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

func (s *Storage) CountSubmissions(ctx context.Context, quizID, questionID string, playerIDs []string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM answer_submissions
		 WHERE quiz_id=$1 AND question_id=$2 AND player_id = ANY($3)`,
		quizID, questionID, playerIDs).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row rowScanner) (domain.Question, error) {
	var (
		q       domain.Question
		rawOpts []byte
	)
	if err := row.Scan(&q.ID, &q.Text, &rawOpts, &q.CorrectIndex, &q.Points); err != nil {
		return domain.Question{}, fmt.Errorf("scan question: %w", err)
	}
	if err := json.Unmarshal(rawOpts, &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options: %w", err)
	}
	return q, nil
}
