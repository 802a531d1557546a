package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"endurance-quiz-service/internal/domain"
)

// Storage is the durable store for quizzes, players, rosters, and answer
// submissions (in-memory, Postgres, etc). Writes are expected to succeed
// before in-memory state is considered authoritative; a storage failure
// leaves the live session state untouched.
type Storage interface {
	GetQuiz(ctx context.Context, id string) (domain.Quiz, error)
	SaveQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	// ListQuizzes returns quizzes whose status is in statuses; with no
	// statuses it returns all quizzes.
	ListQuizzes(ctx context.Context, statuses ...domain.Status) ([]domain.Quiz, error)
	QuestionsOrdered(ctx context.Context, quizID string) ([]domain.Question, error)
	// GetQuestion resolves a question by its own ID and returns the owning
	// quiz's ID alongside it.
	GetQuestion(ctx context.Context, questionID string) (domain.Question, string, error)
	GetPlayer(ctx context.Context, id string) (domain.Player, error)
	SavePlayer(ctx context.Context, player domain.Player) (domain.Player, error)
	Roster(ctx context.Context, quizID string) ([]domain.RosterEntry, error)
	UpsertRosterEntry(ctx context.Context, quizID, playerID string, ready bool) error
	SetRosterScore(ctx context.Context, quizID, playerID string, score int) error
	RemoveRosterEntry(ctx context.Context, quizID, playerID string) error
	HasSubmission(ctx context.Context, quizID, playerID, questionID string) (bool, error)
	RecordSubmission(ctx context.Context, sub domain.AnswerSubmission) error
	CountSubmissions(ctx context.Context, quizID, questionID string, playerIDs []string) (int, error)
}

// QuestionGenerator produces quiz questions from an external prompt-driven
// source. It may return fewer questions than requested when some generated
// blocks are unparsable.
type QuestionGenerator interface {
	Generate(ctx context.Context, count int, difficulty string) ([]domain.Question, error)
}

// Broadcaster delivers snapshots to connected clients. Publishes are
// fire-and-forget; the coordinator assumes no delivery guarantee.
type Broadcaster interface {
	PublishState(quizID string, state domain.QuizState)
	PublishRoster(quizID string, roster []domain.RosterEntry)
	PublishQuizList(quizzes []domain.Quiz)
}

// NopBroadcaster discards all publishes.
type NopBroadcaster struct{}

func (NopBroadcaster) PublishState(string, domain.QuizState)   {}
func (NopBroadcaster) PublishRoster(string, []domain.RosterEntry) {}
func (NopBroadcaster) PublishQuizList([]domain.Quiz)           {}

// Defaults preserved from the two quiz creation paths: plain creation uses
// 30s per question, trivia creation 60s.
const (
	defaultTimePerQuestionSec = 30
	triviaTimePerQuestionSec  = 60
)

// QuizService coordinates live quiz sessions: it owns the authoritative
// in-memory state of each active quiz, enforces the lifecycle state machine,
// and resolves concurrent answer submissions through a per-quiz lock.
type QuizService struct {
	store     Storage
	states    *StateStore
	generator QuestionGenerator
	bc        Broadcaster
	now       func() time.Time
}

func NewQuizService(store Storage, generator QuestionGenerator, bc Broadcaster) *QuizService {
	return NewQuizServiceWithClock(store, generator, bc, time.Now)
}

// NewQuizServiceWithClock allows deterministic timestamps in tests.
func NewQuizServiceWithClock(store Storage, generator QuestionGenerator, bc Broadcaster, now func() time.Time) *QuizService {
	if bc == nil {
		bc = NopBroadcaster{}
	}
	return &QuizService{
		store:     store,
		states:    NewStateStore(),
		generator: generator,
		bc:        bc,
		now:       now,
	}
}

// CreateQuiz validates and persists a new quiz. Every question must carry at
// least one option and an in-bounds correct index; missing IDs are generated
// and zero point values default to 1.
func (s *QuizService) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if len(quiz.Questions) == 0 {
		return domain.Quiz{}, &domain.ValidationError{
			Field:  "questions",
			Reason: "quiz must have at least one question before it can be created",
		}
	}
	for i, q := range quiz.Questions {
		if len(q.Options) == 0 {
			return domain.Quiz{}, &domain.ValidationError{
				Field:  fmt.Sprintf("questions[%d].options", i),
				Reason: "each question must have at least one option",
			}
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return domain.Quiz{}, &domain.ValidationError{
				Field:  fmt.Sprintf("questions[%d].correctIndex", i),
				Reason: fmt.Sprintf("correct option index must be between 0 and %d", len(q.Options)-1),
			}
		}
	}

	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.Status == "" {
		quiz.Status = domain.StatusCreated
	}
	if quiz.TimePerQuestionSec == 0 {
		quiz.TimePerQuestionSec = defaultTimePerQuestionSec
	}
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == "" {
			quiz.Questions[i].ID = uuid.NewString()
		}
		if quiz.Questions[i].Points == 0 {
			quiz.Questions[i].Points = 1
		}
	}

	saved, err := s.store.SaveQuiz(ctx, quiz)
	if err != nil {
		return domain.Quiz{}, err
	}
	s.publishQuizList(ctx)
	return saved, nil
}

// CreateTriviaQuiz generates questions through the configured generator and
// creates a quiz from them. The generator may deliver fewer questions than
// requested; an empty result fails quiz validation.
func (s *QuizService) CreateTriviaQuiz(ctx context.Context, title string, count int, difficulty string) (domain.Quiz, error) {
	questions, err := s.generator.Generate(ctx, count, difficulty)
	if err != nil {
		return domain.Quiz{}, err
	}
	if len(questions) < count {
		log.Printf("generator produced %d of %d requested questions for %q", len(questions), count, title)
	}
	return s.CreateQuiz(ctx, domain.Quiz{
		ID:                 uuid.NewString(),
		Title:              title,
		Questions:          questions,
		TimePerQuestionSec: triviaTimePerQuestionSec,
		Status:             domain.StatusCreated,
	})
}

// AvailableQuizzes returns quizzes players can still join.
func (s *QuizService) AvailableQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.store.ListQuizzes(ctx, domain.StatusCreated, domain.StatusWaiting)
}

// AllQuizzes returns every stored quiz regardless of status.
func (s *QuizService) AllQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.store.ListQuizzes(ctx)
}

// GetQuiz resolves a single quiz by ID.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.store.GetQuiz(ctx, quizID)
}

// CurrentState returns the live state snapshot for a quiz. Reads do not
// enter the per-quiz critical section.
func (s *QuizService) CurrentState(quizID string) (domain.QuizState, error) {
	state, ok := s.states.Get(quizID)
	if !ok {
		return domain.QuizState{}, &domain.NotFoundError{Resource: "Quiz state for quiz", ID: quizID}
	}
	return state, nil
}

// Join adds a player to a quiz roster, creating the player record when the
// caller supplied no ID. Joining twice is idempotent and refreshes the
// readiness flag. Returns the full current roster.
func (s *QuizService) Join(ctx context.Context, quizID string, player domain.Player) ([]domain.RosterEntry, error) {
	resolved, err := s.resolvePlayer(ctx, player)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	s.states.Lock(quizID)
	defer s.states.Unlock(quizID)

	if err := s.store.UpsertRosterEntry(ctx, quizID, resolved.ID, player.Ready); err != nil {
		return nil, err
	}
	roster, err := s.store.Roster(ctx, quizID)
	if err != nil {
		return nil, err
	}
	s.bc.PublishRoster(quizID, roster)
	return roster, nil
}

func (s *QuizService) resolvePlayer(ctx context.Context, player domain.Player) (domain.Player, error) {
	if player.ID == "" {
		player.ID = uuid.NewString()
		return s.store.SavePlayer(ctx, player)
	}
	existing, err := s.store.GetPlayer(ctx, player.ID)
	if domain.IsNotFound(err) {
		return s.store.SavePlayer(ctx, player)
	}
	if err != nil {
		return domain.Player{}, err
	}
	return existing, nil
}

// Leave removes a player from the roster. Removing an absent association is
// not an error. When the last player leaves a running quiz, the quiz is
// ended automatically with scores frozen as of that moment.
func (s *QuizService) Leave(ctx context.Context, playerID, quizID string) ([]domain.RosterEntry, error) {
	s.states.Lock(quizID)
	defer s.states.Unlock(quizID)

	// The status read must happen under the per-quiz lock: a concurrent
	// Start committing between a pre-lock read and the removal below would
	// leave a running quiz with an empty roster and no auto-end.
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}

	if err := s.store.RemoveRosterEntry(ctx, quizID, playerID); err != nil {
		return nil, err
	}
	roster, err := s.store.Roster(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if len(roster) == 0 && quiz.Status == domain.StatusInProgress {
		log.Printf("all players have left quiz %s, ending quiz automatically", quizID)
		if _, err := s.endLocked(ctx, quizID); err != nil {
			return nil, err
		}
	}

	s.bc.PublishRoster(quizID, roster)
	return roster, nil
}

// Start transitions a quiz from CREATED or WAITING to IN_PROGRESS and opens
// the first question. A quiz with no questions can never start. Starting
// with zero players is allowed but logged.
func (s *QuizService) Start(ctx context.Context, quizID string) (domain.QuizState, error) {
	s.states.Lock(quizID)
	defer s.states.Unlock(quizID)

	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizState{}, err
	}
	if quiz.Status != domain.StatusCreated && quiz.Status != domain.StatusWaiting {
		return domain.QuizState{}, &domain.InvalidStateError{
			Current: quiz.Status,
			Allowed: []domain.Status{domain.StatusCreated, domain.StatusWaiting},
		}
	}

	questions, err := s.store.QuestionsOrdered(ctx, quizID)
	if err != nil {
		return domain.QuizState{}, err
	}
	if len(questions) == 0 {
		return domain.QuizState{}, &domain.ValidationError{
			Field:  "questions",
			Reason: fmt.Sprintf("quiz %s has no questions and cannot be started", quizID),
		}
	}

	roster, err := s.store.Roster(ctx, quizID)
	if err != nil {
		return domain.QuizState{}, err
	}
	if len(roster) == 0 {
		log.Printf("starting quiz %s with no players", quizID)
	}
	log.Printf("starting quiz %s (%q) with %d questions and %d players",
		quizID, quiz.Title, len(questions), len(roster))

	quiz.Status = domain.StatusInProgress
	if _, err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.QuizState{}, err
	}

	state := domain.QuizState{
		QuizID:             quizID,
		CurrentQuestion:    questions[0],
		CurrentIndex:       0,
		Scores:             scoresFromRoster(roster),
		QuestionStartedAt:  s.now(),
		TimePerQuestionSec: quiz.TimePerQuestionSec,
	}
	s.states.Set(quizID, state)
	s.bc.PublishState(quizID, state)
	return state, nil
}

// SubmitAnswer validates and records one answer, updates the player's score
// on a correct selection, and advances the quiz once every roster member has
// answered the current question. The whole sequence runs under the per-quiz
// lock so two racing submissions can neither both pass the duplicate check
// nor both trigger an advancement.
func (s *QuizService) SubmitAnswer(ctx context.Context, sub domain.AnswerSubmission) (domain.QuizState, error) {
	if sub.PlayerID == "" {
		return domain.QuizState{}, &domain.ValidationError{Field: "playerId", Reason: "cannot be empty"}
	}
	if sub.QuizID == "" {
		return domain.QuizState{}, &domain.ValidationError{Field: "quizId", Reason: "cannot be empty"}
	}
	if sub.QuestionID == "" {
		return domain.QuizState{}, &domain.ValidationError{Field: "questionId", Reason: "cannot be empty"}
	}

	s.states.Lock(sub.QuizID)
	defer s.states.Unlock(sub.QuizID)

	quiz, err := s.store.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return domain.QuizState{}, err
	}
	if _, err := s.store.GetPlayer(ctx, sub.PlayerID); err != nil {
		return domain.QuizState{}, err
	}
	question, ownerQuizID, err := s.store.GetQuestion(ctx, sub.QuestionID)
	if err != nil {
		return domain.QuizState{}, err
	}

	if quiz.Status != domain.StatusInProgress {
		return domain.QuizState{}, &domain.InvalidStateError{
			Current: quiz.Status,
			Allowed: []domain.Status{domain.StatusInProgress},
		}
	}
	if ownerQuizID != quiz.ID {
		return domain.QuizState{}, &domain.ValidationError{
			Field:  "questionId",
			Reason: "question does not belong to the specified quiz",
		}
	}

	roster, err := s.store.Roster(ctx, sub.QuizID)
	if err != nil {
		return domain.QuizState{}, err
	}
	var member *domain.RosterEntry
	for i := range roster {
		if roster[i].Player.ID == sub.PlayerID {
			member = &roster[i]
			break
		}
	}
	if member == nil {
		return domain.QuizState{}, &domain.ValidationError{
			Field:  "playerId",
			Reason: "player is not part of the quiz",
		}
	}

	exists, err := s.store.HasSubmission(ctx, sub.QuizID, sub.PlayerID, sub.QuestionID)
	if err != nil {
		return domain.QuizState{}, err
	}
	if exists {
		return domain.QuizState{}, &domain.ValidationError{
			Field:  "submission",
			Reason: "player has already submitted an answer for this question",
		}
	}

	if sub.SelectedOption < 0 || sub.SelectedOption >= len(question.Options) {
		return domain.QuizState{}, &domain.ValidationError{
			Field:  "selectedOption",
			Reason: "invalid option index",
		}
	}

	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = s.now()
	}
	if err := s.store.RecordSubmission(ctx, sub); err != nil {
		return domain.QuizState{}, err
	}

	if question.CorrectIndex == sub.SelectedOption {
		points := question.Points
		if points == 0 {
			points = 1
		}
		member.Score += points
		if err := s.store.SetRosterScore(ctx, sub.QuizID, sub.PlayerID, member.Score); err != nil {
			return domain.QuizState{}, err
		}
	}

	state, ok := s.states.Get(sub.QuizID)
	if !ok {
		return domain.QuizState{}, &domain.NotFoundError{Resource: "Quiz state for quiz", ID: sub.QuizID}
	}
	state.Scores[member.Player.ID] = member.Score

	playerIDs := make([]string, len(roster))
	for i, entry := range roster {
		playerIDs[i] = entry.Player.ID
	}
	answered, err := s.store.CountSubmissions(ctx, sub.QuizID, sub.QuestionID, playerIDs)
	if err != nil {
		return domain.QuizState{}, err
	}

	if answered >= len(playerIDs) {
		return s.advanceLocked(ctx, quiz, state)
	}

	s.states.Set(sub.QuizID, state)
	s.bc.PublishState(sub.QuizID, state)
	return state, nil
}

// advanceLocked moves the quiz to the next question, or finishes it when no
// question remains. The caller holds the per-quiz lock.
func (s *QuizService) advanceLocked(ctx context.Context, quiz domain.Quiz, current domain.QuizState) (domain.QuizState, error) {
	nextIndex := current.CurrentIndex + 1

	questions, err := s.store.QuestionsOrdered(ctx, quiz.ID)
	if err != nil {
		return domain.QuizState{}, err
	}
	roster, err := s.store.Roster(ctx, quiz.ID)
	if err != nil {
		return domain.QuizState{}, err
	}

	if nextIndex < len(questions) {
		next := domain.QuizState{
			QuizID:             quiz.ID,
			CurrentQuestion:    questions[nextIndex],
			CurrentIndex:       nextIndex,
			Scores:             scoresFromRoster(roster),
			QuestionStartedAt:  s.now(),
			TimePerQuestionSec: quiz.TimePerQuestionSec,
		}
		s.states.Set(quiz.ID, next)
		s.bc.PublishState(quiz.ID, next)
		return next, nil
	}

	log.Printf("all questions answered for quiz %s, ending quiz automatically", quiz.ID)
	quiz.Status = domain.StatusFinished
	if _, err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.QuizState{}, err
	}

	// The last question is retained for display in the final snapshot.
	final := current
	final.Scores = scoresFromRoster(roster)
	s.states.Set(quiz.ID, final)
	s.bc.PublishState(quiz.ID, final)
	return final, nil
}

// Pause flips a running quiz back to WAITING. The live session state is
// retained unchanged and still addressable, so a later Start resumes from
// stored scores.
func (s *QuizService) Pause(ctx context.Context, quizID string) (domain.QuizState, error) {
	s.states.Lock(quizID)
	defer s.states.Unlock(quizID)

	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizState{}, err
	}
	if quiz.Status != domain.StatusInProgress {
		return domain.QuizState{}, &domain.InvalidStateError{
			Current: quiz.Status,
			Allowed: []domain.Status{domain.StatusInProgress},
		}
	}

	quiz.Status = domain.StatusWaiting
	if _, err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.QuizState{}, err
	}

	state, ok := s.states.Get(quizID)
	if !ok {
		return domain.QuizState{}, &domain.NotFoundError{Resource: "Quiz state for quiz", ID: quizID}
	}
	s.bc.PublishState(quizID, state)
	return state, nil
}

// End finishes a quiz from any status except FINISHED and freezes the final
// scores into the session state.
func (s *QuizService) End(ctx context.Context, quizID string) (domain.QuizState, error) {
	s.states.Lock(quizID)
	defer s.states.Unlock(quizID)
	return s.endLocked(ctx, quizID)
}

func (s *QuizService) endLocked(ctx context.Context, quizID string) (domain.QuizState, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizState{}, err
	}
	if quiz.Status == domain.StatusFinished {
		return domain.QuizState{}, &domain.InvalidStateError{
			Current: quiz.Status,
			Allowed: []domain.Status{domain.StatusCreated, domain.StatusWaiting, domain.StatusInProgress},
		}
	}

	state, ok := s.states.Get(quizID)
	if !ok {
		return domain.QuizState{}, &domain.NotFoundError{Resource: "Quiz state for quiz", ID: quizID}
	}
	roster, err := s.store.Roster(ctx, quizID)
	if err != nil {
		return domain.QuizState{}, err
	}

	quiz.Status = domain.StatusFinished
	if _, err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.QuizState{}, err
	}

	state.Scores = scoresFromRoster(roster)
	s.states.Set(quizID, state)
	s.bc.PublishState(quizID, state)
	return state, nil
}

// RetireState drops the in-memory state of a finished quiz.
func (s *QuizService) RetireState(quizID string) {
	s.states.Lock(quizID)
	defer s.states.Unlock(quizID)
	s.states.Delete(quizID)
}

func (s *QuizService) publishQuizList(ctx context.Context) {
	available, err := s.AvailableQuizzes(ctx)
	if err != nil {
		log.Printf("list available quizzes: %v", err)
		return
	}
	s.bc.PublishQuizList(available)
}

func scoresFromRoster(roster []domain.RosterEntry) map[string]int {
	scores := make(map[string]int, len(roster))
	for _, entry := range roster {
		scores[entry.Player.ID] = entry.Score
	}
	return scores
}
