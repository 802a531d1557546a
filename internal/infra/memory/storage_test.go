package memory

import (
	"context"
	"testing"

	"endurance-quiz-service/internal/domain"
)

func sampleQuiz(id string) domain.Quiz {
	return domain.Quiz{
		ID:                 id,
		Title:              "sample",
		Status:             domain.StatusCreated,
		TimePerQuestionSec: 30,
		Questions: []domain.Question{
			{ID: id + "-q1", Text: "one", Options: []string{"a", "b"}, CorrectIndex: 0, Points: 1},
			{ID: id + "-q2", Text: "two", Options: []string{"x", "y"}, CorrectIndex: 1, Points: 2},
		},
	}
}

func TestQuizRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()

	if _, err := store.GetQuiz(ctx, "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	saved, err := store.SaveQuiz(ctx, sampleQuiz("q1"))
	if err != nil {
		t.Fatalf("save quiz: %v", err)
	}

	got, err := store.GetQuiz(ctx, "q1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if got.Title != saved.Title || len(got.Questions) != 2 {
		t.Fatalf("unexpected quiz: %+v", got)
	}
}

func TestGetQuizReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()
	if _, err := store.SaveQuiz(ctx, sampleQuiz("q1")); err != nil {
		t.Fatalf("save quiz: %v", err)
	}

	first, _ := store.GetQuiz(ctx, "q1")
	first.Questions[0].Options[0] = "mutated"

	second, _ := store.GetQuiz(ctx, "q1")
	if second.Questions[0].Options[0] != "a" {
		t.Fatalf("mutation of a returned quiz leaked into the store")
	}
}

func TestListQuizzesStatusFilter(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()

	created := sampleQuiz("q1")
	running := sampleQuiz("q2")
	running.Status = domain.StatusInProgress
	for _, quiz := range []domain.Quiz{created, running} {
		if _, err := store.SaveQuiz(ctx, quiz); err != nil {
			t.Fatalf("save quiz: %v", err)
		}
	}

	all, err := store.ListQuizzes(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 quizzes, got %d", len(all))
	}

	filtered, err := store.ListQuizzes(ctx, domain.StatusCreated, domain.StatusWaiting)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "q1" {
		t.Fatalf("expected only the created quiz, got %+v", filtered)
	}
}

func TestGetQuestionResolvesOwner(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()
	if _, err := store.SaveQuiz(ctx, sampleQuiz("q1")); err != nil {
		t.Fatalf("save quiz: %v", err)
	}

	question, owner, err := store.GetQuestion(ctx, "q1-q2")
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if owner != "q1" || question.Text != "two" {
		t.Fatalf("unexpected resolution: owner=%s question=%+v", owner, question)
	}

	if _, _, err := store.GetQuestion(ctx, "nope"); !domain.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestGetQuestionReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()
	if _, err := store.SaveQuiz(ctx, sampleQuiz("q1")); err != nil {
		t.Fatalf("save quiz: %v", err)
	}

	question, _, err := store.GetQuestion(ctx, "q1-q1")
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	question.Options[0] = "mutated"

	again, _, _ := store.GetQuestion(ctx, "q1-q1")
	if again.Options[0] != "a" {
		t.Fatalf("mutation of a returned question leaked into the store")
	}
}

func TestRosterJoinOrderAndRemoval(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()
	for _, id := range []string{"A", "B", "C"} {
		if _, err := store.SavePlayer(ctx, domain.Player{ID: id, Name: id}); err != nil {
			t.Fatalf("save player: %v", err)
		}
		if err := store.UpsertRosterEntry(ctx, "q1", id, false); err != nil {
			t.Fatalf("upsert roster: %v", err)
		}
	}

	roster, err := store.Roster(ctx, "q1")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 3 || roster[0].Player.ID != "A" || roster[2].Player.ID != "C" {
		t.Fatalf("expected join order preserved, got %+v", roster)
	}

	// Re-upsert only refreshes readiness, never duplicates or reorders.
	if err := store.UpsertRosterEntry(ctx, "q1", "A", true); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	roster, _ = store.Roster(ctx, "q1")
	if len(roster) != 3 || roster[0].Player.ID != "A" || !roster[0].Ready {
		t.Fatalf("expected refreshed readiness in place, got %+v", roster)
	}

	if err := store.RemoveRosterEntry(ctx, "q1", "B"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	roster, _ = store.Roster(ctx, "q1")
	if len(roster) != 2 || roster[1].Player.ID != "C" {
		t.Fatalf("expected B removed, got %+v", roster)
	}

	// Removing an absent entry is not an error.
	if err := store.RemoveRosterEntry(ctx, "q1", "B"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func TestSetRosterScore(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()
	if _, err := store.SavePlayer(ctx, domain.Player{ID: "A", Name: "A"}); err != nil {
		t.Fatalf("save player: %v", err)
	}
	if err := store.UpsertRosterEntry(ctx, "q1", "A", false); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.SetRosterScore(ctx, "q1", "A", 5); err != nil {
		t.Fatalf("set score: %v", err)
	}
	roster, _ := store.Roster(ctx, "q1")
	if roster[0].Score != 5 {
		t.Fatalf("expected score 5, got %d", roster[0].Score)
	}

	if err := store.SetRosterScore(ctx, "q1", "B", 1); !domain.IsNotFound(err) {
		t.Fatalf("expected not-found for absent entry, got %v", err)
	}
}

func TestSubmissionBookkeeping(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()

	has, err := store.HasSubmission(ctx, "q1", "A", "q1-q1")
	if err != nil || has {
		t.Fatalf("expected no submission, got has=%v err=%v", has, err)
	}

	if err := store.RecordSubmission(ctx, domain.AnswerSubmission{
		PlayerID: "A", QuizID: "q1", QuestionID: "q1-q1", SelectedOption: 0,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	has, _ = store.HasSubmission(ctx, "q1", "A", "q1-q1")
	if !has {
		t.Fatalf("expected submission recorded")
	}

	count, err := store.CountSubmissions(ctx, "q1", "q1-q1", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 counted submission, got %d", count)
	}

	// Players outside the provided roster slice are not counted.
	count, _ = store.CountSubmissions(ctx, "q1", "q1-q1", []string{"B", "C"})
	if count != 0 {
		t.Fatalf("expected 0 for roster excluding the submitter, got %d", count)
	}
}
