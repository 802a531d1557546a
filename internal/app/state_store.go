package app

import (
	"sync"

	"endurance-quiz-service/internal/domain"
)

// StateStore holds the live state of every active quiz and a per-quiz lock
// serializing all mutating operations for that quiz. A concurrent map alone
// is not enough: the answer-processing path is a read-check-act sequence
// (duplicate check, advancement count, state replacement) that must execute
// indivisibly per quiz. Operations on different quizzes run fully
// concurrently.
type StateStore struct {
	mu      sync.RWMutex
	entries map[string]*stateEntry
}

type stateEntry struct {
	// opMu serializes mutating operations for one quiz. It is held across
	// storage round-trips, so reads never take it.
	opMu sync.Mutex

	// mu guards only the state value, so Get stays cheap while a writer is
	// inside its critical section.
	mu      sync.RWMutex
	state   domain.QuizState
	present bool
}

func NewStateStore() *StateStore {
	return &StateStore{entries: make(map[string]*stateEntry)}
}

func (s *StateStore) entry(quizID string) *stateEntry {
	s.mu.RLock()
	e, ok := s.entries[quizID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[quizID]; ok {
		return e
	}
	e = &stateEntry{}
	s.entries[quizID] = e
	return e
}

// Lock acquires the per-quiz operation lock. Every mutating coordinator
// operation for quizID must run between Lock and Unlock.
func (s *StateStore) Lock(quizID string) {
	s.entry(quizID).opMu.Lock()
}

// Unlock releases the per-quiz operation lock.
func (s *StateStore) Unlock(quizID string) {
	s.entry(quizID).opMu.Unlock()
}

// Get returns a snapshot of the current state without entering the per-quiz
// critical section. Readers may observe the state from just before an
// in-flight writer commits.
func (s *StateStore) Get(quizID string) (domain.QuizState, bool) {
	s.mu.RLock()
	e, ok := s.entries[quizID]
	s.mu.RUnlock()
	if !ok {
		return domain.QuizState{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.present {
		return domain.QuizState{}, false
	}
	state := e.state
	state.Scores = e.state.CloneScores()
	return state, true
}

// Set replaces the stored state for quizID. The caller must hold the
// per-quiz lock.
func (s *StateStore) Set(quizID string, state domain.QuizState) {
	state.Scores = state.CloneScores()
	e := s.entry(quizID)
	e.mu.Lock()
	e.state = state
	e.present = true
	e.mu.Unlock()
}

// Delete discards the state for a retired quiz.
func (s *StateStore) Delete(quizID string) {
	s.mu.Lock()
	e, ok := s.entries[quizID]
	s.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.state = domain.QuizState{}
	e.present = false
	e.mu.Unlock()
}
