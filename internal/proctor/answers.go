package proctor

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AnswerStore maps question ids to answers. It only ever holds entries for
// answerable questions of the paper it was built from.
type AnswerStore struct {
	mu        sync.RWMutex
	questions map[uuid.UUID]*model.Question
	answers   map[uuid.UUID]model.Answer
}

// NewAnswerStore creates an empty store for the given paper.
func NewAnswerStore(questions []model.Question) *AnswerStore {
	s := &AnswerStore{
		questions: make(map[uuid.UUID]*model.Question, len(questions)),
		answers:   make(map[uuid.UUID]model.Answer),
	}
	for i := range questions {
		s.questions[questions[i].ID] = &questions[i]
	}
	return s
}

// Set stores a after checking it fits the question.
func (s *AnswerStore) Set(questionID uuid.UUID, a model.Answer) error {
	q, ok := s.questions[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if err := model.ValidateAnswer(q, a); err != nil {
		return err
	}

	s.mu.Lock()
	s.answers[questionID] = a
	s.mu.Unlock()
	return nil
}

// SetJSON decodes raw according to the question's type and stores it.
func (s *AnswerStore) SetJSON(questionID uuid.UUID, raw json.RawMessage) error {
	q, ok := s.questions[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	a, err := model.DecodeAnswer(q.Type, raw)
	if err != nil {
		return err
	}
	return s.Set(questionID, a)
}

// Get returns the answer for a question, if any.
func (s *AnswerStore) Get(questionID uuid.UUID) (model.Answer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[questionID]
	return a, ok
}

// Has reports whether the question has an answer.
func (s *AnswerStore) Has(questionID uuid.UUID) bool {
	_, ok := s.Get(questionID)
	return ok
}

// Len returns the number of stored answers.
func (s *AnswerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers)
}

// Snapshot returns a copy of all stored answers.
func (s *AnswerStore) Snapshot() map[uuid.UUID]model.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]model.Answer, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Load restores previously saved answers. Entries for unknown,
// non-answerable or malformed questions are skipped and counted.
func (s *AnswerStore) Load(saved map[string]json.RawMessage) (skipped int) {
	for key, raw := range saved {
		id, err := uuid.Parse(key)
		if err != nil {
			skipped++
			continue
		}
		if err := s.SetJSON(id, raw); err != nil {
			skipped++
		}
	}
	return skipped
}
