package grading

import (
	"encoding/json"
	"math"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Sheet is the graded answer sheet of one session.
type Sheet struct {
	// Correct holds a verdict for every answered, answerable question.
	Correct map[uuid.UUID]bool
	Earned  int
	Total   int
}

// Percent is the points-weighted score on a 0-100 scale, rounded to two decimals.
func (s Sheet) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return math.Round(float64(s.Earned)/float64(s.Total)*10000) / 100
}

// Score grades every answerable question. Unanswered questions and answers
// that fail to decode earn nothing.
func Score(questions []model.Question, answers map[uuid.UUID]json.RawMessage) Sheet {
	sheet := Sheet{Correct: make(map[uuid.UUID]bool, len(answers))}
	for i := range questions {
		q := &questions[i]
		if !q.Answerable() {
			continue
		}
		points := q.Points
		if points <= 0 {
			points = 1
		}
		sheet.Total += points

		raw, ok := answers[q.ID]
		if !ok {
			continue
		}
		correct, err := Grade(q, raw)
		if err != nil {
			correct = false
		}
		sheet.Correct[q.ID] = correct
		if correct {
			sheet.Earned += points
		}
	}
	return sheet
}
