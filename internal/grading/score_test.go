package grading

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func TestScore(t *testing.T) {
	choice := model.Question{ID: uuid.New(), Type: model.QuestionTypeSingleChoice, CorrectAnswer: json.RawMessage(`2`), Points: 3}
	blank := model.Question{ID: uuid.New(), Type: model.QuestionTypeTypedBlank, CorrectAnswer: json.RawMessage(`"went"`), Points: 1}
	boolean := model.Question{ID: uuid.New(), Type: model.QuestionTypeBoolean, CorrectAnswer: json.RawMessage(`true`)}
	pageBreak := model.Question{ID: uuid.New(), Type: model.QuestionTypePageBreak, Points: 5}
	questions := []model.Question{choice, pageBreak, blank, boolean}

	tests := []struct {
		name    string
		answers map[uuid.UUID]json.RawMessage
		earned  int
		percent float64
		graded  int
	}{
		{"nothing answered", nil, 0, 0, 0},
		{"all correct", map[uuid.UUID]json.RawMessage{
			choice.ID: json.RawMessage(`2`), blank.ID: json.RawMessage(`"Went"`), boolean.ID: json.RawMessage(`true`),
		}, 5, 100, 3},
		{"weighted partial", map[uuid.UUID]json.RawMessage{
			choice.ID: json.RawMessage(`2`), blank.ID: json.RawMessage(`"go"`),
		}, 3, 60, 2},
		{"malformed answer earns nothing", map[uuid.UUID]json.RawMessage{
			choice.ID: json.RawMessage(`"two"`), boolean.ID: json.RawMessage(`true`),
		}, 1, 20, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := Score(questions, tt.answers)
			if sheet.Total != 5 {
				t.Errorf("total = %d, want 5", sheet.Total)
			}
			if sheet.Earned != tt.earned {
				t.Errorf("earned = %d, want %d", sheet.Earned, tt.earned)
			}
			if sheet.Percent() != tt.percent {
				t.Errorf("percent = %v, want %v", sheet.Percent(), tt.percent)
			}
			if len(sheet.Correct) != tt.graded {
				t.Errorf("graded = %d, want %d", len(sheet.Correct), tt.graded)
			}
		})
	}
}

func TestPercentRounds(t *testing.T) {
	s := Sheet{Earned: 1, Total: 3}
	if got := s.Percent(); got != 33.33 {
		t.Errorf("percent = %v, want 33.33", got)
	}
}
