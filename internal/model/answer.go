package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNotAnswerable is returned for layout/media sentinels that never hold answers.
	ErrNotAnswerable = errors.New("question is not answerable")
	// ErrInvalidAnswer is returned when an answer does not fit its question.
	ErrInvalidAnswer = errors.New("invalid answer")
)

// Answer is a student's answer to one answerable question. The concrete type
// is fixed by the question type; see DecodeAnswer.
type Answer interface {
	answer()
}

// ChoiceAnswer is the selected option index of a single-choice question.
type ChoiceAnswer int

// MultiChoiceAnswer is the set of selected option indices of a multi-choice question.
type MultiChoiceAnswer []int

// BooleanAnswer answers a true/false statement.
type BooleanAnswer bool

// TextAnswer is free text for typed-blank and sentence-correction questions.
type TextAnswer string

// OptionTextAnswer is the selected option text of a choice-blank question.
type OptionTextAnswer string

// ReorderAnswer is the ordered token sequence of a word-reorder question.
type ReorderAnswer []string

// MatchPair links a left-column index to a right-column index.
type MatchPair [2]int

// MatchingAnswer is the list of pairs chosen in a matching question.
type MatchingAnswer []MatchPair

// DialogueAnswer maps a dialogue line index to the selected option index.
type DialogueAnswer map[int]int

// CompositeAnswer maps a composite sub-item index to its own answer.
type CompositeAnswer map[int]SubAnswer

// SubAnswer is either a scalar (option / dropdown) or a list of strings (multi-blank).
type SubAnswer struct {
	Scalar string
	List   []string
	IsList bool
}

func (ChoiceAnswer) answer()      {}
func (MultiChoiceAnswer) answer() {}
func (BooleanAnswer) answer()     {}
func (TextAnswer) answer()        {}
func (OptionTextAnswer) answer()  {}
func (ReorderAnswer) answer()     {}
func (MatchingAnswer) answer()    {}
func (DialogueAnswer) answer()    {}
func (CompositeAnswer) answer()   {}

// MarshalJSON encodes a scalar as a JSON string and a list as an array of strings.
func (s SubAnswer) MarshalJSON() ([]byte, error) {
	if s.IsList {
		if s.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.List)
	}
	return json.Marshal(s.Scalar)
}

// UnmarshalJSON accepts a string, a number or an array of strings.
func (s *SubAnswer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrInvalidAnswer
	}
	switch data[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = SubAnswer{List: list, IsList: true}
		return nil
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = SubAnswer{Scalar: v}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: sub-answer must be a scalar or a list of strings", ErrInvalidAnswer)
	}
	*s = SubAnswer{Scalar: n.String()}
	return nil
}

// DecodeAnswer parses raw into the answer type belonging to t.
func DecodeAnswer(t QuestionType, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: empty answer", ErrInvalidAnswer)
	}

	var (
		a   Answer
		err error
	)
	switch t {
	case QuestionTypeSingleChoice:
		var v ChoiceAnswer
		err = json.Unmarshal(raw, &v)
		a = v
	case QuestionTypeMultiChoice:
		var v MultiChoiceAnswer
		err = json.Unmarshal(raw, &v)
		a = v
	case QuestionTypeBoolean:
		var v BooleanAnswer
		err = json.Unmarshal(raw, &v)
		a = v
	case QuestionTypeTypedBlank, QuestionTypeSentenceCorrection:
		var v TextAnswer
		err = json.Unmarshal(raw, &v)
		a = v
	case QuestionTypeChoiceBlank:
		var v OptionTextAnswer
		err = json.Unmarshal(raw, &v)
		a = v
	case QuestionTypeWordReorder:
		var v ReorderAnswer
		err = json.Unmarshal(raw, &v)
		a = v
	case QuestionTypeMatching:
		var v MatchingAnswer
		err = json.Unmarshal(raw, &v)
		a = v
	case QuestionTypeDialogueChoice:
		var v DialogueAnswer
		err = json.Unmarshal(raw, &v)
		a = v
	case QuestionTypeComposite:
		var v CompositeAnswer
		err = json.Unmarshal(raw, &v)
		a = v
	case QuestionTypePageBreak, QuestionTypePassageBlock, QuestionTypeContentBlock, QuestionTypeAudioBlock:
		return nil, ErrNotAnswerable
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestionType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s answer: %v", ErrInvalidAnswer, t, err)
	}
	return a, nil
}

// EncodeAnswer serializes an answer to its wire form.
func EncodeAnswer(a Answer) (json.RawMessage, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil answer", ErrInvalidAnswer)
	}
	return json.Marshal(a)
}

// ValidateAnswer checks that a has the shape q expects and that every index
// it carries is in range for q's payload.
func ValidateAnswer(q *Question, a Answer) error {
	if !q.Answerable() {
		return ErrNotAnswerable
	}
	p, err := DecodePayload(q.Type, q.Payload)
	if err != nil {
		return err
	}

	switch q.Type {
	case QuestionTypeSingleChoice:
		v, ok := a.(ChoiceAnswer)
		if !ok {
			return wrongShape(q.Type)
		}
		return inRange("option", int(v), len(p.(ChoicePayload).Options))
	case QuestionTypeMultiChoice:
		v, ok := a.(MultiChoiceAnswer)
		if !ok {
			return wrongShape(q.Type)
		}
		for _, idx := range v {
			if err := inRange("option", idx, len(p.(ChoicePayload).Options)); err != nil {
				return err
			}
		}
	case QuestionTypeBoolean:
		if _, ok := a.(BooleanAnswer); !ok {
			return wrongShape(q.Type)
		}
	case QuestionTypeTypedBlank, QuestionTypeSentenceCorrection:
		if _, ok := a.(TextAnswer); !ok {
			return wrongShape(q.Type)
		}
	case QuestionTypeChoiceBlank:
		v, ok := a.(OptionTextAnswer)
		if !ok {
			return wrongShape(q.Type)
		}
		if !contains(p.(ChoiceBlankPayload).Options, string(v)) {
			return fmt.Errorf("%w: %q is not an option", ErrInvalidAnswer, string(v))
		}
	case QuestionTypeWordReorder:
		if _, ok := a.(ReorderAnswer); !ok {
			return wrongShape(q.Type)
		}
	case QuestionTypeMatching:
		v, ok := a.(MatchingAnswer)
		if !ok {
			return wrongShape(q.Type)
		}
		mp := p.(MatchingPayload)
		for _, pair := range v {
			if err := inRange("left", pair[0], len(mp.Left)); err != nil {
				return err
			}
			if err := inRange("right", pair[1], len(mp.Right)); err != nil {
				return err
			}
		}
	case QuestionTypeDialogueChoice:
		v, ok := a.(DialogueAnswer)
		if !ok {
			return wrongShape(q.Type)
		}
		lines := p.(DialoguePayload).Lines
		for line, sel := range v {
			if err := inRange("line", line, len(lines)); err != nil {
				return err
			}
			if err := inRange("option", sel, len(lines[line].Options)); err != nil {
				return err
			}
		}
	case QuestionTypeComposite:
		v, ok := a.(CompositeAnswer)
		if !ok {
			return wrongShape(q.Type)
		}
		items := p.(CompositePayload).Items
		for idx, sub := range v {
			if err := inRange("item", idx, len(items)); err != nil {
				return err
			}
			if (items[idx].Kind == CompositeItemMultiBlank) != sub.IsList {
				return fmt.Errorf("%w: item %d expects a %s answer", ErrInvalidAnswer, idx, items[idx].Kind)
			}
		}
	}
	return nil
}

func wrongShape(t QuestionType) error {
	return fmt.Errorf("%w: wrong shape for %s", ErrInvalidAnswer, t)
}

func inRange(what string, idx, n int) error {
	if idx < 0 || idx >= n {
		return fmt.Errorf("%w: %s index %s out of range", ErrInvalidAnswer, what, strconv.Itoa(idx))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
