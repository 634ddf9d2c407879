package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// QuestionType enumerates every question variant an exam paper can contain,
// including the layout and media sentinels that are rendered but never answered.
type QuestionType string

const (
	QuestionTypeSingleChoice       QuestionType = "single-choice"
	QuestionTypeMultiChoice        QuestionType = "multi-choice"
	QuestionTypeBoolean            QuestionType = "boolean"
	QuestionTypeTypedBlank         QuestionType = "typed-blank"
	QuestionTypeChoiceBlank        QuestionType = "choice-blank"
	QuestionTypeComposite          QuestionType = "composite"
	QuestionTypeWordReorder        QuestionType = "word-reorder"
	QuestionTypeSentenceCorrection QuestionType = "sentence-correction"
	QuestionTypeMatching           QuestionType = "matching"
	QuestionTypeDialogueChoice     QuestionType = "dialogue-choice"
	QuestionTypePageBreak          QuestionType = "page-break"
	QuestionTypePassageBlock       QuestionType = "passage-block"
	QuestionTypeContentBlock       QuestionType = "content-block"
	QuestionTypeAudioBlock         QuestionType = "audio-block"
)

// ErrUnknownQuestionType is returned when a stored type string is not one of the known variants.
var ErrUnknownQuestionType = errors.New("unknown question type")

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultiChoice, QuestionTypeBoolean,
		QuestionTypeTypedBlank, QuestionTypeChoiceBlank, QuestionTypeComposite,
		QuestionTypeWordReorder, QuestionTypeSentenceCorrection, QuestionTypeMatching,
		QuestionTypeDialogueChoice, QuestionTypePageBreak, QuestionTypePassageBlock,
		QuestionTypeContentBlock, QuestionTypeAudioBlock:
		return true
	}
	return false
}

// Answerable reports whether questions of this type count toward progress
// and may hold an answer.
func (t QuestionType) Answerable() bool {
	switch t {
	case QuestionTypePageBreak, QuestionTypePassageBlock, QuestionTypeContentBlock, QuestionTypeAudioBlock:
		return false
	}
	return t.Valid()
}

// Question is a single entry of an exam paper. Payload holds the
// type-specific body; CorrectAnswer is never sent to students.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	OrderNum      int             `json:"order_num"`
	Type          QuestionType    `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CorrectAnswer json.RawMessage `json:"correct_answer,omitempty"`
	Points        int             `json:"points"`
	AudioURL      *string         `json:"audio_url,omitempty"`
}

// Answerable reports whether q can hold an answer.
func (q *Question) Answerable() bool {
	return q.Type.Answerable()
}

// ForStudent returns a copy of q without the answer key.
func (q Question) ForStudent() Question {
	q.CorrectAnswer = nil
	return q
}

// ─── Payloads ───────────────────────────────────────────────────────

// Payload is the typed body of a question. Each question type has exactly one payload type.
type Payload interface {
	payload()
}

// ChoicePayload backs single-choice and multi-choice questions.
type ChoicePayload struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// BooleanPayload is a true/false statement.
type BooleanPayload struct {
	Statement string `json:"statement"`
}

// BlankPayload is a sentence with a single free-text gap.
type BlankPayload struct {
	Text string `json:"text"`
}

// ChoiceBlankPayload is a sentence whose gap is filled from a fixed list.
type ChoiceBlankPayload struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// CompositeItemKind is the kind of one sub-item of a composite question.
type CompositeItemKind string

const (
	CompositeItemOption     CompositeItemKind = "option"
	CompositeItemDropdown   CompositeItemKind = "dropdown"
	CompositeItemMultiBlank CompositeItemKind = "multi-blank"
)

// CompositeItem is one independently-typed sub-item of a composite question.
type CompositeItem struct {
	Kind    CompositeItemKind `json:"kind"`
	Prompt  string            `json:"prompt"`
	Options []string          `json:"options,omitempty"`
	Blanks  int               `json:"blanks,omitempty"`
}

// CompositePayload nests several sub-items under one prompt.
type CompositePayload struct {
	Prompt string          `json:"prompt"`
	Items  []CompositeItem `json:"items"`
}

// ReorderPayload lists scrambled tokens to be put in order.
type ReorderPayload struct {
	Prompt string   `json:"prompt"`
	Tokens []string `json:"tokens"`
}

// CorrectionPayload is a sentence containing an error to rewrite.
type CorrectionPayload struct {
	Sentence string `json:"sentence"`
}

// MatchingPayload pairs items of two columns.
type MatchingPayload struct {
	Prompt string   `json:"prompt"`
	Left   []string `json:"left"`
	Right  []string `json:"right"`
}

// DialogueLine is one line of a dialogue. Lines with options are answerable.
type DialogueLine struct {
	Speaker string   `json:"speaker"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// DialoguePayload is a conversation with choice gaps on some lines.
type DialoguePayload struct {
	Lines []DialogueLine `json:"lines"`
}

// PassagePayload is a reading passage shared by the following questions.
type PassagePayload struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// ContentPayload is free-form instructional content.
type ContentPayload struct {
	HTML string `json:"html"`
}

// AudioPayload is a listening clip; the URL lives on Question.AudioURL.
type AudioPayload struct {
	Caption string `json:"caption,omitempty"`
}

// PageBreakPayload carries nothing; the sentinel only splits pages.
type PageBreakPayload struct{}

func (ChoicePayload) payload()      {}
func (BooleanPayload) payload()     {}
func (BlankPayload) payload()       {}
func (ChoiceBlankPayload) payload() {}
func (CompositePayload) payload()   {}
func (ReorderPayload) payload()     {}
func (CorrectionPayload) payload()  {}
func (MatchingPayload) payload()    {}
func (DialoguePayload) payload()    {}
func (PassagePayload) payload()     {}
func (ContentPayload) payload()     {}
func (AudioPayload) payload()       {}
func (PageBreakPayload) payload()   {}

// DecodePayload parses raw into the payload type belonging to t.
func DecodePayload(t QuestionType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultiChoice:
		p = &ChoicePayload{}
	case QuestionTypeBoolean:
		p = &BooleanPayload{}
	case QuestionTypeTypedBlank:
		p = &BlankPayload{}
	case QuestionTypeChoiceBlank:
		p = &ChoiceBlankPayload{}
	case QuestionTypeComposite:
		p = &CompositePayload{}
	case QuestionTypeWordReorder:
		p = &ReorderPayload{}
	case QuestionTypeSentenceCorrection:
		p = &CorrectionPayload{}
	case QuestionTypeMatching:
		p = &MatchingPayload{}
	case QuestionTypeDialogueChoice:
		p = &DialoguePayload{}
	case QuestionTypePassageBlock:
		p = &PassagePayload{}
	case QuestionTypeContentBlock:
		p = &ContentPayload{}
	case QuestionTypeAudioBlock:
		p = &AudioPayload{}
	case QuestionTypePageBreak:
		return PageBreakPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestionType, t)
	}

	if len(raw) == 0 || string(raw) == "null" {
		return deref(p), nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return deref(p), nil
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *ChoicePayload:
		return *v
	case *BooleanPayload:
		return *v
	case *BlankPayload:
		return *v
	case *ChoiceBlankPayload:
		return *v
	case *CompositePayload:
		return *v
	case *ReorderPayload:
		return *v
	case *CorrectionPayload:
		return *v
	case *MatchingPayload:
		return *v
	case *DialoguePayload:
		return *v
	case *PassagePayload:
		return *v
	case *ContentPayload:
		return *v
	case *AudioPayload:
		return *v
	}
	return p
}
