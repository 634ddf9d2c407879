package proctor

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Page is a contiguous run of questions between page-break sentinels.
type Page struct {
	Index     int              `json:"index"`
	Questions []model.Question `json:"questions"`
}

// AnswerLookup is satisfied by AnswerStore.
type AnswerLookup interface {
	Has(questionID uuid.UUID) bool
}

// BuildPages splits questions at page-break sentinels. Breaks are dropped,
// empty runs produce no page, and the result always has at least one page.
func BuildPages(questions []model.Question) []Page {
	var (
		pages   []Page
		current []model.Question
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		pages = append(pages, Page{Index: len(pages), Questions: current})
		current = nil
	}

	for _, q := range questions {
		if q.Type == model.QuestionTypePageBreak {
			flush()
			continue
		}
		current = append(current, q)
	}
	flush()

	if len(pages) == 0 {
		pages = []Page{{Index: 0, Questions: []model.Question{}}}
	}
	return pages
}

// FlattenPages joins pages back into one list with a page-break between pages.
func FlattenPages(pages []Page) []model.Question {
	var out []model.Question
	for i, p := range pages {
		if i > 0 {
			out = append(out, model.Question{Type: model.QuestionTypePageBreak})
		}
		out = append(out, p.Questions...)
	}
	return out
}

// AnswerableCount counts questions that take an answer.
func AnswerableCount(questions []model.Question) int {
	n := 0
	for i := range questions {
		if questions[i].Answerable() {
			n++
		}
	}
	return n
}

// AnsweredCount counts answerable questions that have an answer.
func AnsweredCount(questions []model.Question, answers AnswerLookup) int {
	n := 0
	for i := range questions {
		if questions[i].Answerable() && answers.Has(questions[i].ID) {
			n++
		}
	}
	return n
}

// Progress is the answered fraction of answerable questions, in [0, 1].
func Progress(questions []model.Question, answers AnswerLookup) float64 {
	total := AnswerableCount(questions)
	if total == 0 {
		return 0
	}
	return float64(AnsweredCount(questions, answers)) / float64(total)
}

// PageComplete reports whether every answerable question on the page is answered.
func PageComplete(p Page, answers AnswerLookup) bool {
	return AnsweredCount(p.Questions, answers) == AnswerableCount(p.Questions)
}
