package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// The services depend on these narrow views of the repositories so they can
// be exercised against in-memory fakes.

type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
	SetResultsReleased(ctx context.Context, id uuid.UUID, released bool) error
}

type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

type SessionStore interface {
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
	Create(ctx context.Context, s *model.ExamSession) error
	Finalize(ctx context.Context, examID uuid.UUID, studentID int, status model.SessionStatus) (bool, error)
	ListReport(ctx context.Context, examID uuid.UUID) ([]model.SessionReportRow, error)
}

type AnswerStore interface {
	ListBySession(ctx context.Context, examID uuid.UUID, studentID int) ([]model.StoredAnswer, error)
}
