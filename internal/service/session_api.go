package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// SessionAPI binds ExamSessionService to one student so a server-hosted
// proctor.Controller can drive it without a network hop.
type SessionAPI struct {
	svc       *ExamSessionService
	studentID int
}

var _ proctor.ExamAPI = (*SessionAPI)(nil)

// ForStudent returns the engine-facing API of one student.
func (s *ExamSessionService) ForStudent(studentID int) *SessionAPI {
	return &SessionAPI{svc: s, studentID: studentID}
}

func (a *SessionAPI) Start(ctx context.Context, examID uuid.UUID) (*model.StartResponse, error) {
	return a.svc.Start(ctx, examID, a.studentID)
}

func (a *SessionAPI) TimeRemaining(ctx context.Context, examID uuid.UUID) (*model.TimeRemaining, error) {
	return a.svc.TimeRemaining(ctx, examID, a.studentID)
}

func (a *SessionAPI) SaveAnswer(ctx context.Context, examID, questionID uuid.UUID, answer json.RawMessage) (*model.SaveAnswerResult, error) {
	return a.svc.SaveAnswer(ctx, examID, a.studentID, questionID, answer)
}

func (a *SessionAPI) RecordWarning(ctx context.Context, examID uuid.UUID, signal proctor.LifecycleSignal) (*model.WarningResult, error) {
	return a.svc.RecordWarning(ctx, examID, a.studentID, signal.String())
}

func (a *SessionAPI) Submit(ctx context.Context, examID uuid.UUID) error {
	return a.svc.Submit(ctx, examID, a.studentID)
}
