package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// ExamSessions is the student side of service.ExamSessionService.
type ExamSessions interface {
	Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.StartResponse, error)
	TimeRemaining(ctx context.Context, examID uuid.UUID, studentID int) (*model.TimeRemaining, error)
	SaveAnswer(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, raw json.RawMessage) (*model.SaveAnswerResult, error)
	RecordWarning(ctx context.Context, examID uuid.UUID, studentID int, signal string) (*model.WarningResult, error)
	Submit(ctx context.Context, examID uuid.UUID, studentID int) error
	Result(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamResult, error)
}

// PaperSource serves the cached student paper.
type PaperSource interface {
	Paper(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error)
}

// StudentPortalHandler handles the student exam endpoints.
type StudentPortalHandler struct {
	sessions ExamSessions
	papers   PaperSource
	audio    *proctor.AudioResolver
	log      zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	sessions ExamSessions,
	papers PaperSource,
	audio *proctor.AudioResolver,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessions: sessions,
		papers:   papers,
		audio:    audio,
		log:      log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// student reads the caller and the :exam_id parameter. It writes the error
// response itself and reports false when the request cannot proceed.
func (h *StudentPortalHandler) student(c *gin.Context) (int, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return 0, uuid.Nil, false
	}
	return claims.UserID, examID, true
}

// StartExam godoc
// POST /api/v1/student/exams/:exam_id/start
// Creates or resumes the session and returns the paper, the session state and saved answers.
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
	studentID, examID, ok := h.student(c)
	if !ok {
		return
	}

	resp, err := h.sessions.Start(c.Request.Context(), examID, studentID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}
	if resp.SavedAnswers == nil {
		resp.SavedAnswers = map[string]json.RawMessage{}
	}

	response.OK(c, resp)
}

// GetTimeRemaining godoc
// GET /api/v1/student/exams/:exam_id/time
// Returns the authoritative countdown.
func (h *StudentPortalHandler) GetTimeRemaining(c *gin.Context) {
	studentID, examID, ok := h.student(c)
	if !ok {
		return
	}

	tr, err := h.sessions.TimeRemaining(c.Request.Context(), examID, studentID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	response.OK(c, tr)
}

// SaveAnswer godoc
// PUT /api/v1/student/exams/:exam_id/answers
// Upserts one answer. A closed or expired session answers 200 {expired:true}.
func (h *StudentPortalHandler) SaveAnswer(c *gin.Context) {
	studentID, examID, ok := h.student(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessions.SaveAnswer(c.Request.Context(), examID, studentID, req.QuestionID, req.Answer)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	response.OK(c, result)
}

// RecordWarning godoc
// POST /api/v1/student/exams/:exam_id/warnings
// Counts one integrity violation and returns the authoritative count.
func (h *StudentPortalHandler) RecordWarning(c *gin.Context) {
	studentID, examID, ok := h.student(c)
	if !ok {
		return
	}

	var req model.RecordWarningRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessions.RecordWarning(c.Request.Context(), examID, studentID, req.Signal)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	response.OK(c, result)
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/submit
// Finishes the session. Submitting a finished session changes nothing.
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	studentID, examID, ok := h.student(c)
	if !ok {
		return
	}

	if err := h.sessions.Submit(c.Request.Context(), examID, studentID); err != nil {
		failSession(c, h.log, err)
		return
	}

	response.OK(c, gin.H{"ok": true})
}

// GetResult godoc
// GET /api/v1/student/exams/:exam_id/result
// Returns the graded result once an admin has released it.
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	studentID, examID, ok := h.student(c)
	if !ok {
		return
	}

	result, err := h.sessions.Result(c.Request.Context(), examID, studentID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	response.OK(c, result)
}

// GetAudioCandidates godoc
// GET /api/v1/student/exams/:exam_id/questions/:question_id/audio
// Returns the ordered playback candidates for a question's audio link.
func (h *StudentPortalHandler) GetAudioCandidates(c *gin.Context) {
	_, examID, ok := h.student(c)
	if !ok {
		return
	}
	questionID, ok := paramUUID(c, "question_id")
	if !ok {
		return
	}

	paper, err := h.papers.Paper(c.Request.Context(), examID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	var src string
	found := false
	for _, q := range paper.Questions {
		if q.ID != questionID {
			continue
		}
		found = true
		if q.AudioURL != nil {
			src = *q.AudioURL
		}
		break
	}
	if !found {
		response.Fail(c, http.StatusNotFound, response.ErrUnknownQuestion)
		return
	}

	candidates := h.audio.Resolve(src)
	if len(candidates) == 0 {
		response.Fail(c, http.StatusNotFound, response.ErrNoAudio)
		return
	}

	response.OK(c, gin.H{"candidates": candidates})
}
