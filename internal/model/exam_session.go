package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states. Terminal states never revert.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "not_started"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusWarnedOut  SessionStatus = "warned_out"
	SessionStatusAutoClosed SessionStatus = "auto_closed"
)

// Terminal reports whether s is one of the end states.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusWarnedOut, SessionStatusAutoClosed:
		return true
	}
	return false
}

// ExamSession represents a student's exam attempt.
type ExamSession struct {
	ID           uuid.UUID     `json:"id"`
	ExamID       uuid.UUID     `json:"exam_id"`
	StudentID    int           `json:"student_id"`
	Status       SessionStatus `json:"status"`
	WarningCount int           `json:"warning_count"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	FinalScore   *float64      `json:"final_score,omitempty"`
}

// Submission is the session state exchanged with the client.
type Submission struct {
	Status           SessionStatus `json:"status"`
	RemainingSeconds int           `json:"remaining_seconds"`
	WarningCount     int           `json:"warning_count"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	FinalScore       *float64      `json:"final_score,omitempty"`
}

// StartResponse is returned by start. Calling start again resumes the same session.
type StartResponse struct {
	Exam         Exam                       `json:"exam"`
	Questions    []Question                 `json:"questions"`
	Submission   Submission                 `json:"submission"`
	SavedAnswers map[string]json.RawMessage `json:"saved_answers"`
}

// TimeRemaining is the authoritative clock read.
type TimeRemaining struct {
	RemainingSeconds int  `json:"remaining_seconds"`
	IsExpired        bool `json:"is_expired"`
}

// SaveAnswerRequest upserts one answer.
type SaveAnswerRequest struct {
	QuestionID uuid.UUID       `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}

// SaveAnswerResult is either ok or expired.
type SaveAnswerResult struct {
	OK      bool `json:"ok,omitempty"`
	Expired bool `json:"expired,omitempty"`
}

// RecordWarningRequest reports one integrity violation.
type RecordWarningRequest struct {
	Signal string `json:"signal" binding:"required,lifecycle_signal"`
}

// WarningResult carries the authoritative warning count after a violation.
type WarningResult struct {
	WarningCount int  `json:"warning_count"`
	Closed       bool `json:"closed"`
}

// ResultQuestion is a question annotated with the student's answer and its grade.
type ResultQuestion struct {
	Question
	UserAnswer json.RawMessage `json:"user_answer,omitempty"`
	IsCorrect  *bool           `json:"is_correct,omitempty"`
}

// ExamResult is returned by getResult once results are released.
type ExamResult struct {
	Exam       Exam             `json:"exam"`
	Submission Submission       `json:"submission"`
	Questions  []ResultQuestion `json:"questions"`
}

// StoredAnswer is one persisted answer row.
type StoredAnswer struct {
	QuestionID uuid.UUID       `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
	IsCorrect  *bool           `json:"is_correct,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Violation is one recorded integrity violation.
type Violation struct {
	ExamID       uuid.UUID `json:"exam_id"`
	StudentID    int       `json:"student_id"`
	Signal       string    `json:"signal"`
	WarningCount int       `json:"warning_count"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// SessionReportRow is one line of the admin results export.
type SessionReportRow struct {
	StudentID    int           `json:"student_id"`
	NISN         string        `json:"nisn"`
	Name         string        `json:"name"`
	Status       SessionStatus `json:"status"`
	WarningCount int           `json:"warning_count"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at"`
	FinalScore   *float64      `json:"final_score"`
}
