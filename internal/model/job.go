package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnswerJob is pushed to the answer persistence queue on every accepted save.
type AnswerJob struct {
	ExamID     uuid.UUID       `json:"exam_id"`
	StudentID  int             `json:"student_id"`
	QuestionID uuid.UUID       `json:"q_id"`
	Answer     json.RawMessage `json:"answer"`
}

// ViolationJob is pushed to the violation queue for each counted warning.
type ViolationJob struct {
	ExamID       uuid.UUID `json:"exam_id"`
	StudentID    int       `json:"student_id"`
	Signal       string    `json:"signal"`
	WarningCount int       `json:"warning_count"`
	Timestamp    int64     `json:"timestamp"`
}

// Violation converts the job into its table row.
func (j ViolationJob) Violation() Violation {
	return Violation{
		ExamID:       j.ExamID,
		StudentID:    j.StudentID,
		Signal:       j.Signal,
		WarningCount: j.WarningCount,
		RecordedAt:   time.Unix(j.Timestamp, 0),
	}
}

// FinalizeJob asks the scoring worker to grade a session that just ended.
type FinalizeJob struct {
	ExamID    uuid.UUID     `json:"exam_id"`
	StudentID int           `json:"student_id"`
	Status    SessionStatus `json:"status"`
}

// MonitorEventType names what a monitor event reports.
type MonitorEventType string

const (
	MonitorEventStarted   MonitorEventType = "started"
	MonitorEventViolation MonitorEventType = "violation"
	MonitorEventFinished  MonitorEventType = "finished"
)

// MonitorEvent is published on an exam's monitor channel for live proctoring dashboards.
type MonitorEvent struct {
	Type         MonitorEventType `json:"type"`
	StudentID    int              `json:"student_id"`
	Signal       string           `json:"signal,omitempty"`
	WarningCount int              `json:"warning_count,omitempty"`
	Status       SessionStatus    `json:"status,omitempty"`
	Timestamp    int64            `json:"timestamp"`
}
