package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusPublished ExamStatus = "published"
	ExamStatusArchived  ExamStatus = "archived"
)

// DefaultMaxWarnings is the number of violations that closes a session.
const DefaultMaxWarnings = 3

// Exam represents an exam entity.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	MaxWarnings     int        `json:"max_warnings"`
	Status          ExamStatus `json:"status"`
	ResultsReleased bool       `json:"results_released"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Duration returns the exam length as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// ExamPayload is the Redis-cached paper sent to students (no answer key).
type ExamPayload struct {
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
}

// ReleaseResultsRequest toggles whether students may see graded results.
type ReleaseResultsRequest struct {
	Released *bool `json:"released" binding:"required"`
}
