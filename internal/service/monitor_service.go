package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type ProgressStore interface {
	GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
	GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
}

// MonitorService assembles the data shown on the live exam monitor.
type MonitorService struct {
	progress ProgressStore
	sessions SessionStore
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(progress ProgressStore, sessions SessionStore) *MonitorService {
	return &MonitorService{progress: progress, sessions: sessions}
}

// StudentProgressSnapshot holds answered and violation counts per student.
type StudentProgressSnapshot struct {
	AnsweredCounts  map[int]int64 // student_id → answered_count
	ViolationCounts map[int]int64 // student_id → violation_count
	TotalViolations int64
}

// GetStudentProgress fetches answered and violation counts concurrently.
// Violation counts are best-effort.
func (s *MonitorService) GetStudentProgress(ctx context.Context, examID uuid.UUID) (*StudentProgressSnapshot, error) {
	snapshot := &StudentProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		ViolationCounts: make(map[int]int64),
	}

	var (
		answeredCounts  map[int]int64
		violationCounts map[int]int64
		answeredErr     error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.progress.GetAnsweredCounts(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.progress.GetViolationCounts(ctx, examID)
	}()
	wg.Wait()

	if answeredErr != nil {
		return nil, answeredErr
	}
	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}
	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, count := range violationCounts {
			snapshot.TotalViolations += count
		}
	}
	return snapshot, nil
}

// MonitorStudent is one row of the monitor snapshot.
type MonitorStudent struct {
	model.SessionReportRow
	AnsweredCount  int64 `json:"answered_count"`
	ViolationCount int64 `json:"violation_count"`
}

// MonitorStats summarises the sessions of an exam.
type MonitorStats struct {
	TotalJoined     int   `json:"total_joined"`
	TotalInProgress int   `json:"total_in_progress"`
	TotalFinished   int   `json:"total_finished"`
	TotalWarnedOut  int   `json:"total_warned_out"`
	TotalViolations int64 `json:"total_violations"`
}

// MonitorSnapshot is the first event a monitor client receives.
type MonitorSnapshot struct {
	Stats    MonitorStats     `json:"stats"`
	Students []MonitorStudent `json:"students"`
}

// Snapshot joins the session report with live progress counts.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*MonitorSnapshot, error) {
	rows, err := s.sessions.ListReport(ctx, examID)
	if err != nil {
		return nil, err
	}

	snap := &MonitorSnapshot{Students: make([]MonitorStudent, 0, len(rows))}
	progress, progressErr := s.GetStudentProgress(ctx, examID)

	for _, r := range rows {
		st := MonitorStudent{SessionReportRow: r}
		if progressErr == nil {
			st.AnsweredCount = progress.AnsweredCounts[r.StudentID]
			st.ViolationCount = progress.ViolationCounts[r.StudentID]
		}
		snap.Students = append(snap.Students, st)

		snap.Stats.TotalJoined++
		switch {
		case r.Status == model.SessionStatusInProgress:
			snap.Stats.TotalInProgress++
		case r.Status == model.SessionStatusWarnedOut:
			snap.Stats.TotalWarnedOut++
			snap.Stats.TotalFinished++
		case r.Status.Terminal():
			snap.Stats.TotalFinished++
		}
	}
	if progressErr == nil {
		snap.Stats.TotalViolations = progress.TotalViolations
	}
	return snap, nil
}
