package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// GetByExamAndStudent retrieves a session for a specific exam-student combination.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, status, warning_count, started_at, finished_at, final_score
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.WarningCount, &s.StartedAt, &s.FinishedAt, &s.FinalScore)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new in-progress session. When a session already exists
// for the pair nothing is inserted and pgx.ErrNoRows is returned.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	s.Status = model.SessionStatusInProgress
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		s.ExamID, s.StudentID, s.Status,
	).Scan(&s.ID, &s.StartedAt)
}

// Finalize moves an in-progress session to a terminal status. It reports
// false when the session was already terminal, leaving it untouched.
func (r *ExamSessionRepository) Finalize(ctx context.Context, examID uuid.UUID, studentID int, status model.SessionStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, finished_at = NOW()
		 WHERE exam_id = $2 AND student_id = $3 AND status = $4`,
		status, examID, studentID, model.SessionStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RaiseWarningCount stores count unless a higher one is already recorded.
func (r *ExamSessionRepository) RaiseWarningCount(ctx context.Context, examID uuid.UUID, studentID, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET warning_count = GREATEST(warning_count, $1)
		 WHERE exam_id = $2 AND student_id = $3`,
		count, examID, studentID,
	)
	return err
}

// BulkRaiseWarningCounts is RaiseWarningCount for many sessions in one statement.
func (r *ExamSessionRepository) BulkRaiseWarningCounts(ctx context.Context, examIDs []uuid.UUID, studentIDs, counts []int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions AS s
		 SET warning_count = GREATEST(s.warning_count, t.cnt)
		 FROM (
			SELECT u.exam_id, u.student_id, MAX(u.cnt) AS cnt
			FROM UNNEST($1::uuid[], $2::int[], $3::int[]) AS u (exam_id, student_id, cnt)
			GROUP BY u.exam_id, u.student_id
		 ) AS t
		 WHERE s.exam_id = t.exam_id AND s.student_id = t.student_id`,
		examIDs, studentIDs, counts,
	)
	return err
}

// SetFinalScore records the graded score of a finished session.
func (r *ExamSessionRepository) SetFinalScore(ctx context.Context, examID uuid.UUID, studentID int, score float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET final_score = $1
		 WHERE exam_id = $2 AND student_id = $3`,
		score, examID, studentID,
	)
	return err
}

// ListReport returns one row per session of an exam, joined with the student.
func (r *ExamSessionRepository) ListReport(ctx context.Context, examID uuid.UUID) ([]model.SessionReportRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.nisn, s.name, es.status, es.warning_count, es.started_at, es.finished_at, es.final_score
		 FROM exam_sessions es
		 JOIN students s ON es.student_id = s.id
		 WHERE es.exam_id = $1
		 ORDER BY s.name ASC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var report []model.SessionReportRow
	for rows.Next() {
		var row model.SessionReportRow
		if err := rows.Scan(&row.StudentID, &row.NISN, &row.Name, &row.Status, &row.WarningCount,
			&row.StartedAt, &row.FinishedAt, &row.FinalScore); err != nil {
			return nil, err
		}
		report = append(report, row)
	}
	return report, rows.Err()
}

// BulkSetFinalScores is SetFinalScore for many sessions in one statement.
func (r *ExamSessionRepository) BulkSetFinalScores(ctx context.Context, examIDs []uuid.UUID, studentIDs []int, scores []float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions AS s
		 SET final_score = t.score
		 FROM UNNEST($1::uuid[], $2::int[], $3::float8[]) AS t (exam_id, student_id, score)
		 WHERE s.exam_id = t.exam_id AND s.student_id = t.student_id`,
		examIDs, studentIDs, scores,
	)
	return err
}
