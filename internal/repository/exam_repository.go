package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, max_warnings, status, results_released, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.MaxWarnings, &e.Status, &e.ResultsReleased, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	if e.MaxWarnings <= 0 {
		e.MaxWarnings = model.DefaultMaxWarnings
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, duration_minutes, max_warnings, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, results_released, created_at, updated_at`,
		e.Title, e.DurationMinutes, e.MaxWarnings, e.Status,
	).Scan(&e.ID, &e.ResultsReleased, &e.CreatedAt, &e.UpdatedAt)
}

// SetResultsReleased toggles student access to graded results.
func (r *ExamRepository) SetResultsReleased(ctx context.Context, id uuid.UUID, released bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET results_released = $1, updated_at = NOW() WHERE id = $2`,
		released, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListPublished returns every exam students can currently sit.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, duration_minutes, max_warnings, status, results_released, created_at, updated_at
		 FROM exams WHERE status = $1
		 ORDER BY created_at ASC`, model.ExamStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.MaxWarnings, &e.Status, &e.ResultsReleased, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
