package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ViolationRepository stores the integrity violation log.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// CopyMany bulk-loads violations with COPY.
func (r *ViolationRepository) CopyMany(ctx context.Context, violations []model.Violation) error {
	rows := make([][]interface{}, 0, len(violations))
	for _, v := range violations {
		rows = append(rows, []interface{}{v.ExamID, v.StudentID, v.Signal, v.WarningCount, v.RecordedAt})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_violations"},
		[]string{"exam_id", "student_id", "signal", "warning_count", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single violation.
func (r *ViolationRepository) Insert(ctx context.Context, v model.Violation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_violations (exam_id, student_id, signal, warning_count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		v.ExamID, v.StudentID, v.Signal, v.WarningCount, v.RecordedAt,
	)
	return err
}
