package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AnswerRepository handles persisted student answers.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or replaces one answer without locking the session.
func (r *AnswerRepository) Upsert(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, answer json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO student_answers (exam_id, student_id, question_id, answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()`,
		examID, studentID, questionID, answer,
	)
	return err
}

// UpsertGraded writes a session's answers together with their grades.
func (r *AnswerRepository) UpsertGraded(ctx context.Context, examID uuid.UUID, studentID int, questionIDs []uuid.UUID, answers []string, correct []bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO student_answers (exam_id, student_id, question_id, answer, is_correct)
		 SELECT $1, $2, u.question_id, u.answer::jsonb, u.is_correct
		 FROM UNNEST($3::uuid[], $4::text[], $5::bool[]) AS u (question_id, answer, is_correct)
		 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, is_correct = EXCLUDED.is_correct, updated_at = NOW()`,
		examID, studentID, questionIDs, answers, correct,
	)
	return err
}

// ListBySession returns every persisted answer of one session.
func (r *AnswerRepository) ListBySession(ctx context.Context, examID uuid.UUID, studentID int) ([]model.StoredAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer, is_correct, updated_at
		 FROM student_answers
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.StoredAnswer
	for rows.Next() {
		var a model.StoredAnswer
		if err := rows.Scan(&a.QuestionID, &a.Answer, &a.IsCorrect, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
