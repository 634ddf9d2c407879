package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam, ordered by order_num.
// The answer key is included; callers strip it before sending to students.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, order_num, question_type, payload, correct_answer, points, audio_url
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.OrderNum, &q.Type, &q.Payload, &q.CorrectAnswer, &q.Points, &q.AudioURL); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetByID retrieves one question of an exam.
func (r *QuestionRepository) GetByID(ctx context.Context, examID, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, order_num, question_type, payload, correct_answer, points, audio_url
		 FROM questions WHERE exam_id = $1 AND id = $2`, examID, id,
	).Scan(&q.ID, &q.ExamID, &q.OrderNum, &q.Type, &q.Payload, &q.CorrectAnswer, &q.Points, &q.AudioURL)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (exam_id, order_num, question_type, payload, correct_answer, points, audio_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		q.ExamID, q.OrderNum, q.Type, q.Payload, q.CorrectAnswer, q.Points, q.AudioURL,
	).Scan(&q.ID)
}
