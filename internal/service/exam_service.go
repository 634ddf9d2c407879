package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Domain Errors
var (
	ErrNoQuestions      = errors.New("exam has no questions")
	ErrExamNotAvailable = errors.New("exam is not available")
)

// ExamService serves exam papers from the Redis cache, warming it from
// PostgreSQL on a miss.
type ExamService struct {
	examRepo     ExamStore
	questionRepo QuestionStore
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo ExamStore, questionRepo QuestionStore, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// WarmExamCache stores the student paper and the duration of an exam in Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) (*model.ExamPayload, error) {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	studentQuestions := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		studentQuestions = append(studentQuestions, q.ForStudent())
	}
	payload := &model.ExamPayload{Exam: *exam, Questions: studentQuestions}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ID.String()), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.ExamDurationKey(exam.ID.String()), exam.DurationMinutes, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return payload, nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if _, err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// Paper returns the cached student paper, loading it on a cache miss.
func (s *ExamService) Paper(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Bytes()
	if err == nil {
		var payload model.ExamPayload
		if err := json.Unmarshal(data, &payload); err == nil {
			return &payload, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Discarding corrupt cached payload")
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	return s.WarmExamCache(ctx, exam)
}

// Duration returns the exam length, read from its own small key on the hot path.
func (s *ExamService) Duration(ctx context.Context, examID uuid.UUID) (time.Duration, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.ExamDurationKey(examID.String())).Result()
	if err == nil {
		if minutes, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(minutes) * time.Minute, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get exam duration: %w", err)
	}

	paper, err := s.Paper(ctx, examID)
	if err != nil {
		return 0, err
	}
	return paper.Exam.Duration(), nil
}

// SetResultsReleased toggles whether students may read their graded results.
func (s *ExamService) SetResultsReleased(ctx context.Context, examID uuid.UUID, released bool) error {
	if err := s.examRepo.SetResultsReleased(ctx, examID, released); err != nil {
		return err
	}
	// The cached paper embeds the exam row.
	if err := s.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to invalidate cached payload")
	}
	return nil
}

// GetByID reads the exam row directly, bypassing the cache.
func (s *ExamService) GetByID(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, examID)
}

// QuestionsWithKey returns the exam's questions including the answer key.
func (s *ExamService) QuestionsWithKey(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.questionRepo.ListByExam(ctx, examID)
}

// RefreshCache re-reads a published exam and its questions into Redis after
// they were edited.
func (s *ExamService) RefreshCache(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}
	payload, err := s.WarmExamCache(ctx, exam)
	if err != nil {
		return nil, err
	}
	if len(payload.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	return payload, nil
}
