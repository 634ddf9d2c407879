package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second
)

type QuestionLister interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

type GradedAnswerStore interface {
	ListBySession(ctx context.Context, examID uuid.UUID, studentID int) ([]model.StoredAnswer, error)
	UpsertGraded(ctx context.Context, examID uuid.UUID, studentID int, questionIDs []uuid.UUID, answers []string, correct []bool) error
}

type ScoreWriter interface {
	BulkSetFinalScores(ctx context.Context, examIDs []uuid.UUID, studentIDs []int, scores []float64) error
	SetFinalScore(ctx context.Context, examID uuid.UUID, studentID int, score float64) error
}

// ScoringWorker grades finished sessions from finalize_sessions_queue.
type ScoringWorker struct {
	questions QuestionLister
	answers   GradedAnswerStore
	scores    ScoreWriter
	rdb       *redis.Client
	log       zerolog.Logger
	backoff   time.Duration
}

func NewScoringWorker(questions QuestionLister, answers GradedAnswerStore, scores ScoreWriter, rdb *redis.Client, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		questions: questions,
		answers:   answers,
		scores:    scores,
		rdb:       rdb,
		log:       log.With().Str("component", "scoring_worker").Logger(),
		backoff:   2 * time.Second,
	}
}

type scoredSession struct {
	job   *model.FinalizeJob
	score float64
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	batch := make([]*model.FinalizeJob, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.FinalizeSessionsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var job model.FinalizeJob
			if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &job)
		}
	}
}

// ----------------------------------------------------------------
// Grade, store scores, then clear the autosave buffers
// ----------------------------------------------------------------

func (w *ScoringWorker) flushSafe(ctx context.Context, batch []*model.FinalizeJob) {
	if len(batch) == 0 {
		return
	}

	keys := make(map[uuid.UUID][]model.Question)
	graded := make([]scoredSession, 0, len(batch))
	var failed []*model.FinalizeJob

	for _, job := range batch {
		score, err := w.grade(ctx, job, keys)
		if err != nil {
			w.log.Error().Err(err).
				Int("student_id", job.StudentID).
				Str("exam_id", job.ExamID.String()).
				Msg("Grading failed")
			failed = append(failed, job)
			continue
		}
		graded = append(graded, scoredSession{job: job, score: score})
	}

	if len(graded) > 0 {
		if err := w.bulkSetScores(ctx, graded); err != nil {
			w.log.Warn().Err(err).Msg("bulk score update failed, using fallback")

			stored := graded[:0]
			for _, g := range graded {
				if err := w.scores.SetFinalScore(ctx, g.job.ExamID, g.job.StudentID, g.score); err != nil {
					w.log.Error().Err(err).Msg("SetFinalScore failed, requeueing")
					failed = append(failed, g.job)
					continue
				}
				stored = append(stored, g)
			}
			graded = stored
		}
		w.clearAutosavedAnswers(ctx, graded)
	}

	if len(failed) > 0 {
		w.requeue(failed)
	}
}

// grade scores one session and stores the verdict of every answered question.
func (w *ScoringWorker) grade(ctx context.Context, job *model.FinalizeJob, keys map[uuid.UUID][]model.Question) (float64, error) {
	questions, ok := keys[job.ExamID]
	if !ok {
		var err error
		questions, err = w.questions.ListByExam(ctx, job.ExamID)
		if err != nil {
			return 0, fmt.Errorf("load answer key: %w", err)
		}
		keys[job.ExamID] = questions
	}

	answers, err := w.loadAnswers(ctx, job)
	if err != nil {
		return 0, err
	}

	sheet := grading.Score(questions, answers)
	if len(sheet.Correct) > 0 {
		qids := make([]uuid.UUID, 0, len(sheet.Correct))
		raws := make([]string, 0, len(sheet.Correct))
		verdicts := make([]bool, 0, len(sheet.Correct))
		for qid, correct := range sheet.Correct {
			qids = append(qids, qid)
			raws = append(raws, string(answers[qid]))
			verdicts = append(verdicts, correct)
		}
		if err := w.answers.UpsertGraded(ctx, job.ExamID, job.StudentID, qids, raws, verdicts); err != nil {
			return 0, fmt.Errorf("store graded answers: %w", err)
		}
	}
	return sheet.Percent(), nil
}

// loadAnswers prefers the autosave hash and falls back to persisted rows.
func (w *ScoringWorker) loadAnswers(ctx context.Context, job *model.FinalizeJob) (map[uuid.UUID]json.RawMessage, error) {
	cached, err := w.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(job.ExamID.String(), job.StudentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get cached answers: %w", err)
	}

	answers := make(map[uuid.UUID]json.RawMessage, len(cached))
	for field, raw := range cached {
		qid, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		answers[qid] = json.RawMessage(raw)
	}
	if len(answers) > 0 {
		return answers, nil
	}

	stored, err := w.answers.ListBySession(ctx, job.ExamID, job.StudentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	for _, a := range stored {
		answers[a.QuestionID] = a.Answer
	}
	return answers, nil
}

func (w *ScoringWorker) bulkSetScores(ctx context.Context, graded []scoredSession) error {
	examIDs := make([]uuid.UUID, 0, len(graded))
	students := make([]int, 0, len(graded))
	scores := make([]float64, 0, len(graded))
	for _, g := range graded {
		examIDs = append(examIDs, g.job.ExamID)
		students = append(students, g.job.StudentID)
		scores = append(scores, g.score)
	}
	return w.scores.BulkSetFinalScores(ctx, examIDs, students, scores)
}

func (w *ScoringWorker) clearAutosavedAnswers(ctx context.Context, graded []scoredSession) {
	if len(graded) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, g := range graded {
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(g.job.ExamID.String(), g.job.StudentID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Failed to clear autosaved answers")
	}
}

func (w *ScoringWorker) requeue(jobs []*model.FinalizeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := w.rdb.Pipeline()
	for _, j := range jobs {
		raw, _ := json.Marshal(j)
		pipe.RPush(ctx, config.WorkerKey.FinalizeSessionsQueue, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue finalize jobs")
		return
	}
	time.Sleep(w.backoff)
}
