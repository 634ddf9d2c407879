package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var (
	ErrSessionNotStarted = errors.New("session not started")
	ErrSessionInProgress = errors.New("session still in progress")
	ErrResultNotReleased = errors.New("results are not released")
	ErrUnknownQuestion   = errors.New("question does not belong to this exam")
	ErrInvalidSignal     = errors.New("invalid lifecycle signal")
)

// sessionKeyTTL is how long per-session keys outlive the exam window.
const sessionKeyTTL = 24 * time.Hour

// liveStatusTTL bounds how long an in-progress status is trusted from Redis.
// Finalize overwrites it immediately; the TTL only covers a failed overwrite.
const liveStatusTTL = 5 * time.Second

// ExamSessionService is the authoritative side of a proctored session:
// it owns the clock, the warning counter and the terminal status.
type ExamSessionService struct {
	exams    *ExamService
	sessions SessionStore
	answers  AnswerStore
	rdb      *redis.Client
	log      zerolog.Logger
	now      func() time.Time
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	exams *ExamService,
	sessions SessionStore,
	answers AnswerStore,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		exams:    exams,
		sessions: sessions,
		answers:  answers,
		rdb:      rdb,
		log:      log.With().Str("component", "exam_session_service").Logger(),
		now:      time.Now,
	}
}

// Start creates the student's session or resumes the existing one.
func (s *ExamSessionService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.StartResponse, error) {
	paper, err := s.exams.Paper(ctx, examID)
	if err != nil {
		return nil, err
	}
	duration := paper.Exam.Duration()

	sess, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if paper.Exam.Status != model.ExamStatusPublished {
			return nil, ErrExamNotAvailable
		}
		if len(paper.Questions) == 0 {
			return nil, ErrNoQuestions
		}
		if sess, err = s.create(ctx, examID, studentID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("get session: %w", err)
	}

	ttl := duration + sessionKeyTTL
	startKey := config.CacheKey.StudentExamSessionStartKey(examID.String(), studentID)
	if err := s.rdb.Set(ctx, startKey, sess.StartedAt.Unix(), ttl).Err(); err != nil {
		// Not fatal: startTime falls back to PostgreSQL.
		s.log.Warn().Err(err).Msg("Failed to cache start time")
	}

	if sess.Status == model.SessionStatusInProgress && remainingSeconds(sess.StartedAt.Add(duration), s.now()) <= 0 {
		if _, err := s.finalize(ctx, examID, studentID, model.SessionStatusAutoClosed); err != nil {
			return nil, err
		}
		if sess, err = s.sessions.GetByExamAndStudent(ctx, examID, studentID); err != nil {
			return nil, fmt.Errorf("reload session: %w", err)
		}
	}

	warnings := sess.WarningCount
	remaining := 0
	if sess.Status.Terminal() {
		s.cacheStatus(ctx, examID, studentID, sess.Status)
	} else {
		remaining = remainingSeconds(sess.StartedAt.Add(duration), s.now())
		warnKey := config.CacheKey.StudentWarningsKey(examID.String(), studentID)
		if err := s.rdb.SetNX(ctx, warnKey, sess.WarningCount, ttl).Err(); err != nil {
			return nil, fmt.Errorf("seed warning counter: %w", err)
		}
		if n, err := s.rdb.Get(ctx, warnKey).Int(); err == nil && n > warnings {
			warnings = n
		}
	}

	saved, err := s.savedAnswers(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	return &model.StartResponse{
		Exam:      paper.Exam,
		Questions: paper.Questions,
		Submission: model.Submission{
			Status:           sess.Status,
			RemainingSeconds: remaining,
			WarningCount:     min(warnings, maxWarnings(&paper.Exam)),
			StartedAt:        sess.StartedAt,
			FinishedAt:       sess.FinishedAt,
			FinalScore:       sess.FinalScore,
		},
		SavedAnswers: saved,
	}, nil
}

func (s *ExamSessionService) create(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	sess := &model.ExamSession{ExamID: examID, StudentID: studentID}
	if err := s.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start from another request.
			existing, fetchErr := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.publish(ctx, examID, model.MonitorEvent{Type: model.MonitorEventStarted, StudentID: studentID})
	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Session started")
	return sess, nil
}

// savedAnswers reads the autosave hash, falling back to the persisted rows.
func (s *ExamSessionService) savedAnswers(ctx context.Context, examID uuid.UUID, studentID int) (map[string]json.RawMessage, error) {
	cached, err := s.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(examID.String(), studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get cached answers: %w", err)
	}

	saved := make(map[string]json.RawMessage, len(cached))
	if len(cached) > 0 {
		for qid, raw := range cached {
			saved[qid] = json.RawMessage(raw)
		}
		return saved, nil
	}

	stored, err := s.answers.ListBySession(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	for _, a := range stored {
		saved[a.QuestionID.String()] = a.Answer
	}
	return saved, nil
}

// TimeRemaining is the authoritative clock read. A deadline that has passed
// closes the session.
func (s *ExamSessionService) TimeRemaining(ctx context.Context, examID uuid.UUID, studentID int) (*model.TimeRemaining, error) {
	status, err := s.sessionStatus(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return &model.TimeRemaining{IsExpired: true}, nil
	}

	remaining, err := s.clock(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		if _, err := s.finalize(ctx, examID, studentID, model.SessionStatusAutoClosed); err != nil {
			return nil, err
		}
		return &model.TimeRemaining{IsExpired: true}, nil
	}
	return &model.TimeRemaining{RemainingSeconds: remaining}, nil
}

// SaveAnswer validates one answer against its question and stores it.
// Saves against a closed or expired session report Expired instead of failing.
func (s *ExamSessionService) SaveAnswer(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, raw json.RawMessage) (*model.SaveAnswerResult, error) {
	status, err := s.sessionStatus(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return &model.SaveAnswerResult{Expired: true}, nil
	}

	remaining, err := s.clock(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		if _, err := s.finalize(ctx, examID, studentID, model.SessionStatusAutoClosed); err != nil {
			return nil, err
		}
		return &model.SaveAnswerResult{Expired: true}, nil
	}

	paper, err := s.exams.Paper(ctx, examID)
	if err != nil {
		return nil, err
	}
	q := findQuestion(paper.Questions, questionID)
	if q == nil {
		return nil, ErrUnknownQuestion
	}

	answer, err := model.DecodeAnswer(q.Type, raw)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateAnswer(q, answer); err != nil {
		return nil, err
	}
	encoded, err := model.EncodeAnswer(answer)
	if err != nil {
		return nil, err
	}

	job, err := json.Marshal(model.AnswerJob{
		ExamID:     examID,
		StudentID:  studentID,
		QuestionID: questionID,
		Answer:     encoded,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal answer job: %w", err)
	}

	answersKey := config.CacheKey.StudentAnswersKey(examID.String(), studentID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, answersKey, questionID.String(), string(encoded))
	pipe.Expire(ctx, answersKey, paper.Exam.Duration()+sessionKeyTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, job)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache answer: %w", err)
	}
	return &model.SaveAnswerResult{OK: true}, nil
}

// RecordWarning counts one integrity violation. The counter is a Redis INCR,
// so concurrent reports each get a distinct count and exactly one of them
// reaches the limit and closes the session.
func (s *ExamSessionService) RecordWarning(ctx context.Context, examID uuid.UUID, studentID int, signal string) (*model.WarningResult, error) {
	if _, err := proctor.ParseSignal(signal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}

	paper, err := s.exams.Paper(ctx, examID)
	if err != nil {
		return nil, err
	}
	limit := maxWarnings(&paper.Exam)

	status, err := s.sessionStatus(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return s.closedWarningResult(ctx, examID, studentID, status, limit)
	}

	remaining, err := s.clock(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		status, err := s.finalize(ctx, examID, studentID, model.SessionStatusAutoClosed)
		if err != nil {
			return nil, err
		}
		return s.closedWarningResult(ctx, examID, studentID, status, limit)
	}

	warnKey := config.CacheKey.StudentWarningsKey(examID.String(), studentID)
	if err := s.seedWarnings(ctx, examID, studentID, warnKey, paper.Exam.Duration()+sessionKeyTTL); err != nil {
		return nil, err
	}

	n, err := s.rdb.Incr(ctx, warnKey).Result()
	if err != nil {
		return nil, fmt.Errorf("increment warnings: %w", err)
	}
	count := int(n)
	if count > limit {
		// Another report reached the limit first and may not have
		// finalized yet; finalize is a no-op once it has.
		status, err := s.finalize(ctx, examID, studentID, model.SessionStatusWarnedOut)
		if err != nil {
			return nil, err
		}
		return &model.WarningResult{WarningCount: limit, Closed: status == model.SessionStatusWarnedOut}, nil
	}

	now := s.now()
	job, _ := json.Marshal(model.ViolationJob{
		ExamID:       examID,
		StudentID:    studentID,
		Signal:       signal,
		WarningCount: count,
		Timestamp:    now.Unix(),
	})
	event, _ := json.Marshal(model.MonitorEvent{
		Type:         model.MonitorEventViolation,
		StudentID:    studentID,
		Signal:       signal,
		WarningCount: count,
		Timestamp:    now.Unix(),
	})
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, job)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), event)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Int("student_id", studentID).Msg("Failed to enqueue violation")
	}

	result := &model.WarningResult{WarningCount: count}
	if count >= limit {
		status, err := s.finalize(ctx, examID, studentID, model.SessionStatusWarnedOut)
		if err != nil {
			return nil, err
		}
		result.Closed = status == model.SessionStatusWarnedOut
	}
	return result, nil
}

func (s *ExamSessionService) seedWarnings(ctx context.Context, examID uuid.UUID, studentID int, key string, ttl time.Duration) error {
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check warning counter: %w", err)
	}
	if exists > 0 {
		return nil
	}

	sess, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotStarted
		}
		return fmt.Errorf("get session: %w", err)
	}
	return s.rdb.SetNX(ctx, key, sess.WarningCount, ttl).Err()
}

// closedWarningResult reports the stored count of a session that no longer
// accepts warnings.
func (s *ExamSessionService) closedWarningResult(ctx context.Context, examID uuid.UUID, studentID int, status model.SessionStatus, limit int) (*model.WarningResult, error) {
	count, err := s.rdb.Get(ctx, config.CacheKey.StudentWarningsKey(examID.String(), studentID)).Int()
	if err != nil {
		sess, dbErr := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
		if dbErr != nil {
			return nil, fmt.Errorf("get session: %w", dbErr)
		}
		count = sess.WarningCount
	}
	return &model.WarningResult{
		WarningCount: min(count, limit),
		Closed:       status == model.SessionStatusWarnedOut,
	}, nil
}

// Submit ends the session voluntarily. It is idempotent: a session that is
// already terminal keeps its status.
func (s *ExamSessionService) Submit(ctx context.Context, examID uuid.UUID, studentID int) error {
	status, err := s.sessionStatus(ctx, examID, studentID)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return nil
	}

	sess, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotStarted
		}
		return fmt.Errorf("get session: %w", err)
	}
	if sess.Status.Terminal() {
		s.cacheStatus(ctx, examID, studentID, sess.Status)
		return nil
	}

	duration, err := s.exams.Duration(ctx, examID)
	if err != nil {
		return err
	}
	status = model.SessionStatusCompleted
	if remainingSeconds(sess.StartedAt.Add(duration), s.now()) <= 0 {
		status = model.SessionStatusAutoClosed
	}
	_, err = s.finalize(ctx, examID, studentID, status)
	return err
}

// Result returns the graded paper once an admin has released results.
func (s *ExamSessionService) Result(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamResult, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.ResultsReleased {
		return nil, ErrResultNotReleased
	}

	sess, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotStarted
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !sess.Status.Terminal() {
		return nil, ErrSessionInProgress
	}

	questions, err := s.exams.QuestionsWithKey(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	stored, err := s.answers.ListBySession(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byQuestion := make(map[uuid.UUID]model.StoredAnswer, len(stored))
	for _, a := range stored {
		byQuestion[a.QuestionID] = a
	}

	graded := make([]model.ResultQuestion, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		rq := model.ResultQuestion{Question: *q}
		if a, ok := byQuestion[q.ID]; ok {
			rq.UserAnswer = a.Answer
			rq.IsCorrect = a.IsCorrect
			if rq.IsCorrect == nil && q.Answerable() {
				// Scoring has not run yet for this session.
				if correct, err := grading.Grade(q, a.Answer); err == nil {
					rq.IsCorrect = &correct
				}
			}
		}
		graded = append(graded, rq)
	}

	return &model.ExamResult{
		Exam: *exam,
		Submission: model.Submission{
			Status:       sess.Status,
			WarningCount: sess.WarningCount,
			StartedAt:    sess.StartedAt,
			FinishedAt:   sess.FinishedAt,
			FinalScore:   sess.FinalScore,
		},
		Questions: graded,
	}, nil
}

// finalize moves the session to a terminal status exactly once. When the
// session already ended it returns the status it ended with.
func (s *ExamSessionService) finalize(ctx context.Context, examID uuid.UUID, studentID int, status model.SessionStatus) (model.SessionStatus, error) {
	changed, err := s.sessions.Finalize(ctx, examID, studentID, status)
	if err != nil {
		return "", fmt.Errorf("finalize session: %w", err)
	}
	if !changed {
		sess, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", ErrSessionNotStarted
			}
			return "", fmt.Errorf("get session: %w", err)
		}
		status = sess.Status
	}
	s.cacheStatus(ctx, examID, studentID, status)
	if !changed {
		return status, nil
	}

	now := s.now()
	job, _ := json.Marshal(model.FinalizeJob{ExamID: examID, StudentID: studentID, Status: status})
	event, _ := json.Marshal(model.MonitorEvent{
		Type:      model.MonitorEventFinished,
		StudentID: studentID,
		Status:    status,
		Timestamp: now.Unix(),
	})
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.FinalizeSessionsQueue, job)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), event)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Int("student_id", studentID).Msg("Failed to enqueue finalize job")
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Str("status", string(status)).
		Msg("Session finalized")
	return status, nil
}

// clock returns the seconds left before the session deadline.
func (s *ExamSessionService) clock(ctx context.Context, examID uuid.UUID, studentID int) (int, error) {
	started, err := s.startTime(ctx, examID, studentID)
	if err != nil {
		return 0, err
	}
	duration, err := s.exams.Duration(ctx, examID)
	if err != nil {
		return 0, err
	}
	return remainingSeconds(started.Add(duration), s.now()), nil
}

// startTime reads the cached start time, healing the cache from PostgreSQL on a miss.
func (s *ExamSessionService) startTime(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, error) {
	startKey := config.CacheKey.StudentExamSessionStartKey(examID.String(), studentID)

	val, err := s.rdb.Get(ctx, startKey).Result()
	if err == nil {
		unix, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr != nil {
			return time.Time{}, fmt.Errorf("invalid start time format in cache: %w", parseErr)
		}
		return time.Unix(unix, 0), nil
	}
	if !errors.Is(err, redis.Nil) {
		return time.Time{}, fmt.Errorf("redis error getting start time: %w", err)
	}

	sess, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrSessionNotStarted
		}
		return time.Time{}, fmt.Errorf("get session: %w", err)
	}
	_ = s.rdb.Set(ctx, startKey, sess.StartedAt.Unix(), sessionKeyTTL).Err()
	if sess.Status.Terminal() {
		s.cacheStatus(ctx, examID, studentID, sess.Status)
	}
	return sess.StartedAt, nil
}

// sessionStatus reads the session status from Redis, falling back to
// PostgreSQL on a miss. A missing session reports not_started.
func (s *ExamSessionService) sessionStatus(ctx context.Context, examID uuid.UUID, studentID int) (model.SessionStatus, error) {
	key := config.CacheKey.StudentSessionStatusKey(examID.String(), studentID)
	val, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if status := model.SessionStatus(val); status.Terminal() || status == model.SessionStatusInProgress {
			return status, nil
		}
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Msg("Failed to read cached session status")
	}

	sess, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SessionStatusNotStarted, nil
		}
		return "", fmt.Errorf("get session: %w", err)
	}
	if sess.Status.Terminal() {
		s.cacheStatus(ctx, examID, studentID, sess.Status)
	} else {
		// NX: a concurrent finalize must not be overwritten.
		_ = s.rdb.SetNX(ctx, key, string(sess.Status), liveStatusTTL).Err()
	}
	return sess.Status, nil
}

// cacheStatus stores a terminal status. The key outlives the start key so a
// finished session is never read as live from the cache.
func (s *ExamSessionService) cacheStatus(ctx context.Context, examID uuid.UUID, studentID int, status model.SessionStatus) {
	ttl := sessionKeyTTL
	if d, err := s.exams.Duration(ctx, examID); err == nil {
		ttl += d
	}
	key := config.CacheKey.StudentSessionStatusKey(examID.String(), studentID)
	if err := s.rdb.Set(ctx, key, string(status), ttl).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache session status")
	}
}

func (s *ExamSessionService) publish(ctx context.Context, examID uuid.UUID, event model.MonitorEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = s.now().Unix()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), data).Err(); err != nil {
		s.log.Debug().Err(err).Msg("Monitor publish failed")
	}
}

// remainingSeconds rounds up so a session is never reported expired early.
func remainingSeconds(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

func maxWarnings(e *model.Exam) int {
	if e.MaxWarnings > 0 {
		return e.MaxWarnings
	}
	return model.DefaultMaxWarnings
}

func findQuestion(questions []model.Question, id uuid.UUID) *model.Question {
	for i := range questions {
		if questions[i].ID == id {
			return &questions[i]
		}
	}
	return nil
}
