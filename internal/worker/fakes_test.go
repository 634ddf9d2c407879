package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var errDown = errors.New("database is down")

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func push(t *testing.T, rdb *redis.Client, queue string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := rdb.RPush(context.Background(), queue, raw).Err(); err != nil {
		t.Fatal(err)
	}
}

func queueLen(t *testing.T, rdb *redis.Client, queue string) int64 {
	t.Helper()
	n, err := rdb.LLen(context.Background(), queue).Result()
	if err != nil {
		t.Fatal(err)
	}
	return n
}

type answerRow struct {
	examID     uuid.UUID
	studentID  int
	questionID uuid.UUID
	answer     string
	correct    *bool
}

type fakeAnswers struct {
	mu         sync.Mutex
	rows       []answerRow
	failUpsert bool
}

func (f *fakeAnswers) Upsert(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, answer json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return errDown
	}
	f.rows = append(f.rows, answerRow{examID: examID, studentID: studentID, questionID: questionID, answer: string(answer)})
	return nil
}

func (f *fakeAnswers) UpsertGraded(ctx context.Context, examID uuid.UUID, studentID int, questionIDs []uuid.UUID, answers []string, correct []bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return errDown
	}
	for i := range questionIDs {
		c := correct[i]
		f.rows = append(f.rows, answerRow{examID: examID, studentID: studentID, questionID: questionIDs[i], answer: answers[i], correct: &c})
	}
	return nil
}

func (f *fakeAnswers) ListBySession(ctx context.Context, examID uuid.UUID, studentID int) ([]model.StoredAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.StoredAnswer
	for _, r := range f.rows {
		if r.examID == examID && r.studentID == studentID {
			out = append(out, model.StoredAnswer{QuestionID: r.questionID, Answer: json.RawMessage(r.answer)})
		}
	}
	return out, nil
}

func (f *fakeAnswers) verdict(questionID uuid.UUID) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].questionID == questionID && f.rows[i].correct != nil {
			return *f.rows[i].correct, true
		}
	}
	return false, false
}

type fakeViolations struct {
	mu         sync.Mutex
	rows       []model.Violation
	failCopy   bool
	failSignal string
}

func (f *fakeViolations) CopyMany(ctx context.Context, violations []model.Violation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCopy {
		return errDown
	}
	f.rows = append(f.rows, violations...)
	return nil
}

func (f *fakeViolations) Insert(ctx context.Context, v model.Violation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.Signal == f.failSignal {
		return errDown
	}
	f.rows = append(f.rows, v)
	return nil
}

type fakeSessions struct {
	mu        sync.Mutex
	warnings  map[int]int
	scores    map[int]float64
	failBulk  bool
	failScore map[int]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{warnings: map[int]int{}, scores: map[int]float64{}, failScore: map[int]bool{}}
}

func (f *fakeSessions) BulkRaiseWarningCounts(ctx context.Context, examIDs []uuid.UUID, studentIDs, counts []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sid := range studentIDs {
		f.warnings[sid] = max(f.warnings[sid], counts[i])
	}
	return nil
}

func (f *fakeSessions) BulkSetFinalScores(ctx context.Context, examIDs []uuid.UUID, studentIDs []int, scores []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBulk {
		return errDown
	}
	for i, sid := range studentIDs {
		f.scores[sid] = scores[i]
	}
	return nil
}

func (f *fakeSessions) SetFinalScore(ctx context.Context, examID uuid.UUID, studentID int, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failScore[studentID] {
		return errDown
	}
	f.scores[studentID] = score
	return nil
}

type fakeQuestions struct {
	questions map[uuid.UUID][]model.Question
	calls     int
}

func (f *fakeQuestions) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	f.calls++
	qs, ok := f.questions[examID]
	if !ok {
		return nil, errDown
	}
	return qs, nil
}

func quietLogger() zerolog.Logger {
	return zerolog.Nop()
}
