package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type fakeExams struct {
	mu    sync.Mutex
	exams map[uuid.UUID]model.Exam
}

func (f *fakeExams) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (f *fakeExams) ListPublished(ctx context.Context) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.Status == model.ExamStatusPublished {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExams) SetResultsReleased(ctx context.Context, id uuid.UUID, released bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return pgx.ErrNoRows
	}
	e.ResultsReleased = released
	f.exams[id] = e
	return nil
}

type fakeQuestions struct {
	mu        sync.Mutex
	questions map[uuid.UUID][]model.Question
	calls     int
}

func (f *fakeQuestions) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]model.Question(nil), f.questions[examID]...), nil
}

type sessionKey struct {
	examID    uuid.UUID
	studentID int
}

type fakeSessions struct {
	mu   sync.Mutex
	rows map[sessionKey]model.ExamSession
	now  func() time.Time

	creates     int
	transitions int
	// racer, when set, is inserted by Create just before it reports a conflict.
	racer *model.ExamSession
}

func (f *fakeSessions) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[sessionKey{examID, studentID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (f *fakeSessions) Create(ctx context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey{s.ExamID, s.StudentID}
	if f.racer != nil {
		f.rows[key] = *f.racer
		f.racer = nil
	}
	if _, ok := f.rows[key]; ok {
		return pgx.ErrNoRows
	}
	f.creates++
	s.ID = uuid.New()
	s.Status = model.SessionStatusInProgress
	s.StartedAt = f.now()
	f.rows[key] = *s
	return nil
}

func (f *fakeSessions) Finalize(ctx context.Context, examID uuid.UUID, studentID int, status model.SessionStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey{examID, studentID}
	s, ok := f.rows[key]
	if !ok || s.Status != model.SessionStatusInProgress {
		return false, nil
	}
	now := f.now()
	s.Status = status
	s.FinishedAt = &now
	f.rows[key] = s
	f.transitions++
	return true, nil
}

func (f *fakeSessions) ListReport(ctx context.Context, examID uuid.UUID) ([]model.SessionReportRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SessionReportRow
	for k, s := range f.rows {
		if k.examID != examID {
			continue
		}
		out = append(out, model.SessionReportRow{
			StudentID:    s.StudentID,
			NISN:         strconv.Itoa(1000 + s.StudentID),
			Name:         "Siswa",
			Status:       s.Status,
			WarningCount: s.WarningCount,
			StartedAt:    s.StartedAt,
			FinishedAt:   s.FinishedAt,
			FinalScore:   s.FinalScore,
		})
	}
	return out, nil
}

func (f *fakeSessions) get(t *testing.T, examID uuid.UUID, studentID int) model.ExamSession {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[sessionKey{examID, studentID}]
	if !ok {
		t.Fatalf("no session for student %d", studentID)
	}
	return s
}

type fakeAnswers struct {
	mu   sync.Mutex
	rows map[sessionKey][]model.StoredAnswer
}

func (f *fakeAnswers) ListBySession(ctx context.Context, examID uuid.UUID, studentID int) ([]model.StoredAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[sessionKey{examID, studentID}], nil
}

// env wires the services against fakes and an in-memory Redis.
type env struct {
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	exams     *fakeExams
	questions *fakeQuestions
	sessions  *fakeSessions
	answers   *fakeAnswers
	examSvc   *ExamService
	svc       *ExamSessionService

	clock time.Time
	exam  model.Exam
	qs    []model.Question
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	e := &env{
		mr:    mr,
		rdb:   rdb,
		clock: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}

	e.exam = model.Exam{
		ID:              uuid.New(),
		Title:           "Ujian Akhir Bahasa Inggris",
		DurationMinutes: 60,
		MaxWarnings:     3,
		Status:          model.ExamStatusPublished,
	}
	examID := e.exam.ID
	e.qs = []model.Question{
		{ID: uuid.New(), ExamID: examID, OrderNum: 1, Type: model.QuestionTypeSingleChoice,
			Payload: mustJSON(model.ChoicePayload{Options: []string{"a", "b", "c"}}), CorrectAnswer: json.RawMessage(`1`), Points: 2},
		{ID: uuid.New(), ExamID: examID, OrderNum: 2, Type: model.QuestionTypePageBreak, Payload: json.RawMessage(`{}`)},
		{ID: uuid.New(), ExamID: examID, OrderNum: 3, Type: model.QuestionTypeTypedBlank,
			Payload: mustJSON(model.BlankPayload{}), CorrectAnswer: json.RawMessage(`"went"`), Points: 1},
	}

	e.exams = &fakeExams{exams: map[uuid.UUID]model.Exam{examID: e.exam}}
	e.questions = &fakeQuestions{questions: map[uuid.UUID][]model.Question{examID: e.qs}}
	e.sessions = &fakeSessions{rows: make(map[sessionKey]model.ExamSession), now: e.now}
	e.answers = &fakeAnswers{rows: make(map[sessionKey][]model.StoredAnswer)}

	log := zerolog.Nop()
	e.examSvc = NewExamService(e.exams, e.questions, rdb, log)
	e.svc = NewExamSessionService(e.examSvc, e.sessions, e.answers, rdb, log)
	e.svc.now = e.now
	return e
}

func (e *env) now() time.Time { return e.clock }

func (e *env) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func (e *env) queueLen(t *testing.T, queue string) int {
	t.Helper()
	n, err := e.rdb.LLen(context.Background(), queue).Result()
	if err != nil {
		t.Fatalf("LLen %s: %v", queue, err)
	}
	return int(n)
}
