package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

const studentID = 42

func TestStartCreatesSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.svc.Start(ctx, e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if resp.Submission.Status != model.SessionStatusInProgress {
		t.Errorf("status = %s, want in_progress", resp.Submission.Status)
	}
	if resp.Submission.RemainingSeconds != 3600 {
		t.Errorf("remaining = %d, want 3600", resp.Submission.RemainingSeconds)
	}
	if len(resp.Questions) != len(e.qs) {
		t.Fatalf("questions = %d, want %d", len(resp.Questions), len(e.qs))
	}
	for _, q := range resp.Questions {
		if q.CorrectAnswer != nil {
			t.Errorf("question %s leaked its answer key", q.ID)
		}
	}
	if len(resp.SavedAnswers) != 0 {
		t.Errorf("saved answers = %v, want none", resp.SavedAnswers)
	}

	start, err := e.rdb.Get(ctx, config.CacheKey.StudentExamSessionStartKey(e.exam.ID.String(), studentID)).Result()
	if err != nil {
		t.Fatalf("start key: %v", err)
	}
	if start != strconv.FormatInt(e.clock.Unix(), 10) {
		t.Errorf("cached start = %s, want %d", start, e.clock.Unix())
	}

	e.advance(10 * time.Minute)
	again, err := e.svc.Start(ctx, e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if e.sessions.creates != 1 {
		t.Errorf("creates = %d, want 1", e.sessions.creates)
	}
	if again.Submission.RemainingSeconds != 3000 {
		t.Errorf("resumed remaining = %d, want 3000", again.Submission.RemainingSeconds)
	}
}

func TestStartConcurrentCreateResumesExisting(t *testing.T) {
	e := newEnv(t)
	winner := model.ExamSession{
		ID:        uuid.New(),
		ExamID:    e.exam.ID,
		StudentID: studentID,
		Status:    model.SessionStatusInProgress,
		StartedAt: e.clock.Add(-5 * time.Minute),
	}
	e.sessions.racer = &winner

	resp, err := e.svc.Start(context.Background(), e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !resp.Submission.StartedAt.Equal(winner.StartedAt) {
		t.Errorf("started at %v, want the concurrent row's %v", resp.Submission.StartedAt, winner.StartedAt)
	}
	if resp.Submission.RemainingSeconds != 3300 {
		t.Errorf("remaining = %d, want 3300", resp.Submission.RemainingSeconds)
	}
}

func TestStartRejections(t *testing.T) {
	t.Run("unpublished", func(t *testing.T) {
		e := newEnv(t)
		exam := e.exam
		exam.Status = model.ExamStatusDraft
		e.exams.exams[exam.ID] = exam

		if _, err := e.svc.Start(context.Background(), exam.ID, studentID); !errors.Is(err, ErrExamNotAvailable) {
			t.Errorf("err = %v, want ErrExamNotAvailable", err)
		}
	})
	t.Run("no questions", func(t *testing.T) {
		e := newEnv(t)
		e.questions.questions[e.exam.ID] = nil

		if _, err := e.svc.Start(context.Background(), e.exam.ID, studentID); !errors.Is(err, ErrNoQuestions) {
			t.Errorf("err = %v, want ErrNoQuestions", err)
		}
	})
	t.Run("unknown exam", func(t *testing.T) {
		e := newEnv(t)
		if _, err := e.svc.Start(context.Background(), uuid.New(), studentID); err == nil {
			t.Error("expected an error for an unknown exam")
		}
	})
}

func TestStartAfterDeadlineAutoCloses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.advance(61 * time.Minute)
	resp, err := e.svc.Start(ctx, e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resp.Submission.Status != model.SessionStatusAutoClosed {
		t.Errorf("status = %s, want auto_closed", resp.Submission.Status)
	}
	if resp.Submission.RemainingSeconds != 0 {
		t.Errorf("remaining = %d, want 0", resp.Submission.RemainingSeconds)
	}
	if n := e.queueLen(t, config.WorkerKey.FinalizeSessionsQueue); n != 1 {
		t.Errorf("finalize jobs = %d, want 1", n)
	}
}

func TestStartSavedAnswersFallBackToDatabase(t *testing.T) {
	e := newEnv(t)
	e.answers.rows[sessionKey{e.exam.ID, studentID}] = []model.StoredAnswer{
		{QuestionID: e.qs[0].ID, Answer: json.RawMessage(`2`)},
	}

	resp, err := e.svc.Start(context.Background(), e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := string(resp.SavedAnswers[e.qs[0].ID.String()]); got != "2" {
		t.Errorf("saved answer = %q, want 2", got)
	}
}

func TestTimeRemaining(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.TimeRemaining(ctx, e.exam.ID, studentID); !errors.Is(err, ErrSessionNotStarted) {
		t.Fatalf("before start err = %v, want ErrSessionNotStarted", err)
	}
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.advance(15 * time.Minute)
	tr, err := e.svc.TimeRemaining(ctx, e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("TimeRemaining: %v", err)
	}
	if tr.RemainingSeconds != 2700 || tr.IsExpired {
		t.Errorf("got %+v, want 2700 not expired", tr)
	}

	// Evicted start time heals from PostgreSQL.
	e.mr.Del(config.CacheKey.StudentExamSessionStartKey(e.exam.ID.String(), studentID))
	e.mr.Del(config.CacheKey.ExamDurationKey(e.exam.ID.String()))
	tr, err = e.svc.TimeRemaining(ctx, e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("TimeRemaining after eviction: %v", err)
	}
	if tr.RemainingSeconds != 2700 {
		t.Errorf("healed remaining = %d, want 2700", tr.RemainingSeconds)
	}
	if !e.mr.Exists(config.CacheKey.StudentExamSessionStartKey(e.exam.ID.String(), studentID)) {
		t.Error("start key was not healed")
	}

	e.advance(time.Hour)
	tr, err = e.svc.TimeRemaining(ctx, e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("TimeRemaining past deadline: %v", err)
	}
	if !tr.IsExpired || tr.RemainingSeconds != 0 {
		t.Errorf("got %+v, want expired", tr)
	}
	if s := e.sessions.get(t, e.exam.ID, studentID); s.Status != model.SessionStatusAutoClosed {
		t.Errorf("status = %s, want auto_closed", s.Status)
	}
}

func TestSaveAnswer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tests := []struct {
		name       string
		questionID uuid.UUID
		answer     string
		wantErr    error
	}{
		{"valid choice", e.qs[0].ID, `1`, nil},
		{"valid blank", e.qs[2].ID, `"went"`, nil},
		{"choice out of range", e.qs[0].ID, `7`, model.ErrInvalidAnswer},
		{"wrong shape", e.qs[2].ID, `[1,2]`, model.ErrInvalidAnswer},
		{"page break", e.qs[1].ID, `1`, model.ErrNotAnswerable},
		{"unknown question", uuid.New(), `1`, ErrUnknownQuestion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.svc.SaveAnswer(ctx, e.exam.ID, studentID, tt.questionID, json.RawMessage(tt.answer))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SaveAnswer: %v", err)
			}
			if !res.OK || res.Expired {
				t.Errorf("result = %+v, want ok", res)
			}
		})
	}

	answersKey := config.CacheKey.StudentAnswersKey(e.exam.ID.String(), studentID)
	if got := e.mr.HGet(answersKey, e.qs[0].ID.String()); got != "1" {
		t.Errorf("cached answer = %q, want 1", got)
	}
	if n := e.queueLen(t, config.WorkerKey.PersistAnswersQueue); n != 2 {
		t.Errorf("answer jobs = %d, want 2", n)
	}

	raw, err := e.rdb.LIndex(ctx, config.WorkerKey.PersistAnswersQueue, 0).Result()
	if err != nil {
		t.Fatalf("LIndex: %v", err)
	}
	var job model.AnswerJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.QuestionID != e.qs[0].ID || job.StudentID != studentID || string(job.Answer) != "1" {
		t.Errorf("job = %+v", job)
	}
}

func TestSaveAnswerAfterCloseReportsExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	t.Run("submitted", func(t *testing.T) {
		if err := e.svc.Submit(ctx, e.exam.ID, studentID); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		res, err := e.svc.SaveAnswer(ctx, e.exam.ID, studentID, e.qs[0].ID, json.RawMessage(`1`))
		if err != nil {
			t.Fatalf("SaveAnswer: %v", err)
		}
		if !res.Expired {
			t.Errorf("result = %+v, want expired", res)
		}
	})

	t.Run("deadline passed", func(t *testing.T) {
		other := studentID + 1
		if _, err := e.svc.Start(ctx, e.exam.ID, other); err != nil {
			t.Fatalf("Start: %v", err)
		}
		e.advance(2 * time.Hour)
		res, err := e.svc.SaveAnswer(ctx, e.exam.ID, other, e.qs[0].ID, json.RawMessage(`1`))
		if err != nil {
			t.Fatalf("SaveAnswer: %v", err)
		}
		if !res.Expired {
			t.Errorf("result = %+v, want expired", res)
		}
		if s := e.sessions.get(t, e.exam.ID, other); s.Status != model.SessionStatusAutoClosed {
			t.Errorf("status = %s, want auto_closed", s.Status)
		}
	})
}

func TestRecordWarningEscalates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := e.svc.RecordWarning(ctx, e.exam.ID, studentID, "screenshot"); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("err = %v, want ErrInvalidSignal", err)
	}

	for want := 1; want <= 3; want++ {
		res, err := e.svc.RecordWarning(ctx, e.exam.ID, studentID, "backgrounded")
		if err != nil {
			t.Fatalf("warning %d: %v", want, err)
		}
		if res.WarningCount != want {
			t.Errorf("count = %d, want %d", res.WarningCount, want)
		}
		if res.Closed != (want == 3) {
			t.Errorf("warning %d closed = %v", want, res.Closed)
		}
	}

	if s := e.sessions.get(t, e.exam.ID, studentID); s.Status != model.SessionStatusWarnedOut {
		t.Errorf("status = %s, want warned_out", s.Status)
	}

	res, err := e.svc.RecordWarning(ctx, e.exam.ID, studentID, "back_gesture")
	if err != nil {
		t.Fatalf("warning after close: %v", err)
	}
	if res.WarningCount != 3 || !res.Closed {
		t.Errorf("after close = %+v, want 3 closed", res)
	}
	if n := e.queueLen(t, config.WorkerKey.PersistViolationsQueue); n != 3 {
		t.Errorf("violation jobs = %d, want 3", n)
	}
}

func TestRecordWarningConcurrentReportsCloseOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]*model.WarningResult, 12)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.svc.RecordWarning(ctx, e.exam.ID, studentID, "unload_attempted")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if results[i].WarningCount > 3 {
			t.Errorf("report %d count = %d, exceeds the limit", i, results[i].WarningCount)
		}
	}
	if e.sessions.transitions != 1 {
		t.Errorf("status transitions = %d, want 1", e.sessions.transitions)
	}
	if n := e.queueLen(t, config.WorkerKey.PersistViolationsQueue); n != 3 {
		t.Errorf("violation jobs = %d, want 3", n)
	}
}

func TestRecordWarningResumesFromStoredCount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Counter evicted; the session row still records two warnings.
	e.sessions.mu.Lock()
	row := e.sessions.rows[sessionKey{e.exam.ID, studentID}]
	row.WarningCount = 2
	e.sessions.rows[sessionKey{e.exam.ID, studentID}] = row
	e.sessions.mu.Unlock()
	e.mr.Del(config.CacheKey.StudentWarningsKey(e.exam.ID.String(), studentID))

	res, err := e.svc.RecordWarning(ctx, e.exam.ID, studentID, "backgrounded")
	if err != nil {
		t.Fatalf("RecordWarning: %v", err)
	}
	if res.WarningCount != 3 || !res.Closed {
		t.Errorf("got %+v, want 3 closed", res)
	}
}

func TestRecordWarningPastLimitFinalizesWarnedOut(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A concurrent report reached the limit but has not finalized yet.
	e.mr.Set(config.CacheKey.StudentWarningsKey(e.exam.ID.String(), studentID), "3")

	res, err := e.svc.RecordWarning(ctx, e.exam.ID, studentID, "backgrounded")
	if err != nil {
		t.Fatalf("RecordWarning: %v", err)
	}
	if res.WarningCount != 3 || !res.Closed {
		t.Errorf("got %+v, want 3 closed", res)
	}
	if s := e.sessions.get(t, e.exam.ID, studentID); s.Status != model.SessionStatusWarnedOut {
		t.Fatalf("status = %s, want warned_out", s.Status)
	}

	if err := e.svc.Submit(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s := e.sessions.get(t, e.exam.ID, studentID); s.Status != model.SessionStatusWarnedOut {
		t.Errorf("status after submit = %s, want warned_out", s.Status)
	}
	if e.sessions.transitions != 1 {
		t.Errorf("status transitions = %d, want 1", e.sessions.transitions)
	}
}

func TestEvictedStatusKeepsSessionClosed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.advance(10 * time.Minute)
	if err := e.svc.Submit(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	statusKey := config.CacheKey.StudentSessionStatusKey(e.exam.ID.String(), studentID)
	startKey := config.CacheKey.StudentExamSessionStartKey(e.exam.ID.String(), studentID)
	if e.mr.TTL(statusKey) < e.mr.TTL(startKey) {
		t.Errorf("status ttl %v expires before start ttl %v", e.mr.TTL(statusKey), e.mr.TTL(startKey))
	}

	e.mr.Del(statusKey)

	tr, err := e.svc.TimeRemaining(ctx, e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("TimeRemaining: %v", err)
	}
	if !tr.IsExpired || tr.RemainingSeconds != 0 {
		t.Errorf("time = %+v, want expired", tr)
	}

	e.mr.Del(statusKey)
	saved, err := e.svc.SaveAnswer(ctx, e.exam.ID, studentID, e.qs[0].ID, json.RawMessage(`1`))
	if err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if !saved.Expired || saved.OK {
		t.Errorf("save = %+v, want expired", saved)
	}

	e.mr.Del(statusKey)
	for i := 0; i < 3; i++ {
		res, err := e.svc.RecordWarning(ctx, e.exam.ID, studentID, "backgrounded")
		if err != nil {
			t.Fatalf("RecordWarning: %v", err)
		}
		if res.WarningCount != 0 || res.Closed {
			t.Errorf("warning %d = %+v, want 0 not closed", i, res)
		}
	}

	if n := e.queueLen(t, config.WorkerKey.PersistAnswersQueue); n != 0 {
		t.Errorf("answer jobs = %d, want 0", n)
	}
	if n := e.queueLen(t, config.WorkerKey.PersistViolationsQueue); n != 0 {
		t.Errorf("violation jobs = %d, want 0", n)
	}
	if s := e.sessions.get(t, e.exam.ID, studentID); s.Status != model.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", s.Status)
	}
	if got, _ := e.mr.Get(statusKey); got != string(model.SessionStatusCompleted) {
		t.Errorf("cached status = %q, want completed", got)
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("completes once", func(t *testing.T) {
		e := newEnv(t)
		if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
			t.Fatalf("Start: %v", err)
		}
		for i := 0; i < 3; i++ {
			if err := e.svc.Submit(ctx, e.exam.ID, studentID); err != nil {
				t.Fatalf("Submit %d: %v", i, err)
			}
		}
		if s := e.sessions.get(t, e.exam.ID, studentID); s.Status != model.SessionStatusCompleted {
			t.Errorf("status = %s, want completed", s.Status)
		}
		if n := e.queueLen(t, config.WorkerKey.FinalizeSessionsQueue); n != 1 {
			t.Errorf("finalize jobs = %d, want 1", n)
		}
	})

	t.Run("keeps warned out", func(t *testing.T) {
		e := newEnv(t)
		if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
			t.Fatalf("Start: %v", err)
		}
		for i := 0; i < 3; i++ {
			if _, err := e.svc.RecordWarning(ctx, e.exam.ID, studentID, "backgrounded"); err != nil {
				t.Fatalf("RecordWarning: %v", err)
			}
		}
		e.mr.Del(config.CacheKey.StudentSessionStatusKey(e.exam.ID.String(), studentID))
		if err := e.svc.Submit(ctx, e.exam.ID, studentID); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if s := e.sessions.get(t, e.exam.ID, studentID); s.Status != model.SessionStatusWarnedOut {
			t.Errorf("status = %s, want warned_out", s.Status)
		}
	})

	t.Run("late submit auto closes", func(t *testing.T) {
		e := newEnv(t)
		if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
			t.Fatalf("Start: %v", err)
		}
		e.advance(60 * time.Minute)
		if err := e.svc.Submit(ctx, e.exam.ID, studentID); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if s := e.sessions.get(t, e.exam.ID, studentID); s.Status != model.SessionStatusAutoClosed {
			t.Errorf("status = %s, want auto_closed", s.Status)
		}
	})

	t.Run("not started", func(t *testing.T) {
		e := newEnv(t)
		if err := e.svc.Submit(ctx, e.exam.ID, studentID); !errors.Is(err, ErrSessionNotStarted) {
			t.Errorf("err = %v, want ErrSessionNotStarted", err)
		}
	})
}

func TestResult(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Start(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := e.svc.Result(ctx, e.exam.ID, studentID); !errors.Is(err, ErrResultNotReleased) {
		t.Fatalf("err = %v, want ErrResultNotReleased", err)
	}
	if err := e.examSvc.SetResultsReleased(ctx, e.exam.ID, true); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := e.svc.Result(ctx, e.exam.ID, studentID); !errors.Is(err, ErrSessionInProgress) {
		t.Fatalf("err = %v, want ErrSessionInProgress", err)
	}

	if err := e.svc.Submit(ctx, e.exam.ID, studentID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	wrong := false
	e.answers.rows[sessionKey{e.exam.ID, studentID}] = []model.StoredAnswer{
		{QuestionID: e.qs[0].ID, Answer: json.RawMessage(`1`)},
		{QuestionID: e.qs[2].ID, Answer: json.RawMessage(`"go"`), IsCorrect: &wrong},
	}

	res, err := e.svc.Result(ctx, e.exam.ID, studentID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Submission.Status != model.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", res.Submission.Status)
	}
	if len(res.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(res.Questions))
	}
	if c := res.Questions[0].IsCorrect; c == nil || !*c {
		t.Errorf("ungraded correct answer graded %v", c)
	}
	if res.Questions[1].IsCorrect != nil {
		t.Error("page break carries a grade")
	}
	if c := res.Questions[2].IsCorrect; c == nil || *c {
		t.Errorf("stored grade not used: %v", c)
	}
}

func TestSessionAPIImplementsEngineBoundary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	api := e.svc.ForStudent(studentID)

	if _, err := api.Start(ctx, e.exam.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := api.RecordWarning(ctx, e.exam.ID, proctor.SignalBackgrounded)
	if err != nil {
		t.Fatalf("RecordWarning: %v", err)
	}
	if res.WarningCount != 1 {
		t.Errorf("count = %d, want 1", res.WarningCount)
	}
	if err := api.Submit(ctx, e.exam.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tr, err := api.TimeRemaining(ctx, e.exam.ID)
	if err != nil {
		t.Fatalf("TimeRemaining: %v", err)
	}
	if !tr.IsExpired {
		t.Error("submitted session not reported expired")
	}
}

func TestControllerOverSessionAPI(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c := proctor.NewController(e.svc.ForStudent(studentID), e.exam.ID, proctor.Options{
		TickInterval: time.Hour,
		SyncInterval: time.Hour,
		SaveDebounce: time.Hour,
	})
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close(ctx)

	if err := c.SetAnswerJSON(e.qs[0].ID, json.RawMessage(`2`)); err != nil {
		t.Fatalf("SetAnswerJSON: %v", err)
	}
	if err := c.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if c.Status() != model.SessionStatusCompleted {
		t.Errorf("controller status = %s, want completed", c.Status())
	}
	if s := e.sessions.get(t, e.exam.ID, studentID); s.Status != model.SessionStatusCompleted {
		t.Errorf("server status = %s, want completed", s.Status)
	}
	answersKey := config.CacheKey.StudentAnswersKey(e.exam.ID.String(), studentID)
	if got := e.mr.HGet(answersKey, e.qs[0].ID.String()); got != "2" {
		t.Errorf("flushed answer = %q, want 2", got)
	}
}
