package proctor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type saveCall struct {
	questionID uuid.UUID
	answer     string
}

// fakeAPI is an in-memory ExamAPI. Warnings close the session once
// maxWarnings is reached, like the server does.
type fakeAPI struct {
	mu sync.Mutex

	start    *model.StartResponse
	startErr error

	remaining model.TimeRemaining
	timeCalls int

	saves        []saveCall
	saveAttempts int
	saveFailures int
	saveExpired  bool

	warnings    int
	maxWarnings int
	warnCalls   int
	warnGate    chan struct{}
	warnEntered chan struct{}

	submits int
}

func newFakeAPI(questions []model.Question) *fakeAPI {
	return &fakeAPI{
		start: &model.StartResponse{
			Exam:      model.Exam{ID: uuid.New(), Title: "Ujian Bahasa Inggris", DurationMinutes: 60},
			Questions: questions,
			Submission: model.Submission{
				Status:           model.SessionStatusInProgress,
				RemainingSeconds: 3600,
			},
		},
		remaining:   model.TimeRemaining{RemainingSeconds: 3600},
		maxWarnings: 3,
	}
}

func (f *fakeAPI) Start(ctx context.Context, examID uuid.UUID) (*model.StartResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	resp := *f.start
	return &resp, nil
}

func (f *fakeAPI) TimeRemaining(ctx context.Context, examID uuid.UUID) (*model.TimeRemaining, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeCalls++
	tr := f.remaining
	return &tr, nil
}

func (f *fakeAPI) SaveAnswer(ctx context.Context, examID, questionID uuid.UUID, answer json.RawMessage) (*model.SaveAnswerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveAttempts++
	if f.saveFailures > 0 {
		f.saveFailures--
		return nil, errors.New("network unreachable")
	}
	if f.saveExpired {
		return &model.SaveAnswerResult{Expired: true}, nil
	}
	f.saves = append(f.saves, saveCall{questionID: questionID, answer: string(answer)})
	return &model.SaveAnswerResult{OK: true}, nil
}

func (f *fakeAPI) RecordWarning(ctx context.Context, examID uuid.UUID, signal LifecycleSignal) (*model.WarningResult, error) {
	f.mu.Lock()
	f.warnCalls++
	gate, entered := f.warnGate, f.warnEntered
	f.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.warnings < f.maxWarnings {
		f.warnings++
	}
	return &model.WarningResult{WarningCount: f.warnings, Closed: f.warnings >= f.maxWarnings}, nil
}

func (f *fakeAPI) Submit(ctx context.Context, examID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return nil
}

func (f *fakeAPI) snapshot() (saves []saveCall, attempts, submits, warnCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]saveCall(nil), f.saves...), f.saveAttempts, f.submits, f.warnCalls
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) kinds(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func question(t model.QuestionType, payload string) model.Question {
	return model.Question{ID: uuid.New(), Type: t, Payload: json.RawMessage(payload), Points: 1}
}

func choice(options ...string) model.Question {
	b, _ := json.Marshal(model.ChoicePayload{Prompt: "Pilih jawaban yang benar.", Options: options})
	return question(model.QuestionTypeSingleChoice, string(b))
}

func pageBreak() model.Question {
	return question(model.QuestionTypePageBreak, `{}`)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
}
