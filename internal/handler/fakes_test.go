package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

var errBoom = errors.New("boom")

func quietLogger() zerolog.Logger { return zerolog.Nop() }

// asStudent injects claims the way RequireStudentJWT does.
func asStudent(id int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: id})
		c.Next()
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func (e envelope) code() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v\n%s", err, w.Body.String())
		}
	}
	return w, env
}

// fakeSessions records the last call and returns canned results.
type fakeSessions struct {
	err         error
	start       *model.StartResponse
	lastSignal  string
	lastAnswer  json.RawMessage
	lastQID     uuid.UUID
	lastStudent int
	submits     int
}

func (f *fakeSessions) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.StartResponse, error) {
	f.lastStudent = studentID
	if f.err != nil {
		return nil, f.err
	}
	if f.start != nil {
		return f.start, nil
	}
	return &model.StartResponse{Exam: model.Exam{ID: examID}}, nil
}

func (f *fakeSessions) TimeRemaining(ctx context.Context, examID uuid.UUID, studentID int) (*model.TimeRemaining, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.TimeRemaining{RemainingSeconds: 90}, nil
}

func (f *fakeSessions) SaveAnswer(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, raw json.RawMessage) (*model.SaveAnswerResult, error) {
	f.lastQID, f.lastAnswer = questionID, raw
	if f.err != nil {
		return nil, f.err
	}
	return &model.SaveAnswerResult{OK: true}, nil
}

func (f *fakeSessions) RecordWarning(ctx context.Context, examID uuid.UUID, studentID int, signal string) (*model.WarningResult, error) {
	f.lastSignal = signal
	if f.err != nil {
		return nil, f.err
	}
	return &model.WarningResult{WarningCount: 1}, nil
}

func (f *fakeSessions) Submit(ctx context.Context, examID uuid.UUID, studentID int) error {
	f.submits++
	return f.err
}

func (f *fakeSessions) Result(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.ExamResult{Exam: model.Exam{ID: examID}}, nil
}

type fakePapers struct {
	payload *model.ExamPayload
	err     error
}

func (f fakePapers) Paper(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	return f.payload, f.err
}

type fakeExamAdmin struct {
	released   *bool
	refreshErr error
}

func (f *fakeExamAdmin) SetResultsReleased(ctx context.Context, examID uuid.UUID, released bool) error {
	f.released = &released
	return nil
}

func (f *fakeExamAdmin) RefreshCache(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &model.ExamPayload{Exam: model.Exam{ID: examID}, Questions: make([]model.Question, 3)}, nil
}

type fakeReports []model.SessionReportRow

func (f fakeReports) ListReport(ctx context.Context, examID uuid.UUID) ([]model.SessionReportRow, error) {
	return f, nil
}

type fakeExporter struct{ err error }

func (f fakeExporter) Export(ctx context.Context, examID uuid.UUID, w io.Writer) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	_, err := w.Write([]byte("PK\x03\x04"))
	return "hasil.xlsx", err
}
