// Package client implements the proctor engine's ExamAPI over the student
// REST endpoints, for native wrappers and headless runners.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var _ proctor.ExamAPI = (*Client)(nil)

// Client talks to /api/v1 with a student bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client with a 10s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for baseURL, e.g. "http://localhost:8080/api/v1".
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "exam_client").Logger()
	return c
}

// APIError is a non-2xx response carrying the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("exam api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("exam api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Start(ctx context.Context, examID uuid.UUID) (*model.StartResponse, error) {
	var out model.StartResponse
	if err := c.do(ctx, http.MethodPost, examPath(examID, "start"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TimeRemaining(ctx context.Context, examID uuid.UUID) (*model.TimeRemaining, error) {
	var out model.TimeRemaining
	if err := c.do(ctx, http.MethodGet, examPath(examID, "time"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveAnswer(ctx context.Context, examID, questionID uuid.UUID, answer json.RawMessage) (*model.SaveAnswerResult, error) {
	body := model.SaveAnswerRequest{QuestionID: questionID, Answer: answer}
	var out model.SaveAnswerResult
	if err := c.do(ctx, http.MethodPut, examPath(examID, "answers"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RecordWarning(ctx context.Context, examID uuid.UUID, signal proctor.LifecycleSignal) (*model.WarningResult, error) {
	body := model.RecordWarningRequest{Signal: signal.String()}
	var out model.WarningResult
	if err := c.do(ctx, http.MethodPost, examPath(examID, "warnings"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Submit(ctx context.Context, examID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, examPath(examID, "submit"), nil, nil)
}

// Result fetches the graded result once an admin has released it.
func (c *Client) Result(ctx context.Context, examID uuid.UUID) (*model.ExamResult, error) {
	var out model.ExamResult
	if err := c.do(ctx, http.MethodGet, examPath(examID, "result"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func examPath(examID uuid.UUID, action string) string {
	return "/student/exams/" + examID.String() + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Str("code", apiErr.Code).Msg("Request failed")
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}
