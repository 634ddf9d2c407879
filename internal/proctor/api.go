// Package proctor drives one student's timed, proctored exam session from
// start to a terminal state while answers are captured.
//
// A Controller composes the pieces: a TimerController that keeps the local
// countdown in step with the server, a ViolationMonitor that turns lifecycle
// signals into warning round trips, an AnswerStore with an AutosaveQueue in
// front of the network, and a single Terminate action they all race to call.
package proctor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamAPI is the server boundary the engine talks to.
type ExamAPI interface {
	Start(ctx context.Context, examID uuid.UUID) (*model.StartResponse, error)
	TimeRemaining(ctx context.Context, examID uuid.UUID) (*model.TimeRemaining, error)
	SaveAnswer(ctx context.Context, examID, questionID uuid.UUID, answer json.RawMessage) (*model.SaveAnswerResult, error)
	RecordWarning(ctx context.Context, examID uuid.UUID, signal LifecycleSignal) (*model.WarningResult, error)
	Submit(ctx context.Context, examID uuid.UUID) error
}

var (
	ErrAlreadyStarted  = errors.New("session already started")
	ErrNotStarted      = errors.New("session not started")
	ErrUnknownQuestion = errors.New("unknown question")
)
