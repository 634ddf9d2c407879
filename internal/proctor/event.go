package proctor

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	EventTick           EventKind = "tick"
	EventWarning        EventKind = "warning"
	EventResumedWarning EventKind = "resumed_warning"
	EventSaved          EventKind = "saved"
	EventTerminated     EventKind = "terminated"
)

// Event is pushed to the Notifier as the session evolves.
type Event struct {
	Kind             EventKind
	RemainingSeconds int
	WarningCount     int
	Reason           string
	QuestionID       uuid.UUID
	Status           model.SessionStatus
}

// Notifier receives engine events. Implementations must not block for long;
// they are called from timer and network goroutines.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
