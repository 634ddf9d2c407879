package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionSignal Action = "signal"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// Request is one client message. Only the fields of its action are set.
type Request struct {
	Action Action          `json:"action"`
	QID    string          `json:"q_id,omitempty"`
	Answer json.RawMessage `json:"ans,omitempty"`
	Signal string          `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState      Event = "state"
	EventTick       Event = "tick"
	EventWarning    Event = "warning"
	EventSaved      Event = "saved"
	EventTerminated Event = "terminated"
	EventPong       Event = "pong"
	EventError      Event = "error"
)

// StateResponse carries the session snapshot sent right after start.
type StateResponse struct {
	Event Event `json:"event"`
	State any   `json:"state"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type WarningResponse struct {
	Event        Event  `json:"event"`
	WarningCount int    `json:"warning_count"`
	Reason       string `json:"reason"`
	// Resumed is set for the reminder sent when a warned session resumes.
	Resumed bool `json:"resumed,omitempty"`
}

type SavedResponse struct {
	Event Event  `json:"event"`
	QID   string `json:"q_id"`
}

type TerminatedResponse struct {
	Event        Event  `json:"event"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	WarningCount int    `json:"warning_count"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
