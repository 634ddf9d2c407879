package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const (
	eventBuffer  = 64
	closeTimeout = 5 * time.Second
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// APIFactory returns the engine's server boundary bound to one student.
type APIFactory func(studentID int) proctor.ExamAPI

// WSHandler hosts one proctor session controller per websocket connection.
type WSHandler struct {
	newAPI   APIFactory
	opts     proctor.Options
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. opts carries the engine clocks.
func NewWSHandler(newAPI APIFactory, opts proctor.Options, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		newAPI:   newAPI,
		opts:     opts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ProctorStream godoc
// WS /ws/v1/student/exams/:exam_id/proctor?token=...
// Starts or resumes the session and streams ticks, warnings, saves and the
// final termination. Disconnecting leaves the session running on the server.
func (h *WSHandler) ProctorStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()

	s := &proctorStream{
		writer: ws.NewWriter(conn),
		events: make(chan proctor.Event, eventBuffer),
		log:    wsLog,
	}

	opts := h.opts
	opts.Notifier = proctor.NotifierFunc(s.enqueue)
	opts.Logger = &wsLog
	ctl := proctor.NewController(h.newAPI(claims.UserID), examID, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctl.Start(ctx); err != nil {
		_, code := sessionErrorCode(err)
		wsLog.Warn().Err(err).Msg("Proctor session failed to start")
		s.writer.WriteError(response.GetMessage(code))
		s.writer.Close(websocket.ClosePolicyViolation, string(code))
		return
	}

	if err := s.writer.WriteTyped(ws.StateResponse{Event: ws.EventState, State: ctl.Snapshot()}); err != nil {
		ctl.Close(ctx)
		return
	}

	// Already finished before this connection: report it and hang up.
	if ctl.Reason() == 0 && ctl.Status().Terminal() {
		s.writer.WriteTyped(ws.TerminatedResponse{
			Event:        ws.EventTerminated,
			Status:       string(ctl.Status()),
			Reason:       response.GetMessage(response.ErrSessionClosed),
			WarningCount: ctl.WarningCount(),
		})
		s.writer.Close(websocket.CloseNormalClosure, "session ended")
		ctl.Close(ctx)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.forward()
	}()

	signals := make(chan proctor.LifecycleSignal)
	ctl.Watch(signals)

	wsLog.Info().Msg("Proctor stream connected")
	s.readLoop(ctx, ctl, signals)

	close(signals)
	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	ctl.Close(closeCtx)
	closeCancel()

	close(s.events)
	<-writerDone
	wsLog.Info().Str("status", string(ctl.Status())).Msg("Proctor stream closed")
}

type proctorStream struct {
	writer *ws.Writer
	events chan proctor.Event
	log    zerolog.Logger
}

// enqueue is the engine's Notifier. Ticks are dropped when the client is
// slow; every other event is delivered.
func (s *proctorStream) enqueue(e proctor.Event) {
	if e.Kind == proctor.EventTick {
		select {
		case s.events <- e:
		default:
		}
		return
	}
	s.events <- e
}

// forward writes engine events until the channel closes. After the
// termination event the connection is closed, which ends the read loop.
func (s *proctorStream) forward() {
	for e := range s.events {
		var err error
		switch e.Kind {
		case proctor.EventTick:
			err = s.writer.WriteTyped(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: e.RemainingSeconds})
		case proctor.EventWarning, proctor.EventResumedWarning:
			err = s.writer.WriteTyped(ws.WarningResponse{
				Event:        ws.EventWarning,
				WarningCount: e.WarningCount,
				Reason:       e.Reason,
				Resumed:      e.Kind == proctor.EventResumedWarning,
			})
		case proctor.EventSaved:
			err = s.writer.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QID: e.QuestionID.String()})
		case proctor.EventTerminated:
			err = s.writer.WriteTyped(ws.TerminatedResponse{
				Event:        ws.EventTerminated,
				Status:       string(e.Status),
				Reason:       e.Reason,
				WarningCount: e.WarningCount,
			})
			s.writer.Close(websocket.CloseNormalClosure, "session ended")
		}
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.log.Debug().Err(err).Str("event", string(e.Kind)).Msg("Dropped event for closed connection")
		}
	}
}

func (s *proctorStream) readLoop(ctx context.Context, ctl *proctor.Controller, signals chan<- proctor.LifecycleSignal) {
	conn := s.writer.Conn()
	for {
		var req ws.Request
		if err := ws.ReadJSON(conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		switch req.Action {
		case ws.ActionAnswer:
			s.handleAnswer(ctl, &req)
		case ws.ActionSignal:
			sig, err := proctor.ParseSignal(req.Signal)
			if err != nil {
				s.writer.WriteError(response.GetMessage(response.ErrInvalidSignal))
				continue
			}
			select {
			case signals <- sig:
			case <-ctl.Done():
			}
		case ws.ActionSubmit:
			if err := ctl.Submit(ctx); err != nil {
				s.log.Error().Err(err).Msg("Submit failed")
				s.writer.WriteError(response.GetMessage(response.ErrInternal))
			}
		case ws.ActionPing:
			s.writer.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			s.log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
			s.writer.WriteError("unknown action: " + string(req.Action))
		}
	}
}

func (s *proctorStream) handleAnswer(ctl *proctor.Controller, req *ws.Request) {
	// SECURITY: Validate QID is a well-formed UUID before it reaches a Redis key.
	qid, err := uuid.Parse(req.QID)
	if err != nil || len(req.Answer) == 0 {
		s.writer.WriteError(response.GetMessage(response.ErrInvalidPayload))
		return
	}

	if err := ctl.SetAnswerJSON(qid, req.Answer); err != nil {
		code := response.ErrInvalidAnswer
		if errors.Is(err, proctor.ErrUnknownQuestion) {
			code = response.ErrUnknownQuestion
		}
		s.writer.WriteError(response.GetMessage(code))
	}
}
