package proctor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Reason names the path that ended a session.
type Reason int

const (
	ReasonTimeout Reason = iota + 1
	ReasonViolationLimit
	ReasonVoluntary
)

func (r Reason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonViolationLimit:
		return "violation_limit"
	case ReasonVoluntary:
		return "voluntary"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Status is the terminal session status a reason maps to.
func (r Reason) Status() model.SessionStatus {
	switch r {
	case ReasonTimeout:
		return model.SessionStatusAutoClosed
	case ReasonViolationLimit:
		return model.SessionStatusWarnedOut
	}
	return model.SessionStatusCompleted
}

// Message is shown to the student when the session ends.
func (r Reason) Message() string {
	switch r {
	case ReasonTimeout:
		return "Waktu ujian telah habis. Jawaban Anda telah dikumpulkan."
	case ReasonViolationLimit:
		return "Ujian ditutup karena batas pelanggaran telah tercapai."
	}
	return "Jawaban Anda telah berhasil dikumpulkan."
}

// Options tunes the engine's clocks. Zero values take the defaults.
type Options struct {
	TickInterval time.Duration
	SyncInterval time.Duration
	SaveDebounce time.Duration
	Notifier     Notifier
	Logger       *zerolog.Logger
}

const (
	DefaultTickInterval = time.Second
	DefaultSyncInterval = 60 * time.Second
	DefaultSaveDebounce = 500 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	if o.SaveDebounce <= 0 {
		o.SaveDebounce = DefaultSaveDebounce
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	return o
}

// Controller owns one student's session from start to a terminal state.
// Timeout, violation limit and voluntary submit all end it through
// Terminate, and only the first of them takes effect.
type Controller struct {
	api      ExamAPI
	examID   uuid.UUID
	opts     Options
	log      zerolog.Logger
	notifier Notifier

	timer    *TimerController
	monitor  *ViolationMonitor
	autosave *AutosaveQueue

	// writeMu orders answer writes against the terminate flag.
	writeMu sync.Mutex

	mu        sync.RWMutex
	status    model.SessionStatus
	exam      model.Exam
	questions []model.Question
	pages     []Page
	answers   *AnswerStore
	reason    Reason

	started     atomic.Bool
	ready       atomic.Bool
	terminating atomic.Bool
	closed      atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewController creates an idle controller for examID. Call Start to begin.
func NewController(api ExamAPI, examID uuid.UUID, opts Options) *Controller {
	opts = opts.withDefaults()

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "proctor").Str("exam_id", examID.String()).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:      api,
		examID:   examID,
		opts:     opts,
		log:      logger,
		notifier: opts.Notifier,
		status:   model.SessionStatusNotStarted,
		answers:  NewAnswerStore(nil),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	c.timer = newTimerController(api, examID, opts.TickInterval, opts.SyncInterval, logger)
	c.timer.onTick = func(remaining int) {
		c.notifier.Notify(Event{Kind: EventTick, RemainingSeconds: remaining})
	}
	c.timer.onExpire = func() { c.terminateAsync(ReasonTimeout) }
	c.timer.onSync = func(ctx context.Context) { c.autosave.RetryDirty(ctx) }

	c.monitor = newViolationMonitor(api, examID, logger)
	c.monitor.active = c.active
	c.monitor.onLimit = func(int) { c.terminateAsync(ReasonViolationLimit) }
	c.monitor.onWarning = func(count int, sig LifecycleSignal) {
		c.notifier.Notify(Event{Kind: EventWarning, WarningCount: count, Reason: sig.Reason()})
	}

	return c
}

// Start fetches the paper and prior state, then begins the countdown. A
// session that is already terminal on the server is adopted as-is.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	resp, err := c.api.Start(ctx, c.examID)
	if err != nil {
		c.started.Store(false)
		return fmt.Errorf("start session: %w", err)
	}

	store := NewAnswerStore(resp.Questions)
	if skipped := store.Load(resp.SavedAnswers); skipped > 0 {
		c.log.Warn().Int("skipped", skipped).Msg("Ignored saved answers that do not fit the paper")
	}

	c.mu.Lock()
	c.exam = resp.Exam
	c.questions = resp.Questions
	c.pages = BuildPages(resp.Questions)
	c.answers = store
	c.mu.Unlock()

	c.autosave = newAutosaveQueue(c.api, c.examID, store, c.opts.SaveDebounce, c.log)
	c.autosave.onExpired = func() { c.terminateAsync(ReasonTimeout) }
	c.autosave.onSaved = func(questionID uuid.UUID) {
		c.notifier.Notify(Event{Kind: EventSaved, QuestionID: questionID})
	}

	sub := resp.Submission
	c.monitor.seed(sub.WarningCount)

	if sub.Status.Terminal() {
		c.terminating.Store(true)
		c.ready.Store(true)
		c.autosave.Discard()
		c.mu.Lock()
		c.status = sub.Status
		c.mu.Unlock()
		c.cancel()
		close(c.done)
		c.log.Info().Str("status", string(sub.Status)).Msg("Session already finished")
		return nil
	}

	c.mu.Lock()
	c.status = model.SessionStatusInProgress
	c.mu.Unlock()
	c.ready.Store(true)

	if sub.WarningCount >= 1 {
		c.notifier.Notify(Event{
			Kind:         EventResumedWarning,
			WarningCount: sub.WarningCount,
			Reason:       "Anda sudah menerima peringatan sebelumnya pada ujian ini.",
		})
	}

	if sub.RemainingSeconds <= 0 {
		_, err := c.Terminate(ctx, ReasonTimeout)
		return err
	}

	c.timer.set(sub.RemainingSeconds)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.timer.Run(c.ctx, sub.RemainingSeconds)
	}()

	c.log.Info().
		Int("remaining_seconds", sub.RemainingSeconds).
		Int("warning_count", sub.WarningCount).
		Int("saved_answers", store.Len()).
		Msg("Session started")
	return nil
}

// Terminate ends the session for reason. Only the first call has any effect;
// it reports whether this call was the one that ended the session. Submit is
// invoked exactly once, by the winning call.
func (c *Controller) Terminate(ctx context.Context, reason Reason) (bool, error) {
	if !c.ready.Load() {
		return false, ErrNotStarted
	}
	c.writeMu.Lock()
	won := c.terminating.CompareAndSwap(false, true)
	c.writeMu.Unlock()
	if !won {
		return false, nil
	}

	c.timer.Stop()
	if reason == ReasonVoluntary {
		c.autosave.Flush(ctx)
	} else {
		c.autosave.Discard()
	}

	err := c.api.Submit(ctx, c.examID)
	if err != nil {
		c.log.Error().Err(err).Stringer("reason", reason).Msg("Submit failed")
		err = fmt.Errorf("submit: %w", err)
	}

	status := reason.Status()
	c.mu.Lock()
	c.status = status
	c.reason = reason
	c.mu.Unlock()

	c.log.Info().Stringer("reason", reason).Str("status", string(status)).Msg("Session terminated")
	c.notifier.Notify(Event{
		Kind:         EventTerminated,
		Status:       status,
		Reason:       reason.Message(),
		WarningCount: c.monitor.Count(),
	})

	c.cancel()
	close(c.done)
	return true, err
}

// terminateAsync is used by the timer, autosave and monitor callbacks.
// The session's own context is cancelled by Terminate, so submit runs
// on a detached context.
func (c *Controller) terminateAsync(reason Reason) {
	if c.closed.Load() {
		return
	}
	ctx := context.WithoutCancel(c.ctx)
	if _, err := c.Terminate(ctx, reason); err != nil {
		c.log.Warn().Err(err).Stringer("reason", reason).Msg("Termination completed with error")
	}
}

// Submit ends the session voluntarily. Pending saves are flushed first.
// Calling it after the session already ended is a no-op.
func (c *Controller) Submit(ctx context.Context) error {
	_, err := c.Terminate(ctx, ReasonVoluntary)
	return err
}

// SetAnswer stores a and schedules its debounced save. After termination it
// is a no-op.
func (c *Controller) SetAnswer(questionID uuid.UUID, a model.Answer) error {
	return c.write(questionID, func(store *AnswerStore) error {
		return store.Set(questionID, a)
	})
}

// SetAnswerJSON is SetAnswer for a wire-encoded answer.
func (c *Controller) SetAnswerJSON(questionID uuid.UUID, raw json.RawMessage) error {
	return c.write(questionID, func(store *AnswerStore) error {
		return store.SetJSON(questionID, raw)
	})
}

func (c *Controller) write(questionID uuid.UUID, set func(*AnswerStore) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.accepting() {
		return nil
	}
	c.mu.RLock()
	store := c.answers
	c.mu.RUnlock()

	if err := set(store); err != nil {
		return err
	}
	c.autosave.Schedule(c.ctx, questionID)
	return nil
}

// Signal reports one lifecycle signal and waits for its round trip.
func (c *Controller) Signal(ctx context.Context, sig LifecycleSignal) bool {
	return c.monitor.Report(ctx, sig)
}

// Watch feeds signals from a platform adapter into the violation monitor
// until the channel closes or the session ends.
func (c *Controller) Watch(signals <-chan LifecycleSignal) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.monitor.Watch(c.ctx, signals)
	}()
}

func (c *Controller) accepting() bool {
	return c.ready.Load() && !c.terminating.Load() && !c.closed.Load()
}

func (c *Controller) active() bool {
	return c.accepting() && c.Status() == model.SessionStatusInProgress
}

// Close tears the controller down without ending the session on the server.
// Pending saves of a live session are flushed first.
func (c *Controller) Close(ctx context.Context) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.timer.Stop()
	if c.ready.Load() && !c.terminating.Load() {
		c.autosave.Flush(ctx)
	}
	c.cancel()

	c.wg.Wait()
	c.monitor.Wait()
	if c.ready.Load() {
		c.autosave.Wait()
	}
}

// Done is closed once the session reaches a terminal state.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Status returns the current session status.
func (c *Controller) Status() model.SessionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Reason returns what ended the session, or zero while it is live or when
// it was already terminal at start.
func (c *Controller) Reason() Reason {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

func (c *Controller) Exam() model.Exam {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exam
}

func (c *Controller) Questions() []model.Question {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.questions
}

func (c *Controller) Pages() []Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pages
}

func (c *Controller) Answers() *AnswerStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.answers
}

func (c *Controller) WarningCount() int {
	return c.monitor.Count()
}

func (c *Controller) Remaining() int {
	return c.timer.Remaining()
}

// Progress is the answered fraction of answerable questions.
func (c *Controller) Progress() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Progress(c.questions, c.answers)
}

// State is a point-in-time view of the session for rendering.
type State struct {
	ExamID           uuid.UUID                  `json:"exam_id"`
	Title            string                     `json:"title"`
	Status           model.SessionStatus        `json:"status"`
	RemainingSeconds int                        `json:"remaining_seconds"`
	WarningCount     int                        `json:"warning_count"`
	Answered         int                        `json:"answered"`
	Answerable       int                        `json:"answerable"`
	Progress         float64                    `json:"progress"`
	Pages            []Page                     `json:"pages"`
	Answers          map[string]json.RawMessage `json:"answers"`
}

// Snapshot captures the current State.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	questions, pages, store := c.questions, c.pages, c.answers
	s := State{
		ExamID: c.examID,
		Title:  c.exam.Title,
		Status: c.status,
	}
	c.mu.RUnlock()

	s.RemainingSeconds = c.timer.Remaining()
	s.WarningCount = c.monitor.Count()
	s.Answered = AnsweredCount(questions, store)
	s.Answerable = AnswerableCount(questions)
	s.Progress = Progress(questions, store)
	s.Pages = pages

	s.Answers = make(map[string]json.RawMessage, store.Len())
	for id, a := range store.Snapshot() {
		if raw, err := model.EncodeAnswer(a); err == nil {
			s.Answers[id.String()] = raw
		}
	}
	return s
}
