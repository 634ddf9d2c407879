package proctor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AutosaveQueue debounces answer writes per question: every edit restarts
// that question's timer, and only the value present when it fires is sent.
type AutosaveQueue struct {
	api    ExamAPI
	examID uuid.UUID
	store  *AnswerStore
	delay  time.Duration
	log    zerolog.Logger

	// onExpired is called when the server reports the deadline has passed.
	onExpired func()
	onSaved   func(questionID uuid.UUID)

	mu       sync.Mutex
	pending  map[uuid.UUID]*pendingSave
	dirty    map[uuid.UUID]struct{}
	seq      uint64
	closed   bool
	inflight sync.WaitGroup
}

type pendingSave struct {
	seq   uint64
	timer *time.Timer
}

func newAutosaveQueue(api ExamAPI, examID uuid.UUID, store *AnswerStore, delay time.Duration, log zerolog.Logger) *AutosaveQueue {
	return &AutosaveQueue{
		api:       api,
		examID:    examID,
		store:     store,
		delay:     delay,
		log:       log,
		onExpired: func() {},
		onSaved:   func(uuid.UUID) {},
		pending:   make(map[uuid.UUID]*pendingSave),
		dirty:     make(map[uuid.UUID]struct{}),
	}
}

// Schedule (re)arms the save timer for a question. A newer edit replaces the
// pending timer instead of stacking another one.
func (q *AutosaveQueue) Schedule(ctx context.Context, questionID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	if p, ok := q.pending[questionID]; ok {
		p.timer.Stop()
	}
	q.seq++
	seq := q.seq
	q.pending[questionID] = &pendingSave{
		seq:   seq,
		timer: time.AfterFunc(q.delay, func() { q.fire(ctx, questionID, seq) }),
	}
}

func (q *AutosaveQueue) fire(ctx context.Context, questionID uuid.UUID, seq uint64) {
	q.mu.Lock()
	p, ok := q.pending[questionID]
	if !ok || p.seq != seq || q.closed {
		q.mu.Unlock()
		return
	}
	delete(q.pending, questionID)
	q.inflight.Add(1)
	q.mu.Unlock()

	defer q.inflight.Done()
	q.save(ctx, questionID)
}

func (q *AutosaveQueue) save(ctx context.Context, questionID uuid.UUID) {
	a, ok := q.store.Get(questionID)
	if !ok {
		return
	}
	raw, err := model.EncodeAnswer(a)
	if err != nil {
		q.log.Error().Err(err).Str("question_id", questionID.String()).Msg("Encode answer failed")
		return
	}

	res, err := q.api.SaveAnswer(ctx, q.examID, questionID, raw)
	if err != nil {
		q.log.Debug().Err(err).Str("question_id", questionID.String()).Msg("Save failed, will retry on next sync")
		q.markDirty(questionID, true)
		return
	}
	q.markDirty(questionID, false)

	if res.Expired {
		q.onExpired()
		return
	}
	q.onSaved(questionID)
}

func (q *AutosaveQueue) markDirty(questionID uuid.UUID, dirty bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if dirty {
		q.dirty[questionID] = struct{}{}
	} else {
		delete(q.dirty, questionID)
	}
}

// RetryDirty re-sends answers whose last save failed and that have no newer
// edit pending. Called after a periodic time sync, never in a loop.
func (q *AutosaveQueue) RetryDirty(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	var ids []uuid.UUID
	for id := range q.dirty {
		if _, pending := q.pending[id]; !pending {
			ids = append(ids, id)
		}
	}
	q.inflight.Add(1)
	q.mu.Unlock()

	defer q.inflight.Done()
	for _, id := range ids {
		q.save(ctx, id)
	}
}

// Flush sends every pending answer immediately, then stops accepting edits.
func (q *AutosaveQueue) Flush(ctx context.Context) {
	q.mu.Lock()
	q.closed = true
	ids := make([]uuid.UUID, 0, len(q.pending)+len(q.dirty))
	for id, p := range q.pending {
		p.timer.Stop()
		ids = append(ids, id)
	}
	for id := range q.dirty {
		if _, ok := q.pending[id]; !ok {
			ids = append(ids, id)
		}
	}
	q.pending = make(map[uuid.UUID]*pendingSave)
	q.mu.Unlock()

	q.inflight.Wait()
	for _, id := range ids {
		q.save(ctx, id)
	}
}

// Discard drops every pending save and stops accepting edits.
func (q *AutosaveQueue) Discard() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, p := range q.pending {
		p.timer.Stop()
	}
	q.pending = make(map[uuid.UUID]*pendingSave)
}

// Pending returns the number of questions with an armed save timer.
func (q *AutosaveQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Wait blocks until in-flight saves return.
func (q *AutosaveQueue) Wait() {
	q.inflight.Wait()
}
