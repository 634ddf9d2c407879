package proctor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TimerController keeps a local countdown that ticks once per interval and is
// replaced by the server's value on every periodic sync.
type TimerController struct {
	api    ExamAPI
	examID uuid.UUID
	tick   time.Duration
	sync   time.Duration
	log    zerolog.Logger

	onTick   func(remaining int)
	onExpire func()
	// onSync runs after every successful server sync.
	onSync func(ctx context.Context)

	mu        sync.Mutex
	remaining int
	expired   bool

	syncing atomic.Bool
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func newTimerController(api ExamAPI, examID uuid.UUID, tick, syncEvery time.Duration, log zerolog.Logger) *TimerController {
	return &TimerController{
		api:      api,
		examID:   examID,
		tick:     tick,
		sync:     syncEvery,
		log:      log,
		onTick:   func(int) {},
		onExpire: func() {},
		onSync:   func(context.Context) {},
		stop:     make(chan struct{}),
	}
}

// Run counts down from remaining seconds until it reaches zero, the server
// reports expiry, Stop is called or ctx is cancelled.
func (t *TimerController) Run(ctx context.Context, remaining int) {
	t.set(remaining)

	if remaining <= 0 {
		t.expire()
		return
	}

	defer t.wg.Wait()
	tick := time.NewTicker(t.tick)
	defer tick.Stop()
	syncTick := time.NewTicker(t.sync)
	defer syncTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-tick.C:
			left, done := t.decrement()
			if done {
				return
			}
			t.onTick(left)
			if left <= 0 {
				t.expire()
				return
			}
		case <-syncTick.C:
			if !t.syncing.CompareAndSwap(false, true) {
				continue
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				defer t.syncing.Store(false)
				t.resync(ctx)
			}()
		}
	}
}

func (t *TimerController) set(remaining int) {
	t.mu.Lock()
	if !t.expired {
		t.remaining = remaining
	}
	t.mu.Unlock()
}

func (t *TimerController) decrement() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expired {
		return 0, true
	}
	if t.remaining > 0 {
		t.remaining--
	}
	return t.remaining, false
}

func (t *TimerController) resync(ctx context.Context) {
	tr, err := t.api.TimeRemaining(ctx, t.examID)
	if err != nil {
		t.log.Debug().Err(err).Msg("Time sync failed, keeping local countdown")
		return
	}
	if tr.IsExpired || tr.RemainingSeconds <= 0 {
		t.expire()
		return
	}

	t.mu.Lock()
	if t.expired {
		t.mu.Unlock()
		return
	}
	t.remaining = tr.RemainingSeconds
	t.mu.Unlock()

	t.onSync(ctx)
}

func (t *TimerController) expire() {
	t.mu.Lock()
	if t.expired {
		t.mu.Unlock()
		return
	}
	t.expired = true
	t.remaining = 0
	t.mu.Unlock()

	t.onExpire()
}

// Remaining returns the current local countdown in seconds.
func (t *TimerController) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Stop ends Run. Safe to call more than once.
func (t *TimerController) Stop() {
	t.once.Do(func() { close(t.stop) })
}
