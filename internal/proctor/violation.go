package proctor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ViolationMonitor turns lifecycle signals into warning round trips. At most
// one round trip is in flight; signals arriving meanwhile are dropped, and a
// failed round trip is not retried.
type ViolationMonitor struct {
	api    ExamAPI
	examID uuid.UUID
	log    zerolog.Logger

	active    func() bool
	onWarning func(count int, sig LifecycleSignal)
	onLimit   func(count int)

	inflight atomic.Bool
	wg       sync.WaitGroup
	mu       sync.Mutex
	count    int
}

func newViolationMonitor(api ExamAPI, examID uuid.UUID, log zerolog.Logger) *ViolationMonitor {
	return &ViolationMonitor{
		api:       api,
		examID:    examID,
		log:       log,
		active:    func() bool { return true },
		onWarning: func(int, LifecycleSignal) {},
		onLimit:   func(int) {},
	}
}

// Report records one signal. It returns true when the server accepted it.
func (m *ViolationMonitor) Report(ctx context.Context, sig LifecycleSignal) bool {
	if !m.active() {
		return false
	}
	if !m.inflight.CompareAndSwap(false, true) {
		m.log.Debug().Stringer("signal", sig).Msg("Warning round trip in flight, signal dropped")
		return false
	}
	defer m.inflight.Store(false)

	res, err := m.api.RecordWarning(ctx, m.examID, sig)
	if err != nil {
		m.log.Warn().Err(err).Stringer("signal", sig).Msg("Failed to record warning")
		return false
	}

	// Server counts only grow; a stale response never lowers the local count.
	m.mu.Lock()
	if res.WarningCount > m.count {
		m.count = res.WarningCount
	}
	count := m.count
	m.mu.Unlock()

	if res.Closed {
		m.onLimit(count)
		return true
	}
	if m.active() {
		m.onWarning(count, sig)
	}
	return true
}

// Watch reports signals received on signals until it is closed or ctx ends.
// Reports run concurrently with the receive loop so that a signal arriving
// during a round trip is dropped rather than queued.
func (m *ViolationMonitor) Watch(ctx context.Context, signals <-chan LifecycleSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.Report(ctx, sig)
			}()
		}
	}
}

// Wait blocks until reports started by Watch return.
func (m *ViolationMonitor) Wait() {
	m.wg.Wait()
}

// Count returns the highest warning count seen.
func (m *ViolationMonitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *ViolationMonitor) seed(count int) {
	m.mu.Lock()
	if count > m.count {
		m.count = count
	}
	m.mu.Unlock()
}
