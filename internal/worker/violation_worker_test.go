package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func violationBatch(examID uuid.UUID) []*model.ViolationJob {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC).Unix()
	return []*model.ViolationJob{
		{ExamID: examID, StudentID: 1, Signal: "hidden", WarningCount: 1, Timestamp: now},
		{ExamID: examID, StudentID: 1, Signal: "blurred", WarningCount: 2, Timestamp: now + 5},
		{ExamID: examID, StudentID: 2, Signal: "hidden", WarningCount: 1, Timestamp: now + 9},
	}
}

func TestViolationWorkerFlush(t *testing.T) {
	_, rdb := newRedis(t)
	violations := &fakeViolations{}
	sessions := newFakeSessions()
	w := NewViolationWorker(violations, sessions, rdb, quietLogger())

	w.flushSafe(context.Background(), violationBatch(uuid.New()))

	if len(violations.rows) != 3 {
		t.Fatalf("copied %d rows, want 3", len(violations.rows))
	}
	if sessions.warnings[1] != 2 || sessions.warnings[2] != 1 {
		t.Errorf("warning counts %v", sessions.warnings)
	}
	if got := violations.rows[1].RecordedAt.Unix(); got != violationBatch(uuid.Nil)[1].Timestamp {
		t.Errorf("recorded_at %d", got)
	}
}

func TestViolationWorkerFallback(t *testing.T) {
	_, rdb := newRedis(t)
	violations := &fakeViolations{failCopy: true, failSignal: "blurred"}
	sessions := newFakeSessions()
	w := NewViolationWorker(violations, sessions, rdb, quietLogger())
	w.backoff = 0

	w.flushSafe(context.Background(), violationBatch(uuid.New()))

	if len(violations.rows) != 2 {
		t.Fatalf("inserted %d rows, want 2", len(violations.rows))
	}
	if n := queueLen(t, rdb, config.WorkerKey.PersistViolationsQueue); n != 1 {
		t.Errorf("requeued %d, want 1", n)
	}
	// Only stored violations are mirrored onto the session.
	if sessions.warnings[1] != 1 {
		t.Errorf("student 1 warning count %d, want 1", sessions.warnings[1])
	}
}

func TestViolationWorkerFlushesOnShutdown(t *testing.T) {
	_, rdb := newRedis(t)
	violations := &fakeViolations{}
	w := NewViolationWorker(violations, newFakeSessions(), rdb, quietLogger())

	for _, j := range violationBatch(uuid.New()) {
		push(t, rdb, config.WorkerKey.PersistViolationsQueue, j)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for queueLen(t, rdb, config.WorkerKey.PersistViolationsQueue) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	violations.mu.Lock()
	defer violations.mu.Unlock()
	if len(violations.rows) != 3 {
		t.Errorf("flushed %d rows, want 3", len(violations.rows))
	}
}
