package proctor

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

func TestDebounceCoalescing(t *testing.T) {
	q := choice("a", "b", "c", "d", "e")
	api := newFakeAPI([]model.Question{q})
	c, rec := startController(t, api, Options{SaveDebounce: 50 * time.Millisecond})

	for i := 0; i < 5; i++ {
		if err := c.SetAnswer(q.ID, model.ChoiceAnswer(i)); err != nil {
			t.Fatalf("SetAnswer(%d): %v", i, err)
		}
	}

	waitFor(t, "debounced save", func() bool {
		saves, _, _, _ := api.snapshot()
		return len(saves) > 0
	})
	time.Sleep(150 * time.Millisecond)

	saves, attempts, _, _ := api.snapshot()
	if attempts != 1 || len(saves) != 1 {
		t.Fatalf("got %d save calls, want 1", attempts)
	}
	if saves[0].questionID != q.ID || saves[0].answer != "4" {
		t.Errorf("saved %+v, want final value 4", saves[0])
	}
	if n := len(rec.kinds(EventSaved)); n != 1 {
		t.Errorf("saved events = %d, want 1", n)
	}
}

func TestDebounceIsPerQuestion(t *testing.T) {
	q1, q2 := choice("a", "b"), choice("a", "b")
	api := newFakeAPI([]model.Question{q1, q2})
	c, _ := startController(t, api, Options{SaveDebounce: 20 * time.Millisecond})

	_ = c.SetAnswer(q1.ID, model.ChoiceAnswer(0))
	_ = c.SetAnswer(q2.ID, model.ChoiceAnswer(1))

	waitFor(t, "two saves", func() bool {
		saves, _, _, _ := api.snapshot()
		return len(saves) == 2
	})
}

func TestExpiredSaveTerminatesSession(t *testing.T) {
	q := choice("a", "b")
	api := newFakeAPI([]model.Question{q})
	api.saveExpired = true
	c, _ := startController(t, api, Options{SaveDebounce: 10 * time.Millisecond})

	if err := c.SetAnswer(q.ID, model.ChoiceAnswer(1)); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	waitDone(t, c)
	if c.Status() != model.SessionStatusAutoClosed {
		t.Errorf("status = %s, want auto_closed", c.Status())
	}
	if _, _, submits, _ := api.snapshot(); submits != 1 {
		t.Errorf("submit called %d times, want 1", submits)
	}
}

func TestFailedSaveRetriedOnSync(t *testing.T) {
	q := choice("a", "b")
	api := newFakeAPI([]model.Question{q})
	api.saveFailures = 1
	c, _ := startController(t, api, Options{
		TickInterval: time.Hour,
		SyncInterval: 40 * time.Millisecond,
		SaveDebounce: 5 * time.Millisecond,
	})

	if err := c.SetAnswer(q.ID, model.ChoiceAnswer(1)); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	waitFor(t, "retried save", func() bool {
		saves, _, _, _ := api.snapshot()
		return len(saves) == 1
	})
	if _, attempts, _, _ := api.snapshot(); attempts != 2 {
		t.Errorf("save attempts = %d, want 2", attempts)
	}
}
