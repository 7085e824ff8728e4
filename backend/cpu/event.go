package cpu

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// record is one placement of an event into a stream. A re-recorded event
// gets a fresh record; waiters keep the one they captured.
type record struct {
	done chan struct{}
	at   time.Time // written before done is closed
}

type event struct {
	id     string
	timing bool

	mu        sync.Mutex
	last      *record
	destroyed bool
}

func newEvent(timing bool) *event {
	return &event{id: uuid.NewString(), timing: timing}
}

func (e *event) ID() string { return e.id }

// current returns the most recent record, or nil if the event was never
// recorded.
func (e *event) current() (*record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, !e.destroyed
}

func (e *event) place() (*record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, false
	}
	r := &record{done: make(chan struct{})}
	e.last = r
	return r, true
}

func (r *record) complete() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
