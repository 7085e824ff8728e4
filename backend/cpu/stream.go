package cpu

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// stream represents an ordered sequence of operations that execute
// asynchronously. Operations within a stream execute in order, but
// operations in different streams may execute concurrently.
type stream struct {
	id        string
	tasks     chan func()
	wg        sync.WaitGroup
	destroyed atomic.Bool
}

func newStream() *stream {
	s := &stream{
		id:    uuid.NewString(),
		tasks: make(chan func(), 1000),
	}
	go s.worker()
	return s
}

func (s *stream) ID() string { return s.id }

// worker processes tasks for a stream
func (s *stream) worker() {
	for task := range s.tasks {
		task()
		s.wg.Done()
	}
}

// submit adds a task to the stream
func (s *stream) submit(task func()) {
	s.wg.Add(1)
	s.tasks <- task
}

// submitWait adds a task and blocks until it has run.
func (s *stream) submitWait(task func()) {
	done := make(chan struct{})
	s.submit(func() {
		defer close(done)
		task()
	})
	<-done
}

// synchronize waits for all tasks in the stream to complete
func (s *stream) synchronize() {
	s.wg.Wait()
}

// close stops the worker once queued work drains.
func (s *stream) close() {
	go func() {
		s.wg.Wait()
		close(s.tasks)
	}()
}
