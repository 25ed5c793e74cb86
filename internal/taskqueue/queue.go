// Package taskqueue runs submitted functions one at a time, in submission
// order, on a single background worker. Each submission returns an Event
// that completes when the function has returned.
package taskqueue

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is reported by events of tasks enqueued after Close.
	ErrClosed = errors.New("taskqueue: queue closed")
	// ErrPanic is reported by events of tasks that panicked.
	ErrPanic = errors.New("taskqueue: task panicked")
)

// Event signals completion of one enqueued task.
type Event struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task has run. A nil event is already complete.
func (e *Event) Wait() error {
	if e == nil {
		return nil
	}
	<-e.done
	return e.err
}

// Done is closed when the task has run.
func (e *Event) Done() <-chan struct{} { return e.done }

type task struct {
	fn    func()
	event *Event
}

// Queue is a FIFO task queue served by one worker goroutine. The worker
// starts with the first Enqueue.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []task
	started bool
	closed  bool
	stopped chan struct{}
}

func New() *Queue {
	q := &Queue{stopped: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue schedules fn behind every previously enqueued task.
func (q *Queue) Enqueue(fn func()) *Event {
	ev := &Event{done: make(chan struct{})}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		ev.err = ErrClosed
		close(ev.done)
		return ev
	}
	if !q.started {
		q.started = true
		go q.worker()
	}
	q.pending = append(q.pending, task{fn: fn, event: ev})
	q.cond.Signal()
	return ev
}

func (q *Queue) worker() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending[0] = task{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		t.run()
	}
}

// run calls the task, turning a panic into the event's error so the
// worker keeps serving the queue.
func (t task) run() {
	defer func() {
		if r := recover(); r != nil {
			t.event.err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		close(t.event.done)
	}()
	t.fn()
}

// Close drains the tasks already enqueued and stops the worker.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	started := q.started
	q.cond.Broadcast()
	q.mu.Unlock()

	if started {
		<-q.stopped
	}
}
