package session

import (
	"fmt"
	"sync"
)

// opQueue runs submitted jobs one at a time in submission order on a single
// consumer goroutine.
type opQueue struct {
	mu     sync.Mutex
	jobs   []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

func newOpQueue() *opQueue {
	q := &opQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

// enqueue appends a job. A final job is the last one the queue accepts.
func (q *opQueue) enqueue(job func(), final bool) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrSessionClosed
	}
	q.jobs = append(q.jobs, job)
	if final {
		q.closed = true
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *opQueue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// pending is the number of jobs waiting to start.
func (q *opQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// submit runs fn on the queue and waits for its result. A panicking job
// fails with an error and does not stop the queue.
func submit[T any](q *opQueue, final bool, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	results := make(chan outcome, 1)

	err := q.enqueue(func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("operation panicked: %v", r)
			}
			results <- out
		}()
		out.value, out.err = fn()
	}, final)
	if err != nil {
		var zero T
		return zero, err
	}

	out := <-results
	return out.value, out.err
}
