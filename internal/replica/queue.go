package replica

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of work for one database, drained by a single
// Run loop.
//
// The signal channel has a buffer of one so repeated Enqueue calls coalesce
// into one wake-up; Close closes it to release the loop.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{}
	done   chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		tasks:  make([]func(), 0, 8),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue appends fn. It may be called from any goroutine and reports false
// once the queue is closed.
func (q *Queue) Enqueue(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) tryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	fn := q.tasks[0]
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return fn, true
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting work. Run drains what is already queued, then
// returns.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Done is closed when Run has returned.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Run executes tasks one at a time in enqueue order until the queue is
// closed and drained, or ctx ends. Call it once.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		if fn, ok := q.tryDequeue(); ok {
			fn()
			continue
		}
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-q.signal:
		}
	}
}
