package native

import (
	"sync"
)

// Queue is a named serial executor. Functions submitted to a queue run one
// at a time in submission order on a dedicated goroutine. Native stacks
// associate one queue with each handle at open time and deliver completions
// on it.
type Queue struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	fifo   []func()
	closed bool

	done chan struct{}
}

// NewQueue creates a serial queue and starts its worker goroutine.
func NewQueue(name string) *Queue {
	q := &Queue{
		name: name,
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Name returns the queue name, used for log attribution.
func (q *Queue) Name() string {
	return q.name
}

// Submit enqueues fn for execution. Returns false if the queue is closed,
// in which case fn will never run.
func (q *Queue) Submit(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.fifo = append(q.fifo, fn)
	q.cond.Signal()
	q.mu.Unlock()
	return true
}

// Close stops accepting new work, drains already-submitted functions, and
// waits for the worker to exit. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		for len(q.fifo) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.fifo) == 0 {
			q.mu.Unlock()
			close(q.done)
			return
		}
		fn := q.fifo[0]
		q.fifo = q.fifo[1:]
		q.mu.Unlock()
		fn()
	}
}
