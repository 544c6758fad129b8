package dispatch

import "sync"

// Queue is the main-thread hand-off: any goroutine may Post, only the
// authoritative loop Drains. Closures run in post order.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	onPanic func(recovered any)
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// OnPanic installs the handler that receives a value recovered from a
// panicking closure. Set it before the first Drain.
func (q *Queue) OnPanic(fn func(recovered any)) {
	q.mu.Lock()
	q.onPanic = fn
	q.mu.Unlock()
}

// Post stages fn for the next drain. A nil fn is ignored.
func (q *Queue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// Len reports the number of staged closures.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain runs every closure staged before the call, in FIFO order, and returns
// how many ran. Closures posted while draining wait for the next drain. A
// panicking closure is recovered and the rest of the batch still runs.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	onPanic := q.onPanic
	q.mu.Unlock()

	for _, fn := range batch {
		runRecovered(fn, onPanic)
	}
	return len(batch)
}

func runRecovered(fn func(), onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	fn()
}
