package audio

import "sync"

// Queue is the unbounded hand-off between the capture and processing units.
// Push never blocks, so a stalled consumer grows memory instead of dropping
// frames.
type Queue struct {
	mu     sync.Mutex
	items  [][]int16
	closed bool

	notify chan struct{}
	done   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends a frame. Frames pushed after Close are discarded.
func (q *Queue) Push(frame []int16) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, frame)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest frame without blocking.
func (q *Queue) Pop() ([]int16, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	f := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return f, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready fires after at least one Push since the last receive.
func (q *Queue) Ready() <-chan struct{} { return q.notify }

// Done is closed once the producer has stopped.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
