// Package eventqueue hands decoded events from the watcher goroutine to the
// render loop.
package eventqueue

import (
	"sync"

	"github.com/victorarias/gerrit-view/internal/protocol"
)

// Queue is an unbounded FIFO. Enqueue never blocks the producer and
// DrainAvailable never blocks the consumer.
type Queue struct {
	mu     sync.Mutex
	events []protocol.Event
}

func New() *Queue {
	return &Queue{}
}

// Enqueue appends ev. Safe to call from any goroutine.
func (q *Queue) Enqueue(ev protocol.Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// DrainAvailable removes and returns everything queued so far, oldest first.
// It returns nil when the queue is empty.
func (q *Queue) DrainAvailable() []protocol.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	drained := q.events
	q.events = nil
	return drained
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
