package protocol

import (
	"sync"
)

// Queue is an ordered, asynchronous Poster: messages are handed to the
// handler on a dedicated goroutine in send order. It models the
// window-to-window channel of the page runtime, where posts never run the
// receiver synchronously but always arrive in order.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Message
	closed  bool
}

// NewQueue starts a queue delivering to handler.
func NewQueue(handler func(Message)) *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	go q.run(handler)
	return q
}

// Post implements Poster. Posting to a closed queue drops the message.
func (q *Queue) Post(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, msg)
	q.cond.Signal()
}

// Close stops delivery after the backlog drains.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Signal()
}

func (q *Queue) run(handler func(Message)) {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		handler(msg)
	}
}
