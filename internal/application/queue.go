package application

import "sync"

// inboxQueue turns pushes into an unbounded, ordered receive channel. It
// never blocks the producer. Close drains pending items to the consumer and
// then closes the channel.
type inboxQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
	out    chan T
}

func newInboxQueue[T any]() *inboxQueue[T] {
	q := &inboxQueue[T]{out: make(chan T)}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *inboxQueue[T]) C() <-chan T {
	return q.out
}

func (q *inboxQueue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

func (q *inboxQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *inboxQueue[T]) run() {
	defer close(q.out)

	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		q.out <- item
	}
}
