package sse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Queue is an unbounded FIFO of events drained by a single consumer.
// Push never blocks, so the producer side (the parser) is never held
// up by a slow handler.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	ready  chan struct{}
	logger *slog.Logger
}

// NewQueue returns an empty, open Queue.
func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		ready:  make(chan struct{}, 1),
		logger: logger,
	}
}

// Push appends events in order. Events pushed after Close are dropped.
func (q *Queue) Push(events ...Event) {
	if len(events) == 0 {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("sse queue closed, dropping events", "count", len(events))
		return
	}
	q.items = append(q.items, events...)
	q.mu.Unlock()

	q.signal()
}

// Close marks the end of input. Run returns once the remaining events
// have been delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

// Len returns the number of events waiting for delivery.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop removes the head of the queue. ok is false when the queue is
// empty; closed reports whether more events may still arrive.
func (q *Queue) pop() (ev Event, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Event{}, false, q.closed
	}

	ev = q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]

	return ev, true, q.closed
}

// Run delivers events to h one at a time, in arrival order, until the
// queue is closed and empty. It returns ctx.Err() if ctx ends first,
// including while draining after Close. Errors and panics from h are
// logged and delivery continues with the next event.
func (q *Queue) Run(ctx context.Context, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, ok, closed := q.pop()
		if ok {
			q.deliver(ctx, h, ev)
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) deliver(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("sse handler panic", "kind", ev.Kind, "panic", fmt.Sprint(r))
		}
	}()

	if err := h(ctx, ev); err != nil {
		q.logger.Error("sse handler", "kind", ev.Kind, "error", err)
	}
}
