package notification

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrQueueFull   = errors.New("notification queue full")
	ErrQueueClosed = errors.New("notification queue closed")
)

// Queue is the in-process publisher: a bounded buffer drained by a fixed set
// of workers. Publish never blocks; a full buffer drops the event.
type Queue struct {
	events  chan Event
	handler Handler
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue builds a queue; timeout bounds how long one event may be handled.
func NewQueue(handler Handler, size, workers int, timeout time.Duration) *Queue {
	if size <= 0 {
		size = 100
	}
	if workers <= 0 {
		workers = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Queue{
		events:  make(chan Event, size),
		handler: handler,
		workers: workers,
		timeout: timeout,
	}
}

func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(i)
	}
	log.Printf("[NOTIFY] [INFO] in-process queue started with %d workers", q.workers)
}

func (q *Queue) run(worker int) {
	defer q.wg.Done()
	for event := range q.events {
		q.handle(worker, event)
	}
}

func (q *Queue) handle(worker int, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[NOTIFY] [ERROR] worker %d panicked on order %s: %v", worker, event.OrderNumber, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	q.handler(ctx, event)
}

func (q *Queue) Publish(_ context.Context, event Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.events <- event:
		return nil
	default:
		log.Printf("[NOTIFY] [WARN] queue full, dropping %s for order %s", event.Kind, event.OrderNumber)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
