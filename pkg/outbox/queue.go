// Package outbox serializes calls to one rate-limited external client.
//
// Each client gets its own Queue: strict FIFO, exactly one in-flight call,
// transparent retry with backoff, and a randomized pacing delay between
// successive calls. A permanently failing head operation stalls its queue
// indefinitely; that is accepted behavior, not a bug to patch here.
package outbox

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/dotsetgreg/relay/pkg/logger"
)

// ErrAbandoned settles the futures of operations still queued when the
// queue shuts down.
var ErrAbandoned = errors.New("outbox: operation abandoned")

// Operation is one deferred outbound call.
type Operation func(ctx context.Context) (any, error)

// Result settles an operation's future.
type Result struct {
	Value any
	Err   error
}

type queuedOperation struct {
	op       Operation
	attempts int
	done     chan Result
}

// Queue is the per-client serialization point. Callers must never bypass it
// for a rate-limited client.
type Queue struct {
	name      string
	backoff   BackoffPolicy
	pacingMin time.Duration
	pacingMax time.Duration

	mu         sync.Mutex
	items      []*queuedOperation
	processing bool
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueue(name string, backoff BackoffPolicy, pacingMin, pacingMax time.Duration) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		name:      name,
		backoff:   backoff,
		pacingMin: pacingMin,
		pacingMax: pacingMax,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Enqueue appends op and returns a future settled when op eventually
// succeeds or is abandoned. Starts the worker loop if it is idle.
func (q *Queue) Enqueue(op Operation) <-chan Result {
	item := &queuedOperation{op: op, done: make(chan Result, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		item.done <- Result{Err: ErrAbandoned}
		return item.done
	}
	q.items = append(q.items, item)
	start := !q.processing
	if start {
		q.processing = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.worker()
	}
	return item.done
}

// Len reports how many operations are queued, including the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the worker and settles every remaining future with
// ErrAbandoned. Blocks until the in-flight operation (if any) returns.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	q.mu.Lock()
	leftover := q.items
	q.items = nil
	q.mu.Unlock()
	for _, item := range leftover {
		item.done <- Result{Err: ErrAbandoned}
	}
}

// worker drains the queue one operation at a time. A failing head is retried
// in place with backoff before any later operation may proceed; FIFO order
// is never violated. The loop exits when the queue empties and a later
// Enqueue restarts it.
func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.closed || len(q.items) == 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.mu.Unlock()

		value, err := item.op(q.ctx)
		if err != nil {
			item.attempts++
			delay := q.backoff.Compute(item.attempts)
			logger.WarnCF("outbox", "Operation failed, retrying head of queue",
				map[string]interface{}{
					"queue":      q.name,
					"attempt":    item.attempts,
					"backoff_ms": delay.Milliseconds(),
					"error":      err.Error(),
				})
			if !q.sleep(delay) {
				return
			}
		} else {
			q.mu.Lock()
			q.items = q.items[1:]
			q.mu.Unlock()
			item.done <- Result{Value: value}
		}

		if !q.sleep(q.pacingDelay()) {
			return
		}
	}
}

// pacingDelay is uniform in [pacingMin, pacingMax).
func (q *Queue) pacingDelay() time.Duration {
	if q.pacingMax <= q.pacingMin {
		return q.pacingMin
	}
	spread := q.pacingMax - q.pacingMin
	return q.pacingMin + time.Duration(rand.Int63n(int64(spread))) // #nosec G404 -- pacing jitter
}

func (q *Queue) sleep(d time.Duration) bool {
	if d <= 0 {
		return q.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-q.ctx.Done():
		return false
	}
}
