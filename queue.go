package mqttbridge

import (
	"context"

	"github.com/coregx/mqttbridge/model"
)

// OverflowPolicy is the rule applied when the bounded queue is full.
type OverflowPolicy string

const (
	// OverflowBlock suspends the producer until a pop frees space. This is
	// the default: the broker can retain or redeliver while we backpressure,
	// so correctness wins over admission latency.
	OverflowBlock OverflowPolicy = "block"

	// OverflowDropOldest evicts the oldest queued envelope to admit the new
	// one. Each eviction is reported through the queue's drop handler.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
)

// Valid reports whether the policy is one of the recognized values.
func (p OverflowPolicy) Valid() bool {
	return p == OverflowBlock || p == OverflowDropOldest
}

// BoundedQueue is a fixed-capacity FIFO buffer of envelopes decoupling the
// arrival rate from the delivery rate. Push and Pop are safe for concurrent
// use by one or more producers and consumers.
//
// Only envelopes in state Queued live here. Envelopes waiting out a backoff
// delay are held by the retry scheduler instead, so overflow eviction under
// drop-oldest applies to fresh arrivals only; scheduled retries are never
// dropped by admission pressure.
type BoundedQueue struct {
	ch     chan *model.Envelope
	policy OverflowPolicy
	done   chan struct{}
	onDrop func(*model.Envelope)
}

// NewBoundedQueue creates a queue with the given capacity and overflow
// policy. onDrop, if non-nil, is invoked for every envelope evicted under
// drop-oldest; it must not block.
func NewBoundedQueue(capacity int, policy OverflowPolicy, onDrop func(*model.Envelope)) (*BoundedQueue, error) {
	if capacity <= 0 {
		return nil, NewError(ErrCodeConfiguration, "queue capacity must be > 0")
	}
	if !policy.Valid() {
		return nil, NewError(ErrCodeConfiguration, "overflow policy must be block or drop-oldest")
	}
	return &BoundedQueue{
		ch:     make(chan *model.Envelope, capacity),
		policy: policy,
		done:   make(chan struct{}),
		onDrop: onDrop,
	}, nil
}

// Push enqueues an envelope. Under the block policy a push to a full queue
// suspends until a pop creates space, the context is canceled, or the queue
// closes. Under drop-oldest a full queue evicts its head to admit the new
// envelope and the push never suspends.
func (q *BoundedQueue) Push(ctx context.Context, env *model.Envelope) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	if q.policy == OverflowDropOldest {
		for {
			select {
			case q.ch <- env:
				return nil
			default:
			}
			select {
			case dropped := <-q.ch:
				if q.onDrop != nil {
					q.onDrop(dropped)
				}
			default:
				// A concurrent pop freed space between the two selects;
				// loop and try the send again.
			}
		}
	}

	select {
	case q.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

// Pop dequeues the oldest envelope, suspending while the queue is empty
// until an envelope arrives, the context is canceled, or the queue closes.
// After Close, Pop keeps returning buffered envelopes until the queue is
// empty, then returns ErrQueueClosed.
func (q *BoundedQueue) Pop(ctx context.Context) (*model.Envelope, error) {
	// Prefer buffered envelopes over the closed signal so a drain after
	// Close still observes FIFO order.
	select {
	case env := <-q.ch:
		return env, nil
	default:
	}

	select {
	case env := <-q.ch:
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		select {
		case env := <-q.ch:
			return env, nil
		default:
			return nil, ErrQueueClosed
		}
	}
}

// C exposes the receive side of the queue for callers that need to select
// across multiple sources, like a delivery worker also watching the retry
// scheduler. Receiving from C bypasses none of the queue's guarantees.
func (q *BoundedQueue) C() <-chan *model.Envelope {
	return q.ch
}

// Close stops admissions and wakes all blocked producers and consumers.
// Buffered envelopes stay readable via Pop or Drain. Close is idempotent.
func (q *BoundedQueue) Close() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// Closed reports whether Close has been called.
func (q *BoundedQueue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Drain removes and returns all buffered envelopes without blocking. Used
// during shutdown to report still-queued envelopes before exit.
func (q *BoundedQueue) Drain() []*model.Envelope {
	var out []*model.Envelope
	for {
		select {
		case env := <-q.ch:
			out = append(out, env)
		default:
			return out
		}
	}
}

// Len returns the number of buffered envelopes.
func (q *BoundedQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *BoundedQueue) Cap() int {
	return cap(q.ch)
}
