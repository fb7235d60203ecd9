package mqttbridge

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/coregx/mqttbridge/model"
)

// retryScheduler holds RetryScheduled envelopes until their backoff expires,
// then hands them back to the delivery workers through the Due channel. It is
// the in-process equivalent of a time-ordered retry set: safe for concurrent
// insertion by multiple workers and concurrent expiry-draining.
//
// Modeling the backoff wait as a scheduled re-insertion keeps workers free to
// deliver other envelopes instead of sleeping out the delay.
type retryScheduler struct {
	mu    sync.Mutex
	items scheduleHeap
	wake  chan struct{}
	due   chan *model.Envelope
}

type scheduledEnvelope struct {
	env   *model.Envelope
	dueAt time.Time
}

func newRetryScheduler(workers int) *retryScheduler {
	return &retryScheduler{
		wake: make(chan struct{}, 1),
		due:  make(chan *model.Envelope, workers),
	}
}

// Schedule inserts an envelope to be re-delivered at dueAt. Safe to call
// from any goroutine, including after the run loop has stopped; envelopes
// scheduled during shutdown are picked up by Drain.
func (s *retryScheduler) Schedule(env *model.Envelope, dueAt time.Time) {
	s.mu.Lock()
	heap.Push(&s.items, scheduledEnvelope{env: env, dueAt: dueAt})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Due returns the channel on which expired envelopes are handed back.
func (s *retryScheduler) Due() <-chan *model.Envelope {
	return s.due
}

// Pending returns the number of envelopes still waiting out their backoff.
func (s *retryScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

// run dispatches envelopes as their backoff expires, until the context is
// canceled. An envelope popped from the heap but not yet handed to a worker
// when cancellation hits is pushed back so Drain can report it.
func (s *retryScheduler) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		hasNext := s.items.Len() > 0
		if hasNext {
			wait = time.Until(s.items[0].dueAt)
		}
		s.mu.Unlock()

		if hasNext && wait <= 0 {
			s.mu.Lock()
			next := heap.Pop(&s.items).(scheduledEnvelope)
			s.mu.Unlock()

			select {
			case s.due <- next.env:
			case <-ctx.Done():
				s.Schedule(next.env, next.dueAt)
				return
			}
			continue
		}

		if hasNext {
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-s.wake:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case <-ctx.Done():
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				return
			}
			continue
		}

		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}

// Drain removes and returns every envelope still awaiting its backoff, in
// due order. Called during shutdown after the run loop has exited; the
// pipeline reports each drained envelope so none is lost silently.
func (s *retryScheduler) Drain() []*model.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Envelope, 0, s.items.Len())
	for s.items.Len() > 0 {
		out = append(out, heap.Pop(&s.items).(scheduledEnvelope).env)
	}

	// Envelopes already handed off to the due channel but never picked up
	// by a worker are drained too.
	for {
		select {
		case env := <-s.due:
			out = append(out, env)
		default:
			return out
		}
	}
}

// scheduleHeap is a min-heap ordered by due time.
type scheduleHeap []scheduledEnvelope

func (h scheduleHeap) Len() int            { return len(h) }
func (h scheduleHeap) Less(i, j int) bool  { return h[i].dueAt.Before(h[j].dueAt) }
func (h scheduleHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scheduleHeap) Push(x interface{}) { *h = append(*h, x.(scheduledEnvelope)) }

func (h *scheduleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
