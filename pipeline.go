package mqttbridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coregx/mqttbridge/model"
	"github.com/coregx/mqttbridge/retry"
)

// ShutdownPolicy controls what happens to envelopes still queued or awaiting
// backoff when the pipeline shuts down.
type ShutdownPolicy string

const (
	// ShutdownAbandon reports drained envelopes as Abandoned with reason
	// "shutdown", producing dead-letter records. This is the default.
	ShutdownAbandon ShutdownPolicy = "abandon"

	// ShutdownReportPending reports drained envelopes through
	// OutcomeSink.NotifyRetryPending instead, for operator visibility.
	ShutdownReportPending ShutdownPolicy = "report-pending"
)

// Valid reports whether the policy is one of the recognized values.
func (p ShutdownPolicy) Valid() bool {
	return p == ShutdownAbandon || p == ShutdownReportPending
}

// Pipeline bridges a subscribed message stream to a synchronous HTTP sink.
// It receives messages through Handle, buffers them in a bounded FIFO queue,
// and drives retried, at-least-once delivery through one or more workers.
//
// Ordering: envelopes reach the workers in arrival order for first attempts.
// Once an envelope enters retry, its redelivery races with newer envelopes;
// with more than one worker, global end-to-end ordering is not guaranteed.
// The sink is assumed to tolerate out-of-order POSTs.
//
// Lifecycle: construct with NewPipeline, feed with Handle, and run with Run,
// which blocks until the context is canceled and the shutdown drain has
// reported every remaining envelope.
//
// Thread safety: safe for concurrent use.
type Pipeline struct {
	queue     *BoundedQueue
	scheduler *retryScheduler
	sink      MessageSink
	strategy  retry.Strategy
	outcomes  OutcomeSink
	metrics   *Metrics
	logger    Logger

	capacity       int
	overflowPolicy OverflowPolicy
	workers        int
	shutdownPolicy ShutdownPolicy

	closed atomic.Bool
}

// NewPipeline creates a delivery pipeline with the provided options.
//
// Required options:
//   - WithSink: the delivery sink (e.g. NewHTTPSink)
//   - WithLogger: logger instance
//
// Optional options:
//   - WithRetryStrategy: custom backoff (default: retry.DefaultStrategy())
//   - WithQueueCapacity: buffer size (default: 1024)
//   - WithOverflowPolicy: block or drop-oldest (default: block)
//   - WithWorkers: delivery worker count (default: 1)
//   - WithOutcomeSink: terminal outcome reporting (default: none)
//   - WithMetrics: shared counters (default: fresh Metrics)
//   - WithShutdownPolicy: abandon or report-pending (default: abandon)
//
// Example:
//
//	sink, err := mqttbridge.NewHTTPSink("https://ingest.example.com/events")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pipe, err := mqttbridge.NewPipeline(
//	    mqttbridge.WithSink(sink),
//	    mqttbridge.WithLogger(logger),
//	    mqttbridge.WithWorkers(4),
//	)
func NewPipeline(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		strategy:       retry.DefaultStrategy(),
		outcomes:       &NoOpOutcomeSink{},
		capacity:       1024,
		overflowPolicy: OverflowBlock,
		workers:        1,
		shutdownPolicy: ShutdownAbandon,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if p.sink == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageSink is required (use WithSink)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}
	if p.metrics == nil {
		p.metrics = NewMetrics()
	}

	queue, err := NewBoundedQueue(p.capacity, p.overflowPolicy, p.onDrop)
	if err != nil {
		return nil, err
	}
	p.queue = queue
	p.scheduler = newRetryScheduler(p.workers)

	return p, nil
}

// Handle is the inbound adapter: it normalizes a message event from the
// subscription stream into an Envelope and enqueues it. No business logic,
// no network I/O.
//
// Under the block overflow policy, Handle suspends while the queue is full,
// backpressuring the subscription stream; cancel ctx to give up. Under
// drop-oldest it never suspends. After shutdown begins, Handle returns
// ErrPipelineClosed.
func (p *Pipeline) Handle(ctx context.Context, msg model.InboundMessage) error {
	if p.closed.Load() {
		return ErrPipelineClosed
	}

	env := msg.Envelope()
	if err := p.queue.Push(ctx, env); err != nil {
		if IsShutdown(err) {
			return ErrPipelineClosed
		}
		return err
	}

	p.metrics.IncArrivals()
	p.logger.Debugf("Enqueued envelope %s (topic=%s, queue=%d/%d)",
		env.ID, env.Topic, p.queue.Len(), p.queue.Cap())
	return nil
}

// Metrics returns the pipeline's counters.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// QueueDepth returns the number of envelopes currently buffered.
func (p *Pipeline) QueueDepth() int {
	return p.queue.Len()
}

// RetryPending returns the number of envelopes awaiting their backoff.
func (p *Pipeline) RetryPending() int {
	return p.scheduler.Pending()
}

// Run starts the retry scheduler and the delivery workers and blocks until
// ctx is canceled. It then stops admissions, lets in-flight HTTP calls run
// to their timeout, and drains both the queue and the scheduler, reporting
// every remaining envelope per the shutdown policy so none is left
// unreported at exit.
//
// Stop the message source before or promptly after canceling ctx; Handle
// rejects new messages once shutdown begins.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Infof("Delivery pipeline started (workers=%d, capacity=%d, policy=%s)",
		p.workers, p.capacity, p.overflowPolicy)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.scheduler.run(runCtx)
	}()

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(runCtx, id)
		}(i)
	}

	<-ctx.Done()
	p.closed.Store(true)
	p.queue.Close()
	cancel()
	wg.Wait()

	p.drainOnShutdown()
	p.logger.Info("Delivery pipeline stopped")
	return nil
}

// onDrop records an envelope evicted under the drop-oldest policy.
func (p *Pipeline) onDrop(env *model.Envelope) {
	p.metrics.IncDropped()
	p.logger.Warnf("Dropped oldest envelope %s (topic=%s) to admit a new arrival", env.ID, env.Topic)
}

// drainOnShutdown reports every envelope still queued or awaiting backoff.
// Workers and the scheduler have already stopped, so this is the sole owner
// of the remaining envelopes.
func (p *Pipeline) drainOnShutdown() {
	remaining := p.queue.Drain()
	remaining = append(remaining, p.scheduler.Drain()...)
	if len(remaining) == 0 {
		return
	}

	ctx := context.Background()
	p.logger.Warnf("Shutdown with %d undelivered envelopes (policy=%s)", len(remaining), p.shutdownPolicy)

	for _, env := range remaining {
		if p.shutdownPolicy == ShutdownReportPending {
			if err := p.outcomes.NotifyRetryPending(ctx, env); err != nil {
				p.logger.Errorf("Failed to report pending envelope %s: %v", env.ID, err)
			}
			continue
		}
		p.abandon(ctx, env, model.ReasonShutdown, nil, 0)
	}
}
