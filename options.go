package mqttbridge

import (
	"fmt"

	"github.com/coregx/mqttbridge/retry"
)

// Option is a function that configures a Pipeline.
// Used with the Options Pattern for flexible service construction.
//
// Example:
//
//	pipe, err := mqttbridge.NewPipeline(
//	    mqttbridge.WithSink(sink),
//	    mqttbridge.WithLogger(logger),
//	    mqttbridge.WithQueueCapacity(4096),       // optional
//	    mqttbridge.WithOverflowPolicy(mqttbridge.OverflowDropOldest), // optional
//	)
type Option func(*Pipeline) error

// WithSink sets the delivery sink. This is a required option.
func WithSink(sink MessageSink) Option {
	return func(p *Pipeline) error {
		if sink == nil {
			return fmt.Errorf("sink cannot be nil")
		}
		p.sink = sink
		return nil
	}
}

// WithLogger sets the logger instance. This is a required option.
//
// Use NoopLogger for silent operation or implement Logger to integrate with
// your logging system (zap, logrus, etc.).
func WithLogger(logger Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithRetryStrategy sets a custom retry strategy. Optional; defaults to
// retry.DefaultStrategy().
func WithRetryStrategy(strategy retry.Strategy) Option {
	return func(p *Pipeline) error {
		if strategy.MaxAttempts <= 0 {
			return fmt.Errorf("retry strategy must allow at least 1 attempt")
		}
		p.strategy = strategy
		return nil
	}
}

// WithQueueCapacity sets the bounded queue capacity. Optional; default 1024.
//
// Larger buffers absorb longer sink outages at the cost of memory and of a
// longer redelivery tail; the buffer is in-memory and lost on crash.
func WithQueueCapacity(capacity int) Option {
	return func(p *Pipeline) error {
		if capacity <= 0 {
			return fmt.Errorf("queue capacity must be > 0, got %d", capacity)
		}
		p.capacity = capacity
		return nil
	}
}

// WithOverflowPolicy sets the rule applied when the queue is full.
// Optional; default OverflowBlock.
func WithOverflowPolicy(policy OverflowPolicy) Option {
	return func(p *Pipeline) error {
		if !policy.Valid() {
			return fmt.Errorf("unknown overflow policy %q", policy)
		}
		p.overflowPolicy = policy
		return nil
	}
}

// WithWorkers sets the number of delivery workers. Optional; default 1.
//
// A single worker preserves best-effort delivery ordering; more workers
// raise throughput but relax end-to-end ordering.
func WithWorkers(workers int) Option {
	return func(p *Pipeline) error {
		if workers <= 0 {
			return fmt.Errorf("worker count must be > 0, got %d", workers)
		}
		p.workers = workers
		return nil
	}
}

// WithOutcomeSink sets the terminal outcome reporting destination.
// Optional; defaults to no reporting.
func WithOutcomeSink(sink OutcomeSink) Option {
	return func(p *Pipeline) error {
		if sink == nil {
			return fmt.Errorf("outcome sink cannot be nil")
		}
		p.outcomes = sink
		return nil
	}
}

// WithMetrics shares an existing Metrics value with the pipeline, for
// example one also served by an admin endpoint. Optional; by default the
// pipeline creates its own.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Pipeline) error {
		if metrics == nil {
			return fmt.Errorf("metrics cannot be nil")
		}
		p.metrics = metrics
		return nil
	}
}

// WithShutdownPolicy sets how undelivered envelopes are reported at
// shutdown. Optional; default ShutdownAbandon.
func WithShutdownPolicy(policy ShutdownPolicy) Option {
	return func(p *Pipeline) error {
		if !policy.Valid() {
			return fmt.Errorf("unknown shutdown policy %q", policy)
		}
		p.shutdownPolicy = policy
		return nil
	}
}
