package mqttbridge

import (
	"context"

	"github.com/coregx/mqttbridge/model"
)

// OutcomeSink receives the terminal outcome of every envelope: a delivery
// acknowledgment, a dead-letter record for abandonments, or a pending-retry
// notice for envelopes drained at shutdown under the report-pending policy.
//
// Implementations might log, persist to a database, append to a redis
// stream, or page an operator. Errors returned here are logged by the
// pipeline and never fail the envelope itself.
type OutcomeSink interface {
	// NotifyDelivered is called when the sink accepted an envelope.
	NotifyDelivered(ctx context.Context, env *model.Envelope) error

	// NotifyAbandoned is called when an envelope will never be delivered.
	// The dead letter carries the full failure history.
	NotifyAbandoned(ctx context.Context, dl model.DeadLetter) error

	// NotifyRetryPending is called at shutdown, under the report-pending
	// policy, for envelopes that still had deliveries or retries owed.
	NotifyRetryPending(ctx context.Context, env *model.Envelope) error
}

// NoOpOutcomeSink is a no-op implementation of OutcomeSink.
// Use this when outcome reporting is not needed.
type NoOpOutcomeSink struct{}

// NotifyDelivered does nothing.
func (n *NoOpOutcomeSink) NotifyDelivered(_ context.Context, _ *model.Envelope) error {
	return nil
}

// NotifyAbandoned does nothing.
func (n *NoOpOutcomeSink) NotifyAbandoned(_ context.Context, _ model.DeadLetter) error {
	return nil
}

// NotifyRetryPending does nothing.
func (n *NoOpOutcomeSink) NotifyRetryPending(_ context.Context, _ *model.Envelope) error {
	return nil
}

// LoggingOutcomeSink is a simple implementation that logs outcomes.
type LoggingOutcomeSink struct {
	logger Logger
}

// NewLoggingOutcomeSink creates a new LoggingOutcomeSink.
func NewLoggingOutcomeSink(logger Logger) *LoggingOutcomeSink {
	return &LoggingOutcomeSink{logger: logger}
}

// NotifyDelivered logs the delivery.
func (n *LoggingOutcomeSink) NotifyDelivered(_ context.Context, env *model.Envelope) error {
	n.logger.Infof("Delivered envelope %s (topic=%s, attempt=%d)", env.ID, env.Topic, env.Attempt)
	return nil
}

// NotifyAbandoned logs the dead letter.
func (n *LoggingOutcomeSink) NotifyAbandoned(_ context.Context, dl model.DeadLetter) error {
	n.logger.Warnf("Abandoned envelope %s (topic=%s, attempts=%d, reason=%s, status=%d, last_error=%s)",
		dl.EnvelopeID, dl.Topic, dl.AttemptCount, dl.Reason, dl.LastStatusCode, dl.LastError)
	return nil
}

// NotifyRetryPending logs the pending retry.
func (n *LoggingOutcomeSink) NotifyRetryPending(_ context.Context, env *model.Envelope) error {
	n.logger.Warnf("Envelope %s still pending at shutdown (topic=%s, attempt=%d)",
		env.ID, env.Topic, env.Attempt)
	return nil
}
