// Package redisdlq appends the bridge's dead-letter records to a redis
// stream, where they can be inspected with XRANGE or consumed by replay
// tooling.
package redisdlq

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/coregx/mqttbridge"
	"github.com/coregx/mqttbridge/model"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "mqttbridge:dlq"

// Sink is an mqttbridge.OutcomeSink that records abandoned envelopes as
// entries on a redis stream. Delivered and retry-pending outcomes are
// logged only.
type Sink struct {
	client *redis.Client
	stream string
	logger mqttbridge.Logger
}

// NewSink creates a redis-backed dead-letter sink. An empty stream selects
// DefaultStream.
func NewSink(client *redis.Client, stream string, logger mqttbridge.Logger) (*Sink, error) {
	if client == nil {
		return nil, mqttbridge.NewError(mqttbridge.ErrCodeConfiguration, "redis client is required")
	}
	if logger == nil {
		return nil, mqttbridge.NewError(mqttbridge.ErrCodeConfiguration, "logger is required")
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &Sink{client: client, stream: stream, logger: logger}, nil
}

// Stream returns the configured stream key.
func (s *Sink) Stream() string {
	return s.stream
}

// NotifyDelivered logs the delivery at debug level.
func (s *Sink) NotifyDelivered(_ context.Context, env *model.Envelope) error {
	s.logger.Debugf("Delivered envelope %s (topic=%s, attempt=%d)", env.ID, env.Topic, env.Attempt)
	return nil
}

// NotifyAbandoned appends the dead letter to the stream as a single
// JSON-encoded field.
func (s *Sink) NotifyAbandoned(ctx context.Context, dl model.DeadLetter) error {
	raw, err := json.Marshal(dl)
	if err != nil {
		return mqttbridge.NewErrorWithCause(mqttbridge.ErrCodeStorage, "failed to encode dead letter", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{"dead_letter": string(raw)},
	}).Err()
	if err != nil {
		return mqttbridge.NewErrorWithCause(mqttbridge.ErrCodeStorage, "failed to append dead letter to stream", err)
	}

	s.logger.Warnf("Dead letter for envelope %s appended to stream %s (topic=%s, attempts=%d, reason=%s)",
		dl.EnvelopeID, s.stream, dl.Topic, dl.AttemptCount, dl.Reason)
	return nil
}

// NotifyRetryPending logs the pending envelope.
func (s *Sink) NotifyRetryPending(_ context.Context, env *model.Envelope) error {
	s.logger.Warnf("Envelope %s still pending at shutdown (topic=%s, attempt=%d)",
		env.ID, env.Topic, env.Attempt)
	return nil
}
