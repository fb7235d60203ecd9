package mqttbridge

import (
	"context"
	"time"

	"github.com/coregx/mqttbridge/model"
)

// DeadLetterRepository abstracts persistent storage for dead-letter records.
// The bridge only ever writes; the read and resolve operations exist for
// operator tooling (admin API, replay scripts).
type DeadLetterRepository interface {
	// Save persists a dead-letter record and returns it with its ID set.
	Save(ctx context.Context, dl model.DeadLetter) (model.DeadLetter, error)

	// FindUnresolved returns up to limit unresolved records, oldest first.
	FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error)

	// Resolve marks a record as handled by an operator.
	Resolve(ctx context.Context, id int64, note string) error

	// Stats returns aggregate dead-letter counts for monitoring.
	Stats(ctx context.Context) (model.DeadLetterStats, error)
}

// StoreOutcomeSink is an OutcomeSink that persists abandoned envelopes to a
// DeadLetterRepository and logs the other outcomes.
type StoreOutcomeSink struct {
	repo   DeadLetterRepository
	logger Logger
}

// NewStoreOutcomeSink creates an outcome sink backed by a dead-letter
// repository.
func NewStoreOutcomeSink(repo DeadLetterRepository, logger Logger) *StoreOutcomeSink {
	return &StoreOutcomeSink{repo: repo, logger: logger}
}

// NotifyDelivered logs the delivery at debug level.
func (s *StoreOutcomeSink) NotifyDelivered(_ context.Context, env *model.Envelope) error {
	s.logger.Debugf("Delivered envelope %s (topic=%s, attempt=%d)", env.ID, env.Topic, env.Attempt)
	return nil
}

// NotifyAbandoned persists the dead letter. The write uses its own short
// deadline, detached from the (possibly already canceled) pipeline context,
// so shutdown drains are still recorded.
func (s *StoreOutcomeSink) NotifyAbandoned(ctx context.Context, dl model.DeadLetter) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	saved, err := s.repo.Save(saveCtx, dl)
	if err != nil {
		return NewErrorWithCause(ErrCodeStorage, "failed to save dead letter", err)
	}
	s.logger.Warnf("Dead letter %d recorded for envelope %s (topic=%s, attempts=%d, reason=%s)",
		saved.ID, dl.EnvelopeID, dl.Topic, dl.AttemptCount, dl.Reason)
	return nil
}

// NotifyRetryPending logs the pending envelope.
func (s *StoreOutcomeSink) NotifyRetryPending(_ context.Context, env *model.Envelope) error {
	s.logger.Warnf("Envelope %s still pending at shutdown (topic=%s, attempt=%d)",
		env.ID, env.Topic, env.Attempt)
	return nil
}
