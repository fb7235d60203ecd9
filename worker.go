package mqttbridge

import (
	"context"
	"errors"
	"time"

	"github.com/coregx/mqttbridge/model"
)

// runWorker is one delivery worker: it takes the next envelope from either
// the bounded queue or the retry scheduler and drives it to a terminal
// state. Each envelope is owned by exactly one worker at a time, so no two
// delivery attempts for the same envelope are ever in flight concurrently.
func (p *Pipeline) runWorker(ctx context.Context, id int) {
	p.logger.Debugf("Delivery worker %d started", id)
	defer p.logger.Debugf("Delivery worker %d stopped", id)

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-p.scheduler.Due():
			p.process(ctx, env)
		case env := <-p.queue.C():
			p.process(ctx, env)
		}
	}
}

// process runs a single delivery attempt and applies the retry engine's
// transition rules to the outcome.
func (p *Pipeline) process(ctx context.Context, env *model.Envelope) {
	if err := env.MarkInFlight(); err != nil {
		p.logger.Errorf("Envelope %s in unexpected state %s: %v", env.ID, env.State, err)
		return
	}

	// The request context is detached from the run context so an in-flight
	// call completes up to its own timeout even when shutdown begins
	// mid-request.
	err := p.sink.Deliver(context.WithoutCancel(ctx), env)
	if err == nil {
		if terr := env.MarkDelivered(); terr != nil {
			p.logger.Errorf("Envelope %s could not be marked delivered: %v", env.ID, terr)
			return
		}
		p.metrics.IncDelivered()
		if nerr := p.outcomes.NotifyDelivered(ctx, env); nerr != nil {
			p.logger.Warnf("Failed to report delivery of envelope %s: %v", env.ID, nerr)
		}
		p.logger.Infof("Delivered envelope %s (topic=%s, attempt=%d)", env.ID, env.Topic, env.Attempt)
		return
	}

	retryable := true
	statusCode := 0
	var derr *DeliveryError
	if errors.As(err, &derr) {
		retryable = derr.Retryable
		statusCode = derr.StatusCode
	}

	if !retryable {
		p.abandon(ctx, env, model.ReasonPermanentFailure, err, statusCode)
		return
	}

	attempt := env.RecordRetryableFailure(err, statusCode)
	if p.strategy.Exhausted(attempt) {
		p.abandon(ctx, env, model.ReasonAttemptsExhausted, nil, 0)
		return
	}

	if terr := env.MarkRetryScheduled(); terr != nil {
		p.logger.Errorf("Envelope %s could not be scheduled for retry: %v", env.ID, terr)
		return
	}
	delay := p.strategy.Delay(attempt)
	p.metrics.IncRetries()
	p.scheduler.Schedule(env, time.Now().Add(delay))
	p.logger.Warnf("Delivery failed for envelope %s (topic=%s, attempt=%d, next_retry=%v): %v",
		env.ID, env.Topic, attempt, delay, err)
}

// abandon moves an envelope to its terminal Abandoned state and reports the
// dead letter. Failures to report are logged, never propagated; nothing in
// the pipeline may take down the process.
func (p *Pipeline) abandon(ctx context.Context, env *model.Envelope, reason string, err error, statusCode int) {
	if terr := env.MarkAbandoned(reason, err, statusCode); terr != nil {
		p.logger.Errorf("Envelope %s could not be abandoned from state %s: %v", env.ID, env.State, terr)
		return
	}

	p.metrics.IncAbandoned()
	dl := model.NewDeadLetter(env)
	if nerr := p.outcomes.NotifyAbandoned(ctx, dl); nerr != nil {
		p.logger.Errorf("Failed to record dead letter for envelope %s: %v", env.ID, nerr)
	}
	p.logger.Warnf("Abandoned envelope %s (topic=%s, attempts=%d, reason=%s)",
		env.ID, env.Topic, env.Attempt, reason)
}
