package model

import (
	"time"
)

// DeadLetter is the record of a message that could not be delivered and was
// abandoned. It denormalizes everything an operator needs for inspection or
// manual replay: the original payload, the derived body that was posted, the
// failure history, and timing.
//
// Records remain wherever the outcome sink put them (log line, SQL table,
// redis stream) until resolved or deleted; the pipeline itself never reads
// them back.
type DeadLetter struct {
	ID         int64  `json:"id"`
	EnvelopeID string `json:"envelopeID" db:"envelope_id"`
	Topic      string `json:"topic" db:"topic"`

	// Payload is the raw message payload as received; Body is the derived
	// JSON document the sink rejected.
	Payload string `json:"payload" db:"payload"`
	Body    string `json:"body" db:"body"`

	// Failure information.
	AttemptCount   int    `json:"attemptCount" db:"attempt_count"`
	LastError      string `json:"lastError" db:"last_error"`
	LastStatusCode int    `json:"lastStatusCode" db:"last_status_code"`
	Reason         string `json:"reason" db:"reason"`

	// Timing information.
	ReceivedAt  time.Time `json:"receivedAt" db:"received_at"`
	AbandonedAt time.Time `json:"abandonedAt" db:"abandoned_at"`

	// Lifecycle.
	IsResolved     bool       `json:"isResolved" db:"is_resolved"`
	ResolvedAt     *time.Time `json:"resolvedAt" db:"resolved_at"`
	ResolutionNote string     `json:"resolutionNote" db:"resolution_note"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for DeadLetter.
func (d DeadLetter) TableName() string {
	return "mqttbridge_dead_letter"
}

// NewDeadLetter builds a dead-letter record from an abandoned envelope.
func NewDeadLetter(e *Envelope) DeadLetter {
	now := time.Now()
	return DeadLetter{
		EnvelopeID:     e.ID,
		Topic:          e.Topic,
		Payload:        string(e.Payload),
		Body:           string(e.Body()),
		AttemptCount:   e.Attempt,
		LastError:      e.LastError,
		LastStatusCode: e.LastStatusCode,
		Reason:         e.Reason,
		ReceivedAt:     e.ReceivedAt,
		AbandonedAt:    now,
		CreatedAt:      now,
	}
}

// Resolve marks the record as handled by an operator, typically after a
// manual replay or after deciding the loss is acceptable.
func (d *DeadLetter) Resolve(note string) {
	now := time.Now()
	d.IsResolved = true
	d.ResolvedAt = &now
	d.ResolutionNote = note
}

// Age returns how long the record has existed.
func (d *DeadLetter) Age() time.Duration {
	return time.Since(d.AbandonedAt)
}

// DeadLetterStats aggregates dead-letter counts for monitoring.
type DeadLetterStats struct {
	TotalItems      int       `json:"totalItems"`
	UnresolvedItems int       `json:"unresolvedItems"`
	ResolvedItems   int       `json:"resolvedItems"`
	LastUpdated     time.Time `json:"lastUpdated"`
}
