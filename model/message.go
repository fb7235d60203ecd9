package model

import "time"

// InboundMessage is the event shape consumed from the subscription
// collaborator: one raw message as delivered by the broker client. The
// payload is treated as opaque bytes until body derivation.
type InboundMessage struct {
	Topic      string    `json:"topic"`
	Payload    []byte    `json:"payload"`
	QoS        byte      `json:"qos"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Envelope normalizes the message into a pipeline Envelope. A zero
// ReceivedAt is replaced with the current time.
func (m InboundMessage) Envelope() *Envelope {
	receivedAt := m.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return NewEnvelope(m.Topic, m.Payload, m.QoS, receivedAt)
}
