package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeadLetter(t *testing.T) {
	receivedAt := time.Now().Add(-time.Minute)
	env := NewEnvelope("data/sensor", []byte(`{"t":1}`), 1, receivedAt)
	require.NoError(t, env.MarkInFlight())
	env.RecordRetryableFailure(errors.New("service unavailable"), 503)
	require.NoError(t, env.MarkAbandoned(ReasonAttemptsExhausted, nil, 0))

	dl := NewDeadLetter(env)

	assert.Equal(t, env.ID, dl.EnvelopeID)
	assert.Equal(t, "data/sensor", dl.Topic)
	assert.Equal(t, `{"t":1}`, dl.Payload)
	assert.Equal(t, string(env.Body()), dl.Body)
	assert.Equal(t, 1, dl.AttemptCount)
	assert.Equal(t, "service unavailable", dl.LastError)
	assert.Equal(t, 503, dl.LastStatusCode)
	assert.Equal(t, ReasonAttemptsExhausted, dl.Reason)
	assert.Equal(t, receivedAt, dl.ReceivedAt)
	assert.False(t, dl.IsResolved)
	assert.WithinDuration(t, time.Now(), dl.AbandonedAt, time.Second)
}

func TestDeadLetter_Resolve(t *testing.T) {
	dl := NewDeadLetter(NewEnvelope("t", []byte("{}"), 0, time.Now()))

	dl.Resolve("replayed manually")

	assert.True(t, dl.IsResolved)
	require.NotNil(t, dl.ResolvedAt)
	assert.Equal(t, "replayed manually", dl.ResolutionNote)
}

func TestDeadLetter_TableName(t *testing.T) {
	assert.Equal(t, "mqttbridge_dead_letter", DeadLetter{}.TableName())
}
