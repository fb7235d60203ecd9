package mqttbridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/mqttbridge/model"
)

func TestRetryScheduler_DispatchesInDueOrder(t *testing.T) {
	s := newRetryScheduler(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.run(ctx)

	now := time.Now()
	late := newEnvelope("t", "late")
	early := newEnvelope("t", "early")
	s.Schedule(late, now.Add(80*time.Millisecond))
	s.Schedule(early, now.Add(20*time.Millisecond))

	var got []*model.Envelope
	for i := 0; i < 2; i++ {
		select {
		case env := <-s.Due():
			got = append(got, env)
		case <-time.After(time.Second):
			t.Fatal("scheduled envelope never became due")
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, "early", string(got[0].Payload))
	assert.Equal(t, "late", string(got[1].Payload))
}

func TestRetryScheduler_EarlierInsertPreemptsWait(t *testing.T) {
	s := newRetryScheduler(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.run(ctx)

	// The run loop is already waiting on a distant deadline; an earlier
	// insert must wake it rather than wait the full hour.
	s.Schedule(newEnvelope("t", "distant"), time.Now().Add(time.Hour))
	time.Sleep(20 * time.Millisecond)
	s.Schedule(newEnvelope("t", "soon"), time.Now().Add(10*time.Millisecond))

	select {
	case env := <-s.Due():
		assert.Equal(t, "soon", string(env.Payload))
	case <-time.After(time.Second):
		t.Fatal("earlier insert did not preempt the pending wait")
	}
	assert.Equal(t, 1, s.Pending())
}

func TestRetryScheduler_Pending(t *testing.T) {
	s := newRetryScheduler(1)
	assert.Equal(t, 0, s.Pending())

	s.Schedule(newEnvelope("t", "a"), time.Now().Add(time.Hour))
	s.Schedule(newEnvelope("t", "b"), time.Now().Add(time.Hour))
	assert.Equal(t, 2, s.Pending())
}

func TestRetryScheduler_DrainReturnsEverything(t *testing.T) {
	s := newRetryScheduler(2)

	now := time.Now()
	s.Schedule(newEnvelope("t", "second"), now.Add(2*time.Hour))
	s.Schedule(newEnvelope("t", "first"), now.Add(time.Hour))

	drained := s.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "first", string(drained[0].Payload))
	assert.Equal(t, "second", string(drained[1].Payload))
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, s.Drain())
}

func TestRetryScheduler_DrainIncludesUndeliveredDue(t *testing.T) {
	s := newRetryScheduler(1)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.run(ctx)
		close(stopped)
	}()

	// Already due: the run loop moves it onto the due channel, but no worker
	// ever picks it up.
	s.Schedule(newEnvelope("t", "orphan"), time.Now().Add(-time.Second))
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-stopped

	drained := s.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, "orphan", string(drained[0].Payload))
}
