package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/mqttbridge/model"
)

// recordingLogger captures formatted log lines for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debugf(format string, args ...interface{}) { l.logf(format, args...) }
func (l *recordingLogger) Infof(format string, args ...interface{})  { l.logf(format, args...) }
func (l *recordingLogger) Warnf(format string, args ...interface{})  { l.logf(format, args...) }
func (l *recordingLogger) Errorf(format string, args ...interface{}) { l.logf(format, args...) }
func (l *recordingLogger) Info(msg string)                           { l.logf("%s", msg) }

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestLoggingOutcomeSink(t *testing.T) {
	log := &recordingLogger{}
	sink := NewLoggingOutcomeSink(log)
	ctx := context.Background()

	env := newEnvelope("data/sensor", `{"t":1}`)
	require.NoError(t, sink.NotifyDelivered(ctx, env))
	assert.True(t, log.contains(env.ID))
	assert.True(t, log.contains("data/sensor"))

	require.NoError(t, env.MarkInFlight())
	env.RecordRetryableFailure(errors.New("overloaded"), 503)
	require.NoError(t, env.MarkAbandoned(model.ReasonAttemptsExhausted, nil, 0))
	dl := model.NewDeadLetter(env)
	require.NoError(t, sink.NotifyAbandoned(ctx, dl))
	assert.True(t, log.contains(model.ReasonAttemptsExhausted))

	pending := newEnvelope("data/sensor", `{"t":2}`)
	require.NoError(t, sink.NotifyRetryPending(ctx, pending))
	assert.True(t, log.contains(pending.ID))
}

func TestNoOpOutcomeSink(t *testing.T) {
	sink := &NoOpOutcomeSink{}
	ctx := context.Background()

	assert.NoError(t, sink.NotifyDelivered(ctx, newEnvelope("t", "{}")))
	assert.NoError(t, sink.NotifyAbandoned(ctx, model.DeadLetter{}))
	assert.NoError(t, sink.NotifyRetryPending(ctx, newEnvelope("t", "{}")))
}

// failingRepo simulates a dead-letter store outage.
type failingRepo struct{}

func (f *failingRepo) Save(_ context.Context, _ model.DeadLetter) (model.DeadLetter, error) {
	return model.DeadLetter{}, errors.New("connection refused")
}

func (f *failingRepo) FindUnresolved(_ context.Context, _ int) ([]model.DeadLetter, error) {
	return nil, errors.New("connection refused")
}

func (f *failingRepo) Resolve(_ context.Context, _ int64, _ string) error {
	return errors.New("connection refused")
}

func (f *failingRepo) Stats(_ context.Context) (model.DeadLetterStats, error) {
	return model.DeadLetterStats{}, errors.New("connection refused")
}

// memoryRepo is an in-memory DeadLetterRepository for tests.
type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]model.DeadLetter
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]model.DeadLetter)}
}

func (m *memoryRepo) Save(_ context.Context, dl model.DeadLetter) (model.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dl.ID == 0 {
		m.nextID++
		dl.ID = m.nextID
	}
	m.items[dl.ID] = dl
	return dl, nil
}

func (m *memoryRepo) FindUnresolved(_ context.Context, limit int) ([]model.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DeadLetter
	for id := int64(1); id <= m.nextID && len(out) < limit; id++ {
		if dl, ok := m.items[id]; ok && !dl.IsResolved {
			out = append(out, dl)
		}
	}
	return out, nil
}

func (m *memoryRepo) Resolve(_ context.Context, id int64, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.items[id]
	if !ok {
		return NewError(ErrCodeStorage, "dead letter not found")
	}
	dl.Resolve(note)
	m.items[id] = dl
	return nil
}

func (m *memoryRepo) Stats(_ context.Context) (model.DeadLetterStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := model.DeadLetterStats{LastUpdated: time.Now()}
	for _, dl := range m.items {
		stats.TotalItems++
		if dl.IsResolved {
			stats.ResolvedItems++
		} else {
			stats.UnresolvedItems++
		}
	}
	return stats, nil
}

func abandonedEnvelope(t *testing.T) *model.Envelope {
	t.Helper()
	env := newEnvelope("data/sensor", `{"t":1}`)
	require.NoError(t, env.MarkInFlight())
	env.RecordRetryableFailure(errors.New("overloaded"), 503)
	require.NoError(t, env.MarkAbandoned(model.ReasonAttemptsExhausted, nil, 0))
	return env
}

func TestStoreOutcomeSink_PersistsAbandonments(t *testing.T) {
	repo := newMemoryRepo()
	sink := NewStoreOutcomeSink(repo, &NoopLogger{})
	ctx := context.Background()

	env := abandonedEnvelope(t)
	dl := model.NewDeadLetter(env)
	require.NoError(t, sink.NotifyAbandoned(ctx, dl))

	stored, err := repo.FindUnresolved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, env.ID, stored[0].EnvelopeID)
	assert.Equal(t, 503, stored[0].LastStatusCode)
	assert.Equal(t, model.ReasonAttemptsExhausted, stored[0].Reason)
}

func TestStoreOutcomeSink_StoreFailureIsReported(t *testing.T) {
	sink := NewStoreOutcomeSink(&failingRepo{}, &NoopLogger{})

	dl := model.NewDeadLetter(abandonedEnvelope(t))
	err := sink.NotifyAbandoned(context.Background(), dl)
	require.Error(t, err)

	var bridgeErr *Error
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, ErrCodeStorage, bridgeErr.Code)
}

func TestStoreOutcomeSink_OtherOutcomesAreNoOps(t *testing.T) {
	sink := NewStoreOutcomeSink(&failingRepo{}, &NoopLogger{})
	ctx := context.Background()

	assert.NoError(t, sink.NotifyDelivered(ctx, newEnvelope("t", "{}")))
	assert.NoError(t, sink.NotifyRetryPending(ctx, newEnvelope("t", "{}")))
}
