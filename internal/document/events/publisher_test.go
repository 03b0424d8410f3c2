package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/document/models"
)

func event(to models.State) models.LifecycleEvent {
	return models.LifecycleEvent{
		DocumentID: uuid.New(),
		Path:       "docs/prd.md",
		Type:       "requirements-doc",
		From:       models.StateDraft,
		To:         to,
		Actor:      "alice",
		At:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_SyncMode(t *testing.T) {
	sink := &MemorySink{}
	m := NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(sink, WithMetrics(m))
	defer pub.Close()

	require.NoError(t, pub.Publish(context.Background(), event(models.StateActive)))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.StateActive, events[0].To)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Published))
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	sink := &MemorySink{}
	pub := NewPublisher(sink, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Publish(context.Background(), event(models.StateObsolete)))
	}
	pub.Close()

	assert.Len(t, sink.Events(), 10)
	assert.ErrorIs(t, pub.Publish(context.Background(), event(models.StateActive)), ErrClosed)
	pub.Close()
}

func TestPublisher_CircuitOpensAfterFailures(t *testing.T) {
	sink := &MemorySink{Fail: errors.New("broker unavailable")}
	m := NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(sink, WithMetrics(m), WithCircuitBreaker(NewCircuitBreaker(2, time.Hour)))
	defer pub.Close()

	ctx := context.Background()
	assert.Error(t, pub.Publish(ctx, event(models.StateActive)))
	assert.Error(t, pub.Publish(ctx, event(models.StateActive)))
	assert.ErrorIs(t, pub.Publish(ctx, event(models.StateActive)), ErrCircuitOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Failures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("circuit_open")))
}

func TestCircuitBreaker_HalfOpensAfterCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	assert.True(t, cb.RecordFailure())
	assert.False(t, cb.Allow())
	assert.Equal(t, BreakerOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, BreakerHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one trial while half-open")

	cb.RecordSuccess()
	assert.Equal(t, BreakerClosed, cb.State())
	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, time.Minute)
	cb.now = func() time.Time { return now }

	for range 3 {
		cb.RecordFailure()
	}
	now = now.Add(time.Minute)
	require.True(t, cb.Allow())

	assert.True(t, cb.RecordFailure(), "a failed trial opens without counting to the threshold")
	assert.Equal(t, BreakerOpen, cb.State())

	now = now.Add(30 * time.Second)
	assert.False(t, cb.Allow(), "cooldown restarts from the failed trial")
}

func TestPublisher_ReportsCircuitState(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	sink := &MemorySink{Fail: errors.New("broker unavailable")}
	m := NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(sink, WithMetrics(m), WithCircuitBreaker(cb))
	defer pub.Close()
	ctx := context.Background()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitState))

	assert.Error(t, pub.Publish(ctx, event(models.StateActive)))
	assert.Equal(t, float64(BreakerOpen), testutil.ToFloat64(m.CircuitState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitTrips))

	now = now.Add(2 * time.Minute)
	assert.Error(t, pub.Publish(ctx, event(models.StateActive)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitTrips), "failed trial trips again")

	sink.Fail = nil
	now = now.Add(2 * time.Minute)
	require.NoError(t, pub.Publish(ctx, event(models.StateActive)))
	assert.Equal(t, float64(BreakerClosed), testutil.ToFloat64(m.CircuitState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Published))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Write(context.Background(), event(models.StateArchived)))
	assert.Contains(t, buf.String(), `"to":"archived"`)
	assert.Contains(t, buf.String(), `"actor":"alice"`)
}
