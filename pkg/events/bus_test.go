package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent(service, eventType, externalID string) Event {
	return Event{
		ID:         uuid.New(),
		Service:    service,
		Type:       eventType,
		ExternalID: externalID,
		Payload:    json.RawMessage(`{}`),
		ReceivedAt: time.Now(),
	}
}

func TestPublishReachesTopicAndWildcardSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var topicCount, allCount atomic.Int64
	bus.Subscribe(TopicEvents("github"), "reconciler", func(ctx context.Context, e Event) error {
		topicCount.Add(1)
		return nil
	})
	bus.Subscribe(TopicAll, "classifier", func(ctx context.Context, e Event) error {
		allCount.Add(1)
		return nil
	})
	bus.Subscribe(TopicEvents("slack"), "other", func(ctx context.Context, e Event) error {
		t.Error("slack subscriber must not receive github events")
		return nil
	})

	bus.Publish(context.Background(), TopicEvents("github"), testEvent("github", "pull_request", "d1"))
	require.NoError(t, bus.Drain(context.Background()))

	require.EqualValues(t, 1, topicCount.Load())
	require.EqualValues(t, 1, allCount.Load())
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())

	release := make(chan struct{})
	bus.Subscribe(TopicAll, "slow", func(ctx context.Context, e Event) error {
		<-release
		return nil
	})

	start := time.Now()
	bus.Publish(context.Background(), TopicEvents("github"), testEvent("github", "push", "d2"))
	require.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	require.NoError(t, bus.Drain(context.Background()))
}

func TestRedeliveryOnHandlerFailure(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.redeliveryDelay = time.Millisecond

	var calls atomic.Int64
	bus.Subscribe(TopicAll, "flaky", func(ctx context.Context, e Event) error {
		if calls.Add(1) == 1 {
			return errors.New("transient failure")
		}
		return nil
	})

	bus.Publish(context.Background(), TopicEvents("github"), testEvent("github", "push", "d3"))
	require.NoError(t, bus.Drain(context.Background()))

	require.EqualValues(t, 2, calls.Load())
}

func TestRedeliveryGivesUpAfterMaxAttempts(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.redeliveryDelay = time.Millisecond

	var calls atomic.Int64
	bus.Subscribe(TopicAll, "broken", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return errors.New("permanent failure")
	})

	bus.Publish(context.Background(), TopicEvents("github"), testEvent("github", "push", "d4"))
	require.NoError(t, bus.Drain(context.Background()))

	require.EqualValues(t, int64(bus.maxRedeliveries)+1, calls.Load())
}

func TestDrainWaitsForInFlightHandlers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var mu sync.Mutex
	handled := false
	bus.Subscribe(TopicAll, "slow", func(ctx context.Context, e Event) error {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		handled = true
		mu.Unlock()
		return nil
	})

	bus.Publish(context.Background(), TopicEvents("github"), testEvent("github", "push", "d5"))
	require.NoError(t, bus.Drain(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.True(t, handled)
}

func TestDrainHonorsContextDeadline(t *testing.T) {
	bus := NewBus(zap.NewNop())

	release := make(chan struct{})
	defer close(release)
	bus.Subscribe(TopicAll, "stuck", func(ctx context.Context, e Event) error {
		<-release
		return nil
	})

	bus.Publish(context.Background(), TopicEvents("github"), testEvent("github", "push", "d6"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, bus.Drain(ctx), context.DeadlineExceeded)
}
