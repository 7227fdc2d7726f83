package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case got, ok := <-ch:
		require.True(t, ok, "channel closed")
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return StreamEvent{}
}

func requireQuiet(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := StreamEvent{
		RunID:     "run-1",
		Model:     "m1",
		CaseID:    "c1",
		EventType: EventCaseEvaluated,
		Payload:   map[string]any{"goal_ok": true},
	}
	require.NoError(t, hub.Publish(ctx, event))

	got := receive(t, ch)
	assert.Equal(t, event.RunID, got.RunID)
	assert.Equal(t, event.CaseID, got.CaseID)
	assert.Equal(t, event.EventType, got.EventType)
}

func TestFilterByRunAndModel(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{RunID: "run-1", Model: "m1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "run-1", Model: "m1", EventType: EventCaseEvaluated}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "run-1", Model: "m2", EventType: EventCaseEvaluated}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "run-2", Model: "m1", EventType: EventCaseEvaluated}))

	got := receive(t, ch)
	assert.Equal(t, "m1", got.Model)
	assert.Equal(t, "run-1", got.RunID)
	requireQuiet(t, ch)
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		EventTypes: []string{EventModelFinished, EventRunFinished},
	})
	require.NoError(t, err)
	defer cancel()

	for _, typ := range []string{EventRunStarted, EventModelFinished, EventCaseEvaluated, EventRunFinished} {
		require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: typ}))
	}

	var received []string
	for range 2 {
		received = append(received, receive(t, ch).EventType)
	}
	assert.Equal(t, []string{EventModelFinished, EventRunFinished}, received)
	requireQuiet(t, ch)
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventRunStarted}))

	for _, ch := range []<-chan StreamEvent{ch1, ch2} {
		got := receive(t, ch)
		assert.Equal(t, EventRunStarted, got.EventType)
	}
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	cancel()
	cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventRunStarted}))

	_, ok := <-ch
	assert.False(t, ok, "cancel closes the channel")

	hub.mu.RLock()
	assert.Empty(t, hub.subs)
	hub.mu.RUnlock()
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	// None of these should block.
	for range defaultChannelBuffer + 10 {
		require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventCaseEvaluated}))
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
			continue
		default:
		}
		break
	}
	assert.Equal(t, defaultChannelBuffer, drained)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				_ = hub.Publish(ctx, StreamEvent{RunID: "run-concurrent", EventType: EventCaseEvaluated})
			}
		}()
	}

	// Subscribers come and go while publishers run.
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}

	wg.Wait()
	hub.mu.RLock()
	assert.Empty(t, hub.subs)
	hub.mu.RUnlock()
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventRunStarted})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribeCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
