package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/events"
)

func TestSubscribe_Filtering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, testConfig())

	ch := h.e.Subscribe(ctx, events.Filter{EntityType: events.EntityThread})

	h.registerAgent(t)
	id := h.createThread(t, "x")

	select {
	case ev := <-ch:
		require.Equal(t, events.KindThreadCreated, ev.Payload.Kind())
		require.Equal(t, string(id), ev.Payload.EntityID)
	case <-time.After(time.Second):
		require.Fail(t, "timeout waiting for thread event")
	}

	select {
	case ev := <-ch:
		require.Failf(t, "unexpected event", "%s", ev.Payload.Kind())
	default:
	}
}

func TestSubscribe_SlowConsumerIsDisconnected(t *testing.T) {
	cfg := testConfig()
	cfg.SubscriberBuffer = 1
	h := newHarness(t, cfg)

	ch := h.e.Subscribe(context.Background(), events.Filter{})
	first := h.createThread(t, "a")
	h.createThread(t, "b")
	h.createThread(t, "c")

	ev, ok := <-ch
	require.True(t, ok, "events before disconnection are delivered")
	require.Equal(t, string(first), ev.Payload.EntityID)

	_, ok = <-ch
	require.False(t, ok, "channel closes instead of skipping events")
}

func TestSubscribeSince_NoGap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, testConfig())

	a := h.createThread(t, "a")
	b := h.createThread(t, "b")

	filter := events.Filter{Kinds: []events.Kind{events.KindThreadCreated}}
	backlog, ch := h.e.SubscribeSince(ctx, filter, 0)
	require.Len(t, backlog, 2)
	require.Equal(t, string(a), backlog[0].EntityID)
	require.Equal(t, string(b), backlog[1].EntityID)

	c := h.createThread(t, "c")
	select {
	case ev := <-ch:
		require.Equal(t, string(c), ev.Payload.EntityID)
		require.Equal(t, backlog[1].Sequence+1, ev.Payload.Sequence)
	case <-time.After(time.Second):
		require.Fail(t, "timeout waiting for live event")
	}

	backlog, _ = h.e.SubscribeSince(ctx, filter, h.e.Head())
	require.Empty(t, backlog)
}

func TestSubscribe_ClosedOnEngineClose(t *testing.T) {
	h := newHarness(t, testConfig())
	ch := h.e.Subscribe(context.Background(), events.Filter{})
	require.NoError(t, h.e.Close())

	_, ok := <-ch
	require.False(t, ok)

	_, err := h.e.Execute(context.Background(), command.NewResumeSystemCommand(command.SourceHuman))
	require.ErrorIs(t, err, ErrClosed)
}
