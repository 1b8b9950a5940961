package realtime

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"warelay/internal/domain"
)

func pull(t *testing.T, b *Broadcaster, ctx context.Context, channel string) (func() (string, bool), func()) {
	t.Helper()
	next, stop := iter.Pull(b.Subscribe(ctx, channel))
	first, ok := next()
	require.True(t, ok)
	require.Equal(t, RetryFrame, first)
	t.Cleanup(stop)
	return next, stop
}

func decodeFrame(t *testing.T, frame string) Event {
	t.Helper()
	require.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
	require.True(t, strings.HasSuffix(frame, "\n\n"))
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")), &ev))
	return ev
}

func TestChannelKey(t *testing.T) {
	require.Equal(t, "123|5511999", ChannelKey("123", "5511999"))
}

func TestSubscribeRegistersLazily(t *testing.T) {
	b := New()
	seq := b.Subscribe(context.Background(), "T|P")
	require.Equal(t, 0, b.SubscriberCount("T|P"))

	next, stop := iter.Pull(seq)
	_, ok := next()
	require.True(t, ok)
	require.Equal(t, 1, b.SubscriberCount("T|P"))

	stop()
	require.Equal(t, 0, b.SubscriberCount("T|P"))
}

func TestPublishIsolatedPerChannel(t *testing.T) {
	b := New()
	b.Heartbeat = 50 * time.Millisecond
	ctx := context.Background()

	nextP, _ := pull(t, b, ctx, ChannelKey("T", "P"))
	nextQ, _ := pull(t, b, ctx, ChannelKey("T", "Q"))

	b.Publish(ChannelKey("T", "P"), Event{Type: TypeMessage, Direction: domain.DirectionOutbound, Text: "hi", CreatedAt: "2026-01-01T00:00:00.000Z"})

	frame, ok := nextP()
	require.True(t, ok)
	ev := decodeFrame(t, frame)
	require.Equal(t, TypeMessage, ev.Type)
	require.Equal(t, "hi", ev.Text)

	frame, ok = nextQ()
	require.True(t, ok)
	require.Equal(t, PingFrame, frame, "other channel must only see heartbeats")
}

func TestPublishFansOutInOrder(t *testing.T) {
	b := New()
	ctx := context.Background()
	next1, _ := pull(t, b, ctx, "T|P")
	next2, _ := pull(t, b, ctx, "T|P")

	for _, txt := range []string{"1", "2", "3"} {
		b.Publish("T|P", Event{Type: TypeMessage, Text: txt})
	}
	for _, next := range []func() (string, bool){next1, next2} {
		for _, want := range []string{"1", "2", "3"} {
			frame, ok := next()
			require.True(t, ok)
			require.Equal(t, want, decodeFrame(t, frame).Text)
		}
	}
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	b := New()
	b.QueueSize = 2
	b.Heartbeat = 50 * time.Millisecond
	next, _ := pull(t, b, context.Background(), "T|P")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish("T|P", Event{Type: TypeStatus, Status: domain.StatusRead, ExternalMsgID: string(rune('a' + i))})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}

	for _, want := range []string{"a", "b"} {
		frame, ok := next()
		require.True(t, ok)
		require.Equal(t, want, decodeFrame(t, frame).ExternalMsgID)
	}
	frame, ok := next()
	require.True(t, ok)
	require.Equal(t, PingFrame, frame)
}

func TestNoBackfill(t *testing.T) {
	b := New()
	b.Heartbeat = 50 * time.Millisecond
	b.Publish("T|P", Event{Type: TypeMessage, Text: "early"})

	next, _ := pull(t, b, context.Background(), "T|P")
	frame, ok := next()
	require.True(t, ok)
	require.Equal(t, PingFrame, frame)
}

func TestContextCancelEndsStream(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	next, _ := pull(t, b, ctx, "T|P")
	require.Equal(t, 1, b.SubscriberCount("T|P"))

	cancel()
	_, ok := next()
	require.False(t, ok)
	require.Equal(t, 0, b.SubscriberCount("T|P"))
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New()
	b.Publish("nobody|here", Event{Type: TypeMessage})
	require.Equal(t, 0, b.SubscriberCount("nobody|here"))
}
