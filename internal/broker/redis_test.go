package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/npezzotti/go-chatrelay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisBroker(t *testing.T) *RedisBroker {
	t.Helper()

	mr := miniredis.RunT(t)
	b, err := NewRedisBroker(context.Background(), RedisConfig{
		Addr:  mr.Addr(),
		Block: 50 * time.Millisecond,
	}, testutil.TestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return b
}

func pendingCount(t *testing.T, b *RedisBroker) int64 {
	t.Helper()

	pending, err := b.rdb.XPending(context.Background(), b.cfg.Stream, b.cfg.Group).Result()
	require.NoError(t, err)
	return pending.Count
}

func assertNoDelivery(t *testing.T, ch <-chan *Message, wait time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if ok {
			t.Fatalf("unexpected delivery on %q: %s", msg.Topic, msg.Payload)
		}
	case <-time.After(wait):
	}
}

func TestRedisBroker(t *testing.T) {
	t.Run("delivers in publish order", func(t *testing.T) {
		b := newTestRedisBroker(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := b.Subscribe(ctx, RoomPattern)
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, RoomTopic(1), []byte("first")))
		require.NoError(t, b.Publish(ctx, RoomTopic(2), []byte("second")))

		first := receive(t, ch)
		assert.Equal(t, "room.1.message", first.Topic)
		assert.Equal(t, []byte("first"), first.Payload)
		require.NoError(t, first.Ack())

		second := receive(t, ch)
		assert.Equal(t, "room.2.message", second.Topic)
		assert.Equal(t, []byte("second"), second.Payload)
		require.NoError(t, second.Ack())
	})

	t.Run("skips and acks unmatched topics", func(t *testing.T) {
		b := newTestRedisBroker(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := b.Subscribe(ctx, RoomPattern)
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, "presence.1", []byte("ignored")))
		require.NoError(t, b.Publish(ctx, RoomTopic(1), []byte("kept")))

		msg := receive(t, ch)
		assert.Equal(t, []byte("kept"), msg.Payload)
		require.NoError(t, msg.Ack())

		assertNoDelivery(t, ch, 100*time.Millisecond)
		assert.Zero(t, pendingCount(t, b), "expected unmatched entry to be acked")
	})

	t.Run("nak redelivers before later messages", func(t *testing.T) {
		b := newTestRedisBroker(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := b.Subscribe(ctx, RoomPattern)
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, RoomTopic(1), []byte("a")))
		require.NoError(t, b.Publish(ctx, RoomTopic(1), []byte("b")))

		msg := receive(t, ch)
		assert.Equal(t, []byte("a"), msg.Payload)
		require.NoError(t, msg.Nak())

		again := receive(t, ch)
		assert.Equal(t, []byte("a"), again.Payload, "expected nak'd message to be redelivered first")
		require.NoError(t, again.Ack())

		next := receive(t, ch)
		assert.Equal(t, []byte("b"), next.Payload)
		require.NoError(t, next.Ack())
	})

	t.Run("acked message is not redelivered", func(t *testing.T) {
		b := newTestRedisBroker(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := b.Subscribe(ctx, RoomPattern)
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, RoomTopic(1), []byte("once")))

		// the nak puts the reader in backlog mode, where it re-reads the
		// pending list right after the ack
		msg := receive(t, ch)
		require.NoError(t, msg.Nak())

		again := receive(t, ch)
		assert.Equal(t, []byte("once"), again.Payload)
		require.NoError(t, again.Ack())

		assertNoDelivery(t, ch, 300*time.Millisecond)
		assert.Zero(t, pendingCount(t, b), "expected pending list to be empty after ack")
	})

	t.Run("unacked message survives resubscribe", func(t *testing.T) {
		b := newTestRedisBroker(t)

		ctx, cancel := context.WithCancel(context.Background())
		ch, err := b.Subscribe(ctx, RoomPattern)
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, RoomTopic(3), []byte("unsettled")))
		first := receive(t, ch)
		assert.Equal(t, []byte("unsettled"), first.Payload)

		cancel()
		for range ch {
		}

		ctx2, cancel2 := context.WithCancel(context.Background())
		defer cancel2()

		ch2, err := b.Subscribe(ctx2, RoomPattern)
		require.NoError(t, err)

		again := receive(t, ch2)
		assert.Equal(t, "room.3.message", again.Topic)
		assert.Equal(t, []byte("unsettled"), again.Payload)
		require.NoError(t, again.Ack())

		assertNoDelivery(t, ch2, 200*time.Millisecond)
	})
}
