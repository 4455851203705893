package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

func TestSignalBusPatternSubscribe(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewSignalBus(0)
	all, err := bus.Subscribe(ctx, "ch:*")
	require.NoError(err)
	one, err := bus.Subscribe(ctx, "ch:bet_placed")
	require.NoError(err)

	require.NoError(bus.Publish(ctx, "ch:window_started", []byte("a")))
	require.NoError(bus.Publish(ctx, "ch:bet_placed", []byte("b")))

	require.Equal([]byte("a"), <-all)
	require.Equal([]byte("b"), <-all)
	require.Equal([]byte("b"), <-one)
	require.Empty(one)
}

func TestSignalBusSubscriptionClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewSignalBus(0)
	ch, err := bus.Subscribe(ctx, "ch:x")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestSignalBusStream(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	bus := NewSignalBus(3)

	for _, p := range []string{"1", "2", "3", "4"} {
		require.NoError(bus.StreamAppend(ctx, "events", []byte(p)))
	}

	msgs, err := bus.StreamRead(ctx, "events", "0", 10)
	require.NoError(err)
	require.Len(msgs, 3)
	require.Equal("2", msgs[0].ID)
	require.Equal([]byte("4"), msgs[2].Payload)

	msgs, err = bus.StreamRead(ctx, "events", "3", 10)
	require.NoError(err)
	require.Len(msgs, 1)
	require.Equal("4", msgs[0].ID)

	msgs, err = bus.StreamRead(ctx, "events", "0", 2)
	require.NoError(err)
	require.Len(msgs, 2)

	msgs, err = bus.StreamRead(ctx, "missing", "0", 10)
	require.NoError(err)
	require.Empty(msgs)

	_, err = bus.StreamRead(ctx, "events", "x-1", 10)
	require.Error(err)
}

func TestLockManagerSerializes(t *testing.T) {
	require := require.New(t)
	lm := NewLockManager()

	unlock, err := lm.Acquire(context.Background(), "k", time.Second)
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lm.Acquire(ctx, "k", time.Second)
	require.True(errors.Is(err, domain.ErrLockHeld))
	require.True(errors.Is(err, context.DeadlineExceeded))

	other, err := lm.Acquire(context.Background(), "other", time.Second)
	require.NoError(err)
	other()

	unlock()
	unlock()
	again, err := lm.Acquire(context.Background(), "k", time.Second)
	require.NoError(err)
	again()
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	now := time.Unix(1_000, 0)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "relay:1.2.3.4", 2, time.Minute)
		require.NoError(err)
		require.True(ok)
	}
	ok, err := rl.Allow(ctx, "relay:1.2.3.4", 2, time.Minute)
	require.NoError(err)
	require.False(ok)

	ok, err = rl.Allow(ctx, "relay:5.6.7.8", 2, time.Minute)
	require.NoError(err)
	require.True(ok)

	now = now.Add(61 * time.Second)
	ok, err = rl.Allow(ctx, "relay:1.2.3.4", 2, time.Minute)
	require.NoError(err)
	require.True(ok)
}

func TestRateLimiterForgetsIdleKeys(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	now := time.Unix(1_000, 0)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		ok, err := rl.Allow(ctx, "relay:"+ip, 5, time.Minute)
		require.NoError(err)
		require.True(ok)
	}
	require.Equal(3, rl.Len())

	now = now.Add(2 * time.Minute)
	ok, err := rl.Allow(ctx, "relay:10.0.0.9", 5, time.Minute)
	require.NoError(err)
	require.True(ok)
	require.Equal(1, rl.Len())

	ok, err = rl.Allow(ctx, "relay:10.0.0.4", 0, time.Minute)
	require.NoError(err)
	require.False(ok)
	require.Equal(1, rl.Len())
}
