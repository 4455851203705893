package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/npanium/zkLeaderboard/internal/cache/memory"
	"github.com/npanium/zkLeaderboard/internal/domain"
)

func TestDispatcherFansOut(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewSignalBus(0)
	live, err := bus.Subscribe(ctx, "ch:*")
	require.NoError(err)

	store := &fakeEventStore{}
	notifier := &fakeNotifier{}
	d := NewDispatcher(DispatcherConfig{Bus: bus, Store: store, Notifier: notifier, Logger: discardLogger()})
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Emit(ctx, domain.Event{Type: domain.EventWindowStarted, Round: 1, Candidates: []domain.Address{cand1}})
	d.Emit(ctx, domain.Event{Type: domain.EventBetPlaced, Round: 1, Amount: uint256.NewInt(900)})

	var got []domain.Event
	for len(got) < 2 {
		select {
		case payload := <-live:
			var ev domain.Event
			require.NoError(json.Unmarshal(payload, &ev))
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for published events")
		}
	}
	require.Equal(domain.EventWindowStarted, got[0].Type)
	require.Equal(domain.EventBetPlaced, got[1].Type)
	require.Equal(uint64(900), got[1].Amount.Uint64())

	cancel()
	require.ErrorIs(<-done, context.Canceled)

	require.Equal(2, store.len())
	require.Equal([]domain.EventType{domain.EventWindowStarted, domain.EventBetPlaced}, notifier.types)

	msgs, err := bus.StreamRead(context.Background(), EventStream, "0", 10)
	require.NoError(err)
	require.Len(msgs, 2)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{QueueSize: 1, Logger: discardLogger()})
	d.Emit(context.Background(), domain.Event{Type: domain.EventWindowClosed})
	d.Emit(context.Background(), domain.Event{Type: domain.EventWindowClosed})
	require.Equal(t, int64(1), d.Dropped())
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	require := require.New(t)
	store := &fakeEventStore{}
	d := NewDispatcher(DispatcherConfig{Store: store, Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	d.Emit(ctx, domain.Event{Type: domain.EventWindowClosed, Round: 4})
	d.Emit(ctx, domain.Event{Type: domain.EventSettlementClosed, Round: 4})
	cancel()

	require.ErrorIs(d.Run(ctx), context.Canceled)
	require.Equal(2, store.len())
}

func TestDispatcherSurvivesStoreErrors(t *testing.T) {
	store := &fakeEventStore{err: errors.New("db down")}
	notifier := &fakeNotifier{}
	d := NewDispatcher(DispatcherConfig{Store: store, Notifier: notifier, Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	d.Emit(ctx, domain.Event{Type: domain.EventPayoutFailed})
	cancel()
	_ = d.Run(ctx)

	require.Equal(t, []domain.EventType{domain.EventPayoutFailed}, notifier.types)
}

func TestEventIndexerResumesFromCursor(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	bus := memory.NewSignalBus(0)

	for round := uint64(1); round <= 3; round++ {
		payload, err := json.Marshal(domain.Event{Type: domain.EventWindowStarted, Round: round})
		require.NoError(err)
		require.NoError(bus.StreamAppend(ctx, EventStream, payload))
	}
	require.NoError(bus.StreamAppend(ctx, EventStream, []byte("not json")))

	store := &fakeEventStore{}
	cursors := &fakeCursors{}
	x := NewEventIndexer(bus, store, cursors, 2, time.Millisecond, discardLogger())

	n, err := x.IndexOnce(ctx)
	require.NoError(err)
	require.Equal(2, n)
	require.Equal("2", cursors.saved[indexerCursor])

	n, err = x.IndexOnce(ctx)
	require.NoError(err)
	require.Equal(2, n)
	require.Equal(3, store.len())
	require.Equal("4", cursors.saved[indexerCursor])

	n, err = x.IndexOnce(ctx)
	require.NoError(err)
	require.Zero(n)

	// A fresh indexer picks up where the saved cursor points.
	payload, err := json.Marshal(domain.Event{Type: domain.EventWindowClosed, Round: 3})
	require.NoError(err)
	require.NoError(bus.StreamAppend(ctx, EventStream, payload))

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	fresh := NewEventIndexer(bus, store, cursors, 2, time.Millisecond, discardLogger())
	require.ErrorIs(fresh.Run(runCtx), context.DeadlineExceeded)
	require.Equal(4, store.len())

	events, err := store.ListByRound(ctx, 3)
	require.NoError(err)
	require.Len(events, 2)
}

func TestEventIndexerKeepsCursorOnStoreError(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	bus := memory.NewSignalBus(0)
	require.NoError(bus.StreamAppend(ctx, EventStream, []byte(`{"type":"window_closed","round":1}`)))

	cursors := &fakeCursors{}
	x := NewEventIndexer(bus, &fakeEventStore{err: errors.New("db down")}, cursors, 10, time.Millisecond, discardLogger())
	_, err := x.IndexOnce(ctx)
	require.Error(err)
	require.Empty(cursors.saved)
}
