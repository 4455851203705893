package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

const (
	indexerCursor       = "engine_events_indexer"
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// EventIndexer copies the durable event stream into the event store. It
// resumes from the cursor saved after each batch, so an event may be indexed
// twice after a crash but never skipped.
type EventIndexer struct {
	bus      domain.SignalBus
	store    domain.EventStore
	cursors  domain.CursorStore
	batch    int
	interval time.Duration
	logger   *slog.Logger

	cursor string
}

// NewEventIndexer creates an EventIndexer. Zero batch or interval use the
// defaults.
func NewEventIndexer(bus domain.SignalBus, store domain.EventStore, cursors domain.CursorStore, batch int, interval time.Duration, logger *slog.Logger) *EventIndexer {
	if batch <= 0 {
		batch = defaultBatchSize
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &EventIndexer{
		bus:      bus,
		store:    store,
		cursors:  cursors,
		batch:    batch,
		interval: interval,
		logger:   logger.With(slog.String("component", "event_indexer")),
	}
}

// Run polls the stream until ctx is cancelled.
func (x *EventIndexer) Run(ctx context.Context) error {
	cursor, err := x.cursors.Load(ctx, indexerCursor)
	if err != nil {
		return fmt.Errorf("event_indexer: %w", err)
	}
	x.cursor = cursor
	x.logger.InfoContext(ctx, "event indexer started", slog.String("cursor", cursor))

	ticker := time.NewTicker(x.interval)
	defer ticker.Stop()

	for {
		for {
			n, err := x.IndexOnce(ctx)
			if err != nil {
				x.logger.WarnContext(ctx, "index batch failed", slog.String("error", err.Error()))
				break
			}
			if n < x.batch {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// IndexOnce reads one batch after the cursor, stores it and advances the
// cursor. It returns the number of stream entries consumed.
func (x *EventIndexer) IndexOnce(ctx context.Context) (int, error) {
	if x.cursor == "" {
		x.cursor = "0"
	}
	msgs, err := x.bus.StreamRead(ctx, EventStream, x.cursor, x.batch)
	if err != nil {
		return 0, fmt.Errorf("event_indexer: read: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	for _, msg := range msgs {
		var ev domain.Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			x.logger.WarnContext(ctx, "skipping malformed stream entry",
				slog.String("id", msg.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := x.store.Append(ctx, ev); err != nil {
			return 0, fmt.Errorf("event_indexer: append %s: %w", msg.ID, err)
		}
	}

	last := msgs[len(msgs)-1].ID
	if err := x.cursors.Save(ctx, indexerCursor, last); err != nil {
		return 0, fmt.Errorf("event_indexer: save cursor: %w", err)
	}
	x.cursor = last
	return len(msgs), nil
}
