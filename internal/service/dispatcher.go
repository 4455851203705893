package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// EventStream is the durable stream every engine event is appended to.
const EventStream = "stream:engine_events"

const (
	defaultQueueSize = 1024
	drainTimeout     = 5 * time.Second
)

// EventNotifier forwards events to operator chat channels.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// DispatcherConfig wires a Dispatcher. Every collaborator is optional.
type DispatcherConfig struct {
	Bus      domain.SignalBus
	Store    domain.EventStore
	Notifier EventNotifier
	// QueueSize bounds the events waiting for delivery.
	QueueSize int
	Logger    *slog.Logger
}

// Dispatcher is the engine's EventSink. Emit only enqueues, since the engine
// calls it with its lock held; Run delivers events in emission order to the
// signal bus, the event stream, the event store and the notifier.
type Dispatcher struct {
	bus      domain.SignalBus
	store    domain.EventStore
	notifier EventNotifier
	queue    chan domain.Event
	dropped  atomic.Int64
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		bus:      cfg.Bus,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		queue:    make(chan domain.Event, size),
		logger:   logger.With(slog.String("component", "event_dispatcher")),
	}
}

// Emit enqueues ev. A full queue drops the event with a warning rather than
// stalling the engine.
func (d *Dispatcher) Emit(ctx context.Context, ev domain.Event) {
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		d.logger.WarnContext(ctx, "event queue full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.Uint64("round", ev.Round),
		)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued events until ctx is cancelled, then drains what is left
// within a short grace period.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.ErrorContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}

	if d.bus != nil {
		if err := d.bus.Publish(ctx, ev.Channel(), payload); err != nil {
			d.warn(ctx, "publish", ev, err)
		}
		if err := d.bus.StreamAppend(ctx, EventStream, payload); err != nil {
			d.warn(ctx, "stream append", ev, err)
		}
	}
	if d.store != nil {
		if err := d.store.Append(ctx, ev); err != nil {
			d.warn(ctx, "store append", ev, err)
		}
	}
	if d.notifier != nil {
		if err := d.notifier.NotifyEvent(ctx, ev); err != nil {
			d.warn(ctx, "notify", ev, err)
		}
	}
}

func (d *Dispatcher) warn(ctx context.Context, step string, ev domain.Event, err error) {
	d.logger.WarnContext(ctx, "event delivery failed",
		slog.String("step", step),
		slog.String("type", string(ev.Type)),
		slog.Uint64("round", ev.Round),
		slog.String("error", err.Error()),
	)
}
