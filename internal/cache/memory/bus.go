// Package memory provides in-process implementations of the coordination
// interfaces for single-replica deployments that run without Redis.
package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

const (
	subscriberBuffer    = 128
	defaultStreamMaxLen = 10000
)

type subscriber struct {
	pattern string
	ch      chan []byte
}

type stream struct {
	seq     uint64
	entries []domain.StreamMessage
}

// SignalBus implements domain.SignalBus in memory. Publish never blocks: a
// subscriber whose buffer is full misses the payload.
type SignalBus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	streams map[string]*stream
	maxLen  int
}

// NewSignalBus creates an empty bus. Streams keep at most maxLen entries; zero
// or less uses the default.
func NewSignalBus(maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &SignalBus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string]*stream),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every subscriber whose channel or glob pattern
// matches.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		ok, err := path.Match(s.pattern, channel)
		if err != nil || !ok {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber. The returned channel is closed when ctx
// is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %s: %w", channel, err)
	}

	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// StreamAppend appends payload to the named stream, dropping the oldest
// entries beyond maxLen. IDs are decimal sequence numbers starting at 1.
func (b *SignalBus) StreamAppend(_ context.Context, name string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[name]
	if !ok {
		st = &stream{}
		b.streams[name] = st
	}
	st.seq++
	st.entries = append(st.entries, domain.StreamMessage{
		ID:      strconv.FormatUint(st.seq, 10),
		Payload: append([]byte(nil), payload...),
	})
	if over := len(st.entries) - b.maxLen; over > 0 {
		st.entries = append([]domain.StreamMessage(nil), st.entries[over:]...)
	}
	return nil
}

// StreamRead returns up to count entries with an ID greater than lastID.
// "0" and "" read from the beginning.
func (b *SignalBus) StreamRead(_ context.Context, name string, lastID string, count int) ([]domain.StreamMessage, error) {
	var after uint64
	if lastID != "" {
		v, err := strconv.ParseUint(lastID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("memory: stream read %s: bad id %q: %w", name, lastID, err)
		}
		after = v
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.streams[name]
	if !ok {
		return nil, nil
	}
	var out []domain.StreamMessage
	for _, m := range st.entries {
		id, _ := strconv.ParseUint(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
