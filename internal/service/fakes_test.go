package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, domain.AuditEntry{ID: int64(len(f.entries) + 1), Event: event, Detail: detail})
	return nil
}

func (f *fakeAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AuditEntry(nil), f.entries...), nil
}

func (f *fakeAudit) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Event
	}
	return out
}

type fakeSettlements struct {
	mu      sync.Mutex
	reports map[string]domain.SettlementReport
	order   []string
}

func newFakeSettlements() *fakeSettlements {
	return &fakeSettlements{reports: map[string]domain.SettlementReport{}}
}

func (f *fakeSettlements) Save(_ context.Context, r domain.SettlementReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reports[r.ID]; !ok {
		f.order = append(f.order, r.ID)
	}
	f.reports[r.ID] = r
	return nil
}

func (f *fakeSettlements) SetArchiveKey(_ context.Context, id, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.ArchiveKey = key
	f.reports[id] = r
	return nil
}

func (f *fakeSettlements) GetByID(_ context.Context, id string) (domain.SettlementReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return domain.SettlementReport{}, fmt.Errorf("settlement %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (f *fakeSettlements) ListRecent(_ context.Context, limit int) ([]domain.SettlementReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SettlementReport
	for i := len(f.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, f.reports[f.order[i]])
	}
	return out, nil
}

type fakeArchiver struct {
	mu      sync.Mutex
	keys    []string
	reports map[string]domain.SettlementReport
	err     error
}

func (f *fakeArchiver) Archive(_ context.Context, r domain.SettlementReport) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	key := fmt.Sprintf("settlements/round-%d/%s.json", r.Round, r.ID)
	if f.reports == nil {
		f.reports = make(map[string]domain.SettlementReport)
	}
	f.keys = append(f.keys, key)
	f.reports[key] = r
	return key, nil
}

func (f *fakeArchiver) Load(_ context.Context, key string) (domain.SettlementReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[key]
	if !ok {
		return r, domain.ErrNotFound
	}
	r.ArchiveKey = key
	return r, nil
}

func (f *fakeArchiver) ListRound(_ context.Context, round uint64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := fmt.Sprintf("settlements/round-%d/", round)
	var out []string
	for _, k := range f.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (f *fakeEventStore) Append(_ context.Context, ev domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEventStore) ListByRound(_ context.Context, round uint64) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, ev := range f.events {
		if ev.Round == round {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Event(nil), f.events...), nil
}

func (f *fakeEventStore) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeCursors struct {
	mu    sync.Mutex
	saved map[string]string
}

func (f *fakeCursors) Load(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.saved[name]; ok {
		return id, nil
	}
	return "0", nil
}

func (f *fakeCursors) Save(_ context.Context, name, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[name] = id
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	types []domain.EventType
}

func (f *fakeNotifier) NotifyEvent(_ context.Context, ev domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, ev.Type)
	return nil
}
