package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only log of operator actions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// EventStore indexes engine notifications for later queries.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	ListByRound(ctx context.Context, round uint64) ([]Event, error)
	List(ctx context.Context, opts ListOpts) ([]Event, error)
}

// SettlementStore persists settlement reports.
type SettlementStore interface {
	Save(ctx context.Context, report SettlementReport) error
	SetArchiveKey(ctx context.Context, id, key string) error
	GetByID(ctx context.Context, id string) (SettlementReport, error)
	ListRecent(ctx context.Context, limit int) ([]SettlementReport, error)
}

// CursorStore remembers how far a stream consumer has read.
type CursorStore interface {
	Load(ctx context.Context, name string) (string, error)
	Save(ctx context.Context, name, lastID string) error
}
