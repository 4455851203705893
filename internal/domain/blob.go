package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// SettlementArchiver keeps settlement reports in cold storage, keyed by
// round.
type SettlementArchiver interface {
	Archive(ctx context.Context, report SettlementReport) (string, error)
	Load(ctx context.Context, key string) (SettlementReport, error)
	ListRound(ctx context.Context, round uint64) ([]string, error)
}
