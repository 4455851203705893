package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

const (
	settlementPrefix = "settlements/"
	jsonContentType  = "application/json"
)

// SettlementKey returns the object key a report is archived under.
func SettlementKey(round uint64, id string) string {
	return fmt.Sprintf("%sround-%d/%s.json", settlementPrefix, round, id)
}

// RoundPrefix returns the key prefix shared by every archive of round.
func RoundPrefix(round uint64) string {
	return fmt.Sprintf("%sround-%d/", settlementPrefix, round)
}

// Archiver implements domain.SettlementArchiver. Reports are stored as
// indented JSON so they can be inspected straight from the bucket.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiver creates an Archiver. reader may be nil when reports are only
// written.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "settlement_archiver")),
	}
}

// Archive uploads report and returns its key.
func (a *Archiver) Archive(ctx context.Context, report domain.SettlementReport) (string, error) {
	if report.ID == "" {
		return "", fmt.Errorf("s3blob: archive settlement: report has no id")
	}
	report.ArchiveKey = ""

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement %s: marshal: %w", report.ID, err)
	}

	key := SettlementKey(report.Round, report.ID)
	if err := a.writer.Put(ctx, key, bytes.NewReader(body), jsonContentType); err != nil {
		return "", fmt.Errorf("s3blob: archive settlement %s: %w", report.ID, err)
	}

	a.logger.InfoContext(ctx, "settlement archived",
		slog.String("key", key),
		slog.Uint64("round", report.Round),
		slog.Int("bytes", len(body)),
	)
	return key, nil
}

// Load reads an archived report back.
func (a *Archiver) Load(ctx context.Context, key string) (domain.SettlementReport, error) {
	var report domain.SettlementReport
	if a.reader == nil {
		return report, fmt.Errorf("s3blob: load settlement %s: no reader configured", key)
	}

	rc, err := a.reader.Get(ctx, key)
	if err != nil {
		return report, fmt.Errorf("s3blob: load settlement: %w", err)
	}
	defer rc.Close()

	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return report, fmt.Errorf("s3blob: load settlement %s: decode: %w", key, err)
	}
	report.ArchiveKey = key
	return report, nil
}

// ListRound returns the archive keys for round.
func (a *Archiver) ListRound(ctx context.Context, round uint64) ([]string, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: list round %d: no reader configured", round)
	}
	infos, err := a.reader.List(ctx, RoundPrefix(round))
	if err != nil {
		return nil, fmt.Errorf("s3blob: list round %d: %w", round, err)
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Path)
	}
	return keys, nil
}

var _ domain.SettlementArchiver = (*Archiver)(nil)
