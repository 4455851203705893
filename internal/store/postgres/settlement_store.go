package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Save inserts a settlement report. Saving the same ID twice overwrites the
// stored report.
func (s *SettlementStore) Save(ctx context.Context, report domain.SettlementReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("postgres: marshal settlement: %w", err)
	}

	const query = `
		INSERT INTO settlements (id, round, delivered, payouts, failures, partial, archive_key, report, settled_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, NULLIF($7, ''), $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			delivered   = EXCLUDED.delivered,
			payouts     = EXCLUDED.payouts,
			failures    = EXCLUDED.failures,
			partial     = EXCLUDED.partial,
			archive_key = COALESCE(EXCLUDED.archive_key, settlements.archive_key),
			report      = EXCLUDED.report`
	_, err = s.pool.Exec(ctx, query,
		report.ID,
		int64(report.Round),
		report.Delivered().Dec(),
		len(report.Payouts),
		len(report.Failures),
		report.Partial(),
		report.ArchiveKey,
		body,
		report.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save settlement %s: %w", report.ID, err)
	}
	return nil
}

// SetArchiveKey records where the report was archived.
func (s *SettlementStore) SetArchiveKey(ctx context.Context, id, key string) error {
	const query = `
		UPDATE settlements
		SET archive_key = $2,
		    report = jsonb_set(report, '{archive_key}', to_jsonb($2::text))
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, key)
	if err != nil {
		return fmt.Errorf("postgres: set archive key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: settlement %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID loads one report.
func (s *SettlementStore) GetByID(ctx context.Context, id string) (domain.SettlementReport, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM settlements WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SettlementReport{}, fmt.Errorf("postgres: settlement %s: %w", id, domain.ErrNotFound)
		}
		return domain.SettlementReport{}, fmt.Errorf("postgres: get settlement %s: %w", id, err)
	}
	var report domain.SettlementReport
	if err := json.Unmarshal(body, &report); err != nil {
		return domain.SettlementReport{}, fmt.Errorf("postgres: unmarshal settlement %s: %w", id, err)
	}
	return report, nil
}

// ListRecent returns up to limit reports, newest first.
func (s *SettlementStore) ListRecent(ctx context.Context, limit int) ([]domain.SettlementReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT report FROM settlements ORDER BY settled_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.SettlementReport
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		var report domain.SettlementReport
		if err := json.Unmarshal(body, &report); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal settlement: %w", err)
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settlements rows: %w", err)
	}
	return out, nil
}
