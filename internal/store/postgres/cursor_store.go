package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// CursorStore implements domain.CursorStore using PostgreSQL.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a new CursorStore backed by the given pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Load returns the saved position for name, or "0" when none is stored.
func (s *CursorStore) Load(ctx context.Context, name string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT last_id FROM stream_cursors WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: load cursor %s: %w", name, err)
	}
	return id, nil
}

// Save upserts the position for name.
func (s *CursorStore) Save(ctx context.Context, name, lastID string) error {
	const query = `
		INSERT INTO stream_cursors (name, last_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET last_id = EXCLUDED.last_id, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, name, lastID); err != nil {
		return fmt.Errorf("postgres: save cursor %s: %w", name, err)
	}
	return nil
}

var _ domain.CursorStore = (*CursorStore)(nil)
