package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// EventStore implements domain.EventStore. The full event is kept as JSONB;
// round, type, bettor, candidate and amount are copied into columns for
// filtering.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append indexes one engine event.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("postgres: marshal event: %w", err)
	}

	var bettor, candidate, amount *string
	if ev.Bettor != nil {
		v := ev.Bettor.Hex()
		bettor = &v
	}
	if ev.Candidate != nil {
		v := ev.Candidate.Hex()
		candidate = &v
	}
	if ev.Amount != nil {
		v := ev.Amount.Dec()
		amount = &v
	}

	const query = `
		INSERT INTO engine_events (round, type, bettor, candidate, amount, payload, emitted_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`
	_, err = s.pool.Exec(ctx, query,
		int64(ev.Round), string(ev.Type), bettor, candidate, amount, payload, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.Type, err)
	}
	return nil
}

// ListByRound returns every event of round in emission order.
func (s *EventStore) ListByRound(ctx context.Context, round uint64) ([]domain.Event, error) {
	const query = `SELECT payload FROM engine_events WHERE round = $1 ORDER BY id`
	return s.query(ctx, query, int64(round))
}

// List returns events newest first.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	where, args := timeRange("emitted_at", opts)
	query := `SELECT payload FROM engine_events` + where + ` ORDER BY id DESC` + page(&args, opts)
	return s.query(ctx, query, args...)
}

func (s *EventStore) query(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
