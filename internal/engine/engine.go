// Package engine implements the parimutuel settlement engine. It accepts
// wagers on a roster of candidates during a betting window, authenticates
// relayed wagers by signature, and once the window closes distributes each
// candidate's losing pool to the winning side in proportion to stake.
//
// The engine owns all round state behind a single lock: every mutating call
// runs to completion before the next one starts, and any failure leaves the
// state untouched. Value movement is delegated to a domain.TokenLedger.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

const (
	// FeePercent is the protocol fee deducted from every wager.
	FeePercent = 10
	// PayoutScale is the fixed-point scale used for pool shares.
	PayoutScale = 1_000_000
)

// EventSink receives engine notifications. Emit is called while the engine
// lock is held, in the order the state changes happened.
type EventSink interface {
	Emit(ctx context.Context, ev domain.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev domain.Event)

// Emit calls f(ctx, ev).
func (f EventSinkFunc) Emit(ctx context.Context, ev domain.Event) { f(ctx, ev) }

// Config wires an Engine to its collaborators.
type Config struct {
	// Custody is the engine's own account on the token ledger.
	Custody domain.Address
	Ledger  domain.TokenLedger
	Events  EventSink
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Engine is the settlement engine state.
type Engine struct {
	mu sync.RWMutex

	custody domain.Address
	ledger  domain.TokenLedger
	events  EventSink
	now     func() time.Time
	logger  *slog.Logger

	operator domain.Address
	treasury domain.Address
	token    domain.Address

	windowActive bool
	round        uint64
	candidates   []domain.Address
	upTotals     []*uint256.Int
	downTotals   []*uint256.Int
	bets         []domain.Bet
	nonces       *NonceRegistry
}

// New creates an uninitialized Engine. Init must be called before any
// privileged operation succeeds.
func New(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("engine: token ledger is required")
	}
	if cfg.Custody == domain.ZeroAddress {
		return nil, errors.New("engine: custody address is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		custody: cfg.Custody,
		ledger:  cfg.Ledger,
		events:  cfg.Events,
		now:     clock,
		logger:  logger.With(slog.String("component", "engine")),
		nonces:  NewNonceRegistry(),
	}, nil
}

// Custody returns the engine's ledger account.
func (e *Engine) Custody() domain.Address {
	return e.custody
}

// Snapshot is a consistent read of the engine state.
type Snapshot struct {
	Operator     domain.Address   `json:"operator"`
	Treasury     domain.Address   `json:"treasury"`
	Token        domain.Address   `json:"token"`
	Custody      domain.Address   `json:"custody"`
	Initialized  bool             `json:"initialized"`
	WindowActive bool             `json:"window_active"`
	Round        uint64           `json:"round"`
	Candidates   []domain.Address `json:"candidates"`
	UpTotals     []*uint256.Int   `json:"up_totals"`
	DownTotals   []*uint256.Int   `json:"down_totals"`
	BetCount     int              `json:"bet_count"`
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Snapshot{
		Operator:     e.operator,
		Treasury:     e.treasury,
		Token:        e.token,
		Custody:      e.custody,
		Initialized:  e.operator != domain.ZeroAddress,
		WindowActive: e.windowActive,
		Round:        e.round,
		Candidates:   append([]domain.Address(nil), e.candidates...),
		UpTotals:     cloneAmounts(e.upTotals),
		DownTotals:   cloneAmounts(e.downTotals),
		BetCount:     len(e.bets),
	}
}

// requireOperator must be called with the lock held.
func (e *Engine) requireOperator(caller domain.Address) error {
	if e.operator == domain.ZeroAddress || caller != e.operator {
		return domain.ErrNotAuthorized
	}
	return nil
}

// emit must be called with the lock held.
func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	if e.events == nil {
		return
	}
	if ev.Round == 0 {
		ev.Round = e.round
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}
	e.events.Emit(ctx, ev)
}

func cloneAmounts(in []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(in))
	for i, v := range in {
		out[i] = new(uint256.Int).Set(v)
	}
	return out
}

func addrPtr(a domain.Address) *domain.Address { return &a }

func boolPtr(b bool) *bool { return &b }
