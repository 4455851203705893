package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// Init sets the operator, treasury and token exactly once. The zero address
// marks an uninitialized engine and is refused as operator.
func (e *Engine) Init(ctx context.Context, operator, treasury, token domain.Address) error {
	if operator == domain.ZeroAddress {
		return domain.ErrInvalidOperator
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.operator != domain.ZeroAddress {
		return domain.ErrAlreadyInitialized
	}
	e.operator = operator
	e.treasury = treasury
	e.token = token
	e.windowActive = false

	e.logger.InfoContext(ctx, "engine initialized",
		slog.String("operator", operator.Hex()),
		slog.String("treasury", treasury.Hex()),
		slog.String("token", token.Hex()),
	)
	return nil
}

// StartWindow replaces the candidate roster, zeroes the per-candidate totals
// and opens betting. Duplicate candidates are kept as distinct slots.
func (e *Engine) StartWindow(ctx context.Context, caller domain.Address, candidates []domain.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOperator(caller); err != nil {
		return err
	}
	if e.windowActive {
		return domain.ErrWindowAlreadyActive
	}

	if len(e.bets) > 0 {
		e.logger.WarnContext(ctx, "starting window with unsettled bets from previous round",
			slog.Uint64("previous_round", e.round),
			slog.Int("unsettled_bets", len(e.bets)),
		)
	}

	roster := append([]domain.Address(nil), candidates...)
	up := make([]*uint256.Int, len(roster))
	down := make([]*uint256.Int, len(roster))
	for i := range roster {
		up[i] = new(uint256.Int)
		down[i] = new(uint256.Int)
	}

	e.candidates = roster
	e.upTotals = up
	e.downTotals = down
	e.windowActive = true
	e.round++

	e.emit(ctx, domain.Event{
		Type:       domain.EventWindowStarted,
		Operator:   addrPtr(caller),
		Candidates: append([]domain.Address(nil), roster...),
	})
	e.logger.InfoContext(ctx, "betting window started",
		slog.Uint64("round", e.round),
		slog.Int("candidates", len(roster)),
	)
	return nil
}

// CloseBettingWindow stops accepting bets. Bets and totals are kept for
// settlement.
func (e *Engine) CloseBettingWindow(ctx context.Context, caller domain.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOperator(caller); err != nil {
		return err
	}
	if !e.windowActive {
		return domain.ErrNoActiveWindow
	}
	e.windowActive = false

	e.emit(ctx, domain.Event{
		Type:     domain.EventWindowClosed,
		Operator: addrPtr(caller),
	})
	e.logger.InfoContext(ctx, "betting window closed",
		slog.Uint64("round", e.round),
		slog.Int("bets", len(e.bets)),
	)
	return nil
}

// WindowActive reports whether bets are being accepted.
func (e *Engine) WindowActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.windowActive
}

// Round returns the number of windows started so far.
func (e *Engine) Round() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

// Candidates returns a copy of the current roster.
func (e *Engine) Candidates() []domain.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Address(nil), e.candidates...)
}

// IsValidAddress reports whether addr is on the current roster.
func (e *Engine) IsValidAddress(addr domain.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.candidateIndex(addr) >= 0
}

// UpAmount returns the net up-pool of the candidate slot at index.
func (e *Engine) UpAmount(index int) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index < 0 || index >= len(e.candidates) {
		return nil, fmt.Errorf("engine: up amount %d: %w", index, domain.ErrInvalidCandidateIndex)
	}
	return new(uint256.Int).Set(e.upTotals[index]), nil
}

// DownAmount returns the net down-pool of the candidate slot at index.
func (e *Engine) DownAmount(index int) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index < 0 || index >= len(e.candidates) {
		return nil, fmt.Errorf("engine: down amount %d: %w", index, domain.ErrInvalidCandidateIndex)
	}
	return new(uint256.Int).Set(e.downTotals[index]), nil
}

// Operator returns the operator principal.
func (e *Engine) Operator() domain.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.operator
}

// Treasury returns the fee recipient.
func (e *Engine) Treasury() domain.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.treasury
}

// Token returns the token ledger identifier recorded at Init.
func (e *Engine) Token() domain.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token
}

// candidateIndex is a linear scan returning the first matching slot, or -1.
// Must be called with the lock held.
func (e *Engine) candidateIndex(addr domain.Address) int {
	for i, c := range e.candidates {
		if c == addr {
			return i
		}
	}
	return -1
}
