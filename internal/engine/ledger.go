package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

var (
	feePercent  = uint256.NewInt(FeePercent)
	hundred     = uint256.NewInt(100)
	payoutScale = uint256.NewInt(PayoutScale)
)

// ComputeFee splits amount into the protocol fee and the net stake. The fee
// is floor(amount * FeePercent / 100).
func ComputeFee(amount *uint256.Int) (fee, net *uint256.Int, err error) {
	scaled, overflow := new(uint256.Int).MulOverflow(amount, feePercent)
	if overflow {
		return nil, nil, fmt.Errorf("engine: fee on %s: %w", amount.Dec(), domain.ErrAmountOverflow)
	}
	fee = scaled.Div(scaled, hundred)
	net = new(uint256.Int).Sub(amount, fee)
	return fee, net, nil
}

// PlaceBet pulls amount from bettor into custody, forwards the fee to the
// treasury and records a wager on candidate. Only the net stake counts
// toward the pools. Once started, the ledger calls are not cancelled by ctx.
func (e *Engine) PlaceBet(ctx context.Context, bettor, candidate domain.Address, position bool, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.placeBetLocked(context.WithoutCancel(ctx), bettor, candidate, position, amount)
}

func (e *Engine) placeBetLocked(ctx context.Context, bettor, candidate domain.Address, position bool, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	if !e.windowActive {
		return domain.ErrNoActiveWindow
	}
	idx := e.candidateIndex(candidate)
	if idx < 0 {
		return fmt.Errorf("engine: candidate %s: %w", candidate.Hex(), domain.ErrInvalidCandidate)
	}

	fee, net, err := ComputeFee(amount)
	if err != nil {
		return err
	}
	pool := e.downTotals[idx]
	if position == domain.PositionUp {
		pool = e.upTotals[idx]
	}
	newPool, overflow := new(uint256.Int).AddOverflow(pool, net)
	if overflow {
		return fmt.Errorf("engine: pool for slot %d: %w", idx, domain.ErrAmountOverflow)
	}

	allowance, err := e.ledger.Allowance(ctx, bettor, e.custody)
	if err != nil {
		return transferErr("query allowance", err)
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("engine: allowance %s below %s: %w", allowance.Dec(), amount.Dec(), domain.ErrInsufficientAllowance)
	}

	if err := e.applied(ctx, "pull stake", e.ledger.TransferFrom(ctx, bettor, e.custody, amount)); err != nil {
		return transferErr("pull stake", err)
	}
	if !fee.IsZero() {
		if err := e.applied(ctx, "forward fee", e.ledger.Transfer(ctx, e.treasury, fee)); err != nil {
			// Return the stake so a failed bet moves no value.
			if rerr := e.applied(ctx, "refund stake", e.ledger.Transfer(ctx, bettor, amount)); rerr != nil {
				e.logger.ErrorContext(ctx, "refund after failed fee transfer",
					slog.String("bettor", bettor.Hex()),
					slog.String("amount", amount.Dec()),
					slog.String("error", rerr.Error()),
				)
			}
			return transferErr("forward fee", err)
		}
	}

	e.bets = append(e.bets, domain.Bet{
		Bettor:    bettor,
		Candidate: candidate,
		Position:  position,
		Amount:    new(uint256.Int).Set(net),
	})
	if position == domain.PositionUp {
		e.upTotals[idx] = newPool
	} else {
		e.downTotals[idx] = newPool
	}

	e.emit(ctx, domain.Event{
		Type:      domain.EventBetPlaced,
		Bettor:    addrPtr(bettor),
		Candidate: addrPtr(candidate),
		Position:  boolPtr(position),
		Amount:    new(uint256.Int).Set(net),
	})
	e.logger.DebugContext(ctx, "bet placed",
		slog.String("bettor", bettor.Hex()),
		slog.String("candidate", candidate.Hex()),
		slog.String("position", domain.PositionLabel(position)),
		slog.String("net", net.Dec()),
		slog.String("fee", fee.Dec()),
	)
	return nil
}

// BetCount returns the number of unsettled bets.
func (e *Engine) BetCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.bets)
}

// GetBet returns a copy of the bet at index.
func (e *Engine) GetBet(index int) (domain.Bet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index < 0 || index >= len(e.bets) {
		return domain.Bet{}, fmt.Errorf("engine: bet %d of %d: %w", index, len(e.bets), domain.ErrIndexOutOfBounds)
	}
	return e.bets[index].Clone(), nil
}

// Bets returns a copy of every unsettled bet in insertion order.
func (e *Engine) Bets() []domain.Bet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Bet, len(e.bets))
	for i, b := range e.bets {
		out[i] = b.Clone()
	}
	return out
}

// applied filters a ledger result. A transfer that was broadcast but not yet
// confirmed is treated as done: its value may already have moved.
func (e *Engine) applied(ctx context.Context, op string, err error) error {
	if err == nil || !errors.Is(err, domain.ErrTransferPending) {
		return err
	}
	e.logger.WarnContext(ctx, "transfer unconfirmed, treating as applied",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return nil
}

func transferErr(op string, err error) error {
	return fmt.Errorf("engine: %s: %w: %w", op, domain.ErrTransferFailed, err)
}
