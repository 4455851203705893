package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// ProportionalPayout returns amount plus its share of the losing pool using
// two truncating divisions:
//
//	share  = amount * PayoutScale / winningPool
//	bonus  = losingPool * share / PayoutScale
//	payout = amount + bonus
func ProportionalPayout(amount, winningPool, losingPool *uint256.Int) (*uint256.Int, error) {
	if winningPool.IsZero() {
		return nil, fmt.Errorf("engine: payout against empty winning pool: %w", domain.ErrAmountOverflow)
	}
	share, overflow := new(uint256.Int).MulOverflow(amount, payoutScale)
	if overflow {
		return nil, fmt.Errorf("engine: share of %s: %w", amount.Dec(), domain.ErrAmountOverflow)
	}
	share.Div(share, winningPool)

	bonus, overflow := new(uint256.Int).MulOverflow(losingPool, share)
	if overflow {
		return nil, fmt.Errorf("engine: bonus on %s: %w", losingPool.Dec(), domain.ErrAmountOverflow)
	}
	bonus.Div(bonus, payoutScale)

	payout, overflow := new(uint256.Int).AddOverflow(amount, bonus)
	if overflow {
		return nil, fmt.Errorf("engine: payout %s + %s: %w", amount.Dec(), bonus.Dec(), domain.ErrAmountOverflow)
	}
	return payout, nil
}

// ProcessPayouts settles the closed window. winners[i] names the winning
// side of candidate slot i. A slot where either side is empty sends its
// whole pool to the treasury. Individual transfer failures are recorded in
// the report and do not stop the remaining transfers. The bet ledger is
// cleared once every slot has been processed; candidates and totals are
// left for the next StartWindow to reset. Cancelling ctx does not interrupt
// a settlement in progress.
func (e *Engine) ProcessPayouts(ctx context.Context, caller domain.Address, winners []bool) (*domain.SettlementReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	if err := e.requireOperator(caller); err != nil {
		return nil, err
	}
	if e.windowActive {
		return nil, fmt.Errorf("engine: close the betting window before settlement: %w", domain.ErrWindowAlreadyActive)
	}
	if len(winners) != len(e.candidates) {
		return nil, fmt.Errorf("engine: %d winners for %d candidates: %w", len(winners), len(e.candidates), domain.ErrLengthMismatch)
	}

	report := &domain.SettlementReport{
		ID:        uuid.NewString(),
		Round:     e.round,
		Winners:   append([]bool(nil), winners...),
		Slots:     make([]domain.SlotResult, 0, len(e.candidates)),
		SettledAt: e.now().UTC(),
	}

	for i, candidate := range e.candidates {
		up, down := e.upTotals[i], e.downTotals[i]
		slot := domain.SlotResult{
			Index:     i,
			Candidate: candidate,
			Up:        new(uint256.Int).Set(up),
			Down:      new(uint256.Int).Set(down),
			WinnerUp:  winners[i],
		}

		if up.IsZero() || down.IsZero() {
			slot.Degenerate = true
			e.sweepSlot(ctx, report, &slot)
			report.Slots = append(report.Slots, slot)
			continue
		}

		winning, losing := down, up
		if winners[i] {
			winning, losing = up, down
		}
		for _, bet := range e.bets {
			if bet.Candidate != candidate || bet.Position != winners[i] {
				continue
			}
			e.payBet(ctx, report, i, bet, winning, losing)
		}
		report.Slots = append(report.Slots, slot)
	}

	report.BetsClear = len(e.bets)
	e.bets = nil

	e.emit(ctx, domain.Event{
		Type:     domain.EventSettlementClosed,
		Operator: addrPtr(caller),
	})
	e.logger.InfoContext(ctx, "settlement completed",
		slog.String("settlement_id", report.ID),
		slog.Uint64("round", report.Round),
		slog.Int("payouts", len(report.Payouts)),
		slog.Int("failures", len(report.Failures)),
		slog.Int("bets_cleared", report.BetsClear),
		slog.String("delivered", report.Delivered().Dec()),
	)
	return report, nil
}

// sweepSlot routes a degenerate slot's combined pool to the treasury.
func (e *Engine) sweepSlot(ctx context.Context, report *domain.SettlementReport, slot *domain.SlotResult) {
	total, overflow := new(uint256.Int).AddOverflow(slot.Up, slot.Down)
	if overflow {
		e.recordFailure(ctx, report, slot.Index, e.treasury, nil, domain.ErrAmountOverflow)
		return
	}
	if total.IsZero() {
		return
	}
	if err := e.applied(ctx, "sweep slot", e.ledger.Transfer(ctx, e.treasury, total)); err != nil {
		e.recordFailure(ctx, report, slot.Index, e.treasury, total, err)
		return
	}
	slot.TreasuryAmount = total
	e.emit(ctx, domain.Event{
		Type:      domain.EventTreasurySwept,
		Candidate: addrPtr(slot.Candidate),
		Amount:    new(uint256.Int).Set(total),
	})
}

func (e *Engine) payBet(ctx context.Context, report *domain.SettlementReport, slot int, bet domain.Bet, winning, losing *uint256.Int) {
	payout, err := ProportionalPayout(bet.Amount, winning, losing)
	if err != nil {
		e.recordFailure(ctx, report, slot, bet.Bettor, nil, err)
		return
	}
	if err := e.applied(ctx, "pay bet", e.ledger.Transfer(ctx, bet.Bettor, payout)); err != nil {
		e.recordFailure(ctx, report, slot, bet.Bettor, payout, err)
		return
	}
	report.Payouts = append(report.Payouts, domain.Payout{
		Slot:      slot,
		Bettor:    bet.Bettor,
		Candidate: bet.Candidate,
		Amount:    payout,
	})
	e.emit(ctx, domain.Event{
		Type:      domain.EventPayoutProcessed,
		Bettor:    addrPtr(bet.Bettor),
		Candidate: addrPtr(bet.Candidate),
		Amount:    new(uint256.Int).Set(payout),
		Won:       true,
	})
}

func (e *Engine) recordFailure(ctx context.Context, report *domain.SettlementReport, slot int, recipient domain.Address, amount *uint256.Int, err error) {
	if amount == nil {
		amount = new(uint256.Int)
	}
	report.Failures = append(report.Failures, domain.TransferFailure{
		Slot:      slot,
		Recipient: recipient,
		Amount:    new(uint256.Int).Set(amount),
		Error:     err.Error(),
	})
	e.emit(ctx, domain.Event{
		Type:   domain.EventPayoutFailed,
		Bettor: addrPtr(recipient),
		Amount: new(uint256.Int).Set(amount),
		Error:  err.Error(),
	})
	e.logger.WarnContext(ctx, "settlement transfer failed",
		slog.Int("slot", slot),
		slog.String("recipient", recipient.Hex()),
		slog.String("amount", amount.Dec()),
		slog.String("error", err.Error()),
	)
}
