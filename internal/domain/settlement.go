package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// SlotResult summarises settlement of one candidate slot.
type SlotResult struct {
	Index     int          `json:"index"`
	Candidate Address      `json:"candidate"`
	Up        *uint256.Int `json:"up"`
	Down      *uint256.Int `json:"down"`
	WinnerUp  bool         `json:"winner_up"`
	// Degenerate is set when one side of the slot had no action; the whole
	// pool is then routed to the treasury.
	Degenerate     bool         `json:"degenerate"`
	TreasuryAmount *uint256.Int `json:"treasury_amount,omitempty"`
}

// Payout is a transfer delivered to a winning bettor.
type Payout struct {
	Slot      int          `json:"slot"`
	Bettor    Address      `json:"bettor"`
	Candidate Address      `json:"candidate"`
	Amount    *uint256.Int `json:"amount"`
}

// TransferFailure records a settlement transfer the ledger rejected.
type TransferFailure struct {
	Slot      int          `json:"slot"`
	Recipient Address      `json:"recipient"`
	Amount    *uint256.Int `json:"amount"`
	Error     string       `json:"error"`
}

// SettlementReport is the outcome of one ProcessPayouts call.
type SettlementReport struct {
	ID        string            `json:"id"`
	Round     uint64            `json:"round"`
	Winners   []bool            `json:"winners"`
	Slots     []SlotResult      `json:"slots"`
	Payouts   []Payout          `json:"payouts"`
	Failures  []TransferFailure `json:"failures"`
	BetsClear int               `json:"bets_cleared"`
	SettledAt time.Time         `json:"settled_at"`
	// ArchiveKey is the object-storage key once the report is archived.
	ArchiveKey string `json:"archive_key,omitempty"`
}

// Delivered returns the sum of every successful payout and treasury sweep.
func (r *SettlementReport) Delivered() *uint256.Int {
	total := new(uint256.Int)
	for _, p := range r.Payouts {
		total.Add(total, p.Amount)
	}
	for _, s := range r.Slots {
		if s.TreasuryAmount != nil {
			total.Add(total, s.TreasuryAmount)
		}
	}
	return total
}

// Partial reports whether any transfer failed during settlement.
func (r *SettlementReport) Partial() bool {
	return len(r.Failures) > 0
}
