package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Address identifies a principal: operator, treasury, token contract, bettor
// or candidate.
type Address = common.Address

// ZeroAddress is the unset principal.
var ZeroAddress = Address{}

// Position is the side of a wager relative to a candidate.
const (
	PositionUp   = true
	PositionDown = false
)

// Bet is a single recorded wager. Amount is net of the protocol fee.
type Bet struct {
	Bettor    Address      `json:"bettor"`
	Candidate Address      `json:"candidate"`
	Position  bool         `json:"position"`
	Amount    *uint256.Int `json:"amount"`
}

// Clone returns a deep copy so callers cannot mutate ledger state through
// the returned amount.
func (b Bet) Clone() Bet {
	out := b
	if b.Amount != nil {
		out.Amount = new(uint256.Int).Set(b.Amount)
	}
	return out
}

// BetAuthorization is an off-chain signed wager submitted by a relayer on
// behalf of Bettor. Signature is the 65-byte r || s || v encoding; v may be
// 0/1 or 27/28.
type BetAuthorization struct {
	Bettor    Address      `json:"bettor"`
	Candidate Address      `json:"candidate"`
	Position  bool         `json:"position"`
	Amount    *uint256.Int `json:"amount"`
	Nonce     uint64       `json:"nonce"`
	Deadline  uint64       `json:"deadline"`
	Signature []byte       `json:"signature"`
}

// PositionLabel renders a position as "up" or "down".
func PositionLabel(position bool) string {
	if position {
		return "up"
	}
	return "down"
}
