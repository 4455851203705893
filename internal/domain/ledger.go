package domain

import (
	"context"

	"github.com/holiman/uint256"
)

// TokenLedger is the external fungible balance ledger the engine moves value
// through. Calls are made on behalf of the engine's custody account: Transfer
// debits custody, TransferFrom spends an allowance granted to custody.
//
// Each call is synchronous and all-or-nothing. A nil error means the ledger
// applied the movement. An error wrapping ErrTransferPending means the
// movement was submitted but not confirmed, and may still apply.
type TokenLedger interface {
	Allowance(ctx context.Context, owner, spender Address) (*uint256.Int, error)
	TransferFrom(ctx context.Context, owner, recipient Address, amount *uint256.Int) error
	Transfer(ctx context.Context, recipient Address, amount *uint256.Int) error
}

// TokenAdmin exposes the balance and mint helpers of the betting token. Not
// every ledger backend supports minting.
type TokenAdmin interface {
	BalanceOf(ctx context.Context, owner Address) (*uint256.Int, error)
	MintTo(ctx context.Context, to Address, amount *uint256.Int) error
}
