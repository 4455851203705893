package token

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	custody = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestMemoryTransferFromSpendsAllowance(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := NewMemory()
	acct := m.As(custody)

	m.Mint(alice, u(500))
	m.Approve(alice, custody, u(300))

	require.ErrorIs(acct.TransferFrom(ctx, alice, custody, u(301)), ErrInsufficientAllowance)
	require.NoError(acct.TransferFrom(ctx, alice, custody, u(200)))

	allowance, err := acct.Allowance(ctx, alice, custody)
	require.NoError(err)
	require.Equal(u(100), allowance)
	require.Equal(u(300), m.Balance(alice))
	require.Equal(u(200), m.Balance(custody))
}

func TestMemoryAllowanceWithoutBalance(t *testing.T) {
	require := require.New(t)
	m := NewMemory()
	m.Approve(alice, custody, u(100))

	err := m.As(custody).TransferFrom(context.Background(), alice, custody, u(50))
	require.ErrorIs(err, ErrInsufficientBalance)

	allowance, _ := m.As(custody).Allowance(context.Background(), alice, custody)
	require.Equal(u(100), allowance)
}

func TestMemoryTransferAndFaults(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := NewMemory()
	acct := m.As(custody)
	m.Mint(custody, u(100))

	require.ErrorIs(acct.Transfer(ctx, bob, u(101)), ErrInsufficientBalance)

	frozen := errors.New("frozen")
	m.FailTransfersTo(bob, frozen)
	require.ErrorIs(acct.Transfer(ctx, bob, u(10)), frozen)
	require.Equal(u(100), m.Balance(custody))

	m.FailTransfersTo(bob, nil)
	require.NoError(acct.Transfer(ctx, bob, u(10)))
	require.Equal(u(90), m.Balance(custody))

	bal, err := m.BalanceOf(ctx, bob)
	require.NoError(err)
	require.Equal(u(10), bal)
	require.Equal(custody, acct.Address())
}

func TestMemoryBalancesAreCopies(t *testing.T) {
	m := NewMemory()
	m.Mint(alice, u(7))
	m.Balance(alice).SetUint64(1_000)
	require.Equal(t, u(7), m.Balance(alice))
}
