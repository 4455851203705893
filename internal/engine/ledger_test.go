package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

func TestComputeFee(t *testing.T) {
	tests := []struct {
		amount uint64
		fee    uint64
		net    uint64
	}{
		{amount: 0, fee: 0, net: 0},
		{amount: 9, fee: 0, net: 9},
		{amount: 10, fee: 1, net: 9},
		{amount: 19, fee: 1, net: 18},
		{amount: 66, fee: 6, net: 60},
		{amount: 1000, fee: 100, net: 900},
		{amount: 12345, fee: 1234, net: 11111},
	}
	for _, tt := range tests {
		require := require.New(t)

		fee, net, err := ComputeFee(u(tt.amount))
		require.NoError(err)
		require.Equal(u(tt.fee), fee, "fee of %d", tt.amount)
		require.Equal(u(tt.net), net, "net of %d", tt.amount)
		require.Equal(u(tt.amount), new(uint256.Int).Add(fee, net))
	}
}

func TestComputeFeeOverflow(t *testing.T) {
	maxAmount := new(uint256.Int).SetAllOne()
	_, _, err := ComputeFee(maxAmount)
	require.ErrorIs(t, err, domain.ErrAmountOverflow)
}

func TestPlaceBetSplitsFee(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(bob, 1000)

	require.NoError(env.engine.StartWindow(ctx, operator, []domain.Address{cand1, cand2}))
	require.NoError(env.engine.PlaceBet(ctx, bob, cand1, true, u(1000)))

	require.Equal(u(0), env.ledger.Balance(bob))
	require.Equal(u(100), env.ledger.Balance(treasury))
	require.Equal(u(900), env.ledger.Balance(custody))

	up, err := env.engine.UpAmount(0)
	require.NoError(err)
	require.Equal(u(900), up)
	down, err := env.engine.DownAmount(0)
	require.NoError(err)
	require.True(down.IsZero())

	require.Equal(1, env.engine.BetCount())
	bet, err := env.engine.GetBet(0)
	require.NoError(err)
	require.Equal(domain.Bet{Bettor: bob, Candidate: cand1, Position: true, Amount: u(900)}, bet)

	placed := env.events.ofType(domain.EventBetPlaced)
	require.Len(placed, 1)
	require.Equal(u(900), placed[0].Amount)
	require.Equal(bob, *placed[0].Bettor)
	require.True(*placed[0].Position)
}

func TestPlaceBetRejections(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(bob, 1000)

	err := env.engine.PlaceBet(ctx, bob, cand1, true, u(100))
	require.ErrorIs(err, domain.ErrNoActiveWindow)

	require.NoError(env.engine.StartWindow(ctx, operator, []domain.Address{cand1}))

	err = env.engine.PlaceBet(ctx, bob, cand2, true, u(100))
	require.ErrorIs(err, domain.ErrInvalidCandidate)

	err = env.engine.PlaceBet(ctx, bob, cand1, true, u(1001))
	require.ErrorIs(err, domain.ErrInsufficientAllowance)

	err = env.engine.PlaceBet(ctx, alice, cand1, true, u(1))
	require.ErrorIs(err, domain.ErrInsufficientAllowance)

	require.Equal(0, env.engine.BetCount())
	require.Equal(u(1000), env.ledger.Balance(bob))
	up, err := env.engine.UpAmount(0)
	require.NoError(err)
	require.True(up.IsZero())
	require.Empty(env.events.ofType(domain.EventBetPlaced))
}

func TestPlaceBetAllowanceWithoutBalance(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	env.ledger.Approve(carol, custody, u(500))

	require.NoError(env.engine.StartWindow(ctx, operator, []domain.Address{cand1}))
	err := env.engine.PlaceBet(ctx, carol, cand1, false, u(500))
	require.ErrorIs(err, domain.ErrTransferFailed)
	require.Equal(0, env.engine.BetCount())
}

func TestPlaceBetRefundsWhenFeeTransferFails(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(bob, 1000)

	cause := errors.New("treasury frozen")
	env.ledger.FailTransfersTo(treasury, cause)

	require.NoError(env.engine.StartWindow(ctx, operator, []domain.Address{cand1}))
	err := env.engine.PlaceBet(ctx, bob, cand1, true, u(1000))
	require.ErrorIs(err, domain.ErrTransferFailed)
	require.ErrorIs(err, cause)

	require.Equal(u(1000), env.ledger.Balance(bob))
	require.True(env.ledger.Balance(custody).IsZero())
	require.Equal(0, env.engine.BetCount())
}

func TestPlaceBetSmallAmountSkipsFee(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(bob, 9)
	env.ledger.FailTransfersTo(treasury, errors.New("unused"))

	require.NoError(env.engine.StartWindow(ctx, operator, []domain.Address{cand1}))
	require.NoError(env.engine.PlaceBet(ctx, bob, cand1, true, u(9)))

	up, err := env.engine.UpAmount(0)
	require.NoError(err)
	require.Equal(u(9), up)
}

func TestDuplicateCandidateResolvesToFirstSlot(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(bob, 100)

	require.NoError(env.engine.StartWindow(ctx, operator, []domain.Address{cand1, cand2, cand1}))
	require.NoError(env.engine.PlaceBet(ctx, bob, cand1, false, u(100)))

	first, err := env.engine.DownAmount(0)
	require.NoError(err)
	require.Equal(u(90), first)
	dup, err := env.engine.DownAmount(2)
	require.NoError(err)
	require.True(dup.IsZero())
}

func TestGetBetBounds(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(bob, 100)

	_, err := env.engine.GetBet(0)
	require.ErrorIs(err, domain.ErrIndexOutOfBounds)

	require.NoError(env.engine.StartWindow(ctx, operator, []domain.Address{cand1}))
	require.NoError(env.engine.PlaceBet(ctx, bob, cand1, true, u(100)))

	bet, err := env.engine.GetBet(0)
	require.NoError(err)
	bet.Amount.SetUint64(1)

	again, err := env.engine.GetBet(0)
	require.NoError(err)
	require.Equal(u(90), again.Amount)

	_, err = env.engine.GetBet(1)
	require.ErrorIs(err, domain.ErrIndexOutOfBounds)
	_, err = env.engine.GetBet(-1)
	require.ErrorIs(err, domain.ErrIndexOutOfBounds)

	require.Len(env.engine.Bets(), 1)
}

func TestPlaceBetCompletesAfterCallerCancels(t *testing.T) {
	require := require.New(t)
	env, ctx := newCancellingEnv(t, 1)
	bg := context.Background()
	env.fund(alice, 1000)

	require.NoError(env.engine.StartWindow(bg, operator, []domain.Address{cand1}))
	require.NoError(env.engine.PlaceBet(ctx, alice, cand1, true, u(1000)))
	require.Error(ctx.Err())

	require.Equal(1, env.engine.BetCount())
	require.Equal(u(100), env.ledger.Balance(treasury))
	require.Equal(u(900), env.ledger.Balance(custody))
	require.True(env.ledger.Balance(alice).IsZero())
}

func TestPlaceBetTreatsPendingTransferAsApplied(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(alice, 1000)
	env.ledger.FailTransfersTo(treasury, fmt.Errorf("tx 0xabc: %w", domain.ErrTransferPending))

	require.NoError(env.engine.StartWindow(ctx, operator, []domain.Address{cand1}))
	require.NoError(env.engine.PlaceBet(ctx, alice, cand1, true, u(1000)))

	require.Equal(1, env.engine.BetCount())
	require.True(env.ledger.Balance(alice).IsZero())
	up, err := env.engine.UpAmount(0)
	require.NoError(err)
	require.Equal(u(900), up)
}
