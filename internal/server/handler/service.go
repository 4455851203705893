package handler

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/npanium/zkLeaderboard/internal/domain"
	"github.com/npanium/zkLeaderboard/internal/engine"
)

// Betting is the service layer the handlers call for state changes and
// stored history.
type Betting interface {
	Init(ctx context.Context, operator, treasury, token domain.Address) error
	StartWindow(ctx context.Context, candidates []domain.Address) error
	CloseWindow(ctx context.Context) error
	PlaceSignedBet(ctx context.Context, auth domain.BetAuthorization) error
	VerifyBet(auth domain.BetAuthorization) error
	Settle(ctx context.Context, winners []bool) (*domain.SettlementReport, error)
	Mint(ctx context.Context, to domain.Address, amount *uint256.Int) error
	Balance(ctx context.Context, owner domain.Address) (*uint256.Int, error)
	RecentSettlements(ctx context.Context, limit int) ([]domain.SettlementReport, error)
	Settlement(ctx context.Context, id string) (domain.SettlementReport, error)
	ArchivedSettlements(ctx context.Context, round uint64) ([]domain.SettlementReport, error)
	RoundEvents(ctx context.Context, round uint64) ([]domain.Event, error)
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// EngineReader is the read-only engine surface.
type EngineReader interface {
	Snapshot() engine.Snapshot
	Round() uint64
	WindowActive() bool
	Candidates() []domain.Address
	IsValidAddress(addr domain.Address) bool
	UpAmount(index int) (*uint256.Int, error)
	DownAmount(index int) (*uint256.Int, error)
	BetCount() int
	GetBet(index int) (domain.Bet, error)
	Nonce(p domain.Address) uint64
}
