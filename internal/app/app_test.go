package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/npanium/zkLeaderboard/internal/cache/memory"
	"github.com/npanium/zkLeaderboard/internal/config"
	"github.com/npanium/zkLeaderboard/internal/domain"
)

func standaloneConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Engine.AutoInit = true
	cfg.Engine.Operator = "0x00000000000000000000000000000000000000a1"
	cfg.Engine.Treasury = "0x00000000000000000000000000000000000000a2"
	cfg.Ledger.Seed = map[string]string{"0x00000000000000000000000000000000000000b1": "5000"}
	cfg.Server.Enabled = false
	// Ignored in standalone mode.
	cfg.Postgres.Enabled = true
	cfg.Redis.Enabled = true
	return &cfg
}

func TestWireStandalone(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := standaloneConfig()

	deps, cleanup, err := Wire(ctx, cfg, logger)
	require.NoError(err)
	defer cleanup()

	require.Equal(defaultCustody, deps.Custody)
	require.Nil(deps.EventStore)
	require.Nil(deps.Archiver)
	require.Empty(deps.Health)
	require.NotNil(deps.LockManager)
	require.NotNil(deps.SignalBus)
	require.False(deps.Notifier.Enabled())

	bal, err := deps.Admin.BalanceOf(ctx, common.HexToAddress("0x00000000000000000000000000000000000000b1"))
	require.NoError(err)
	require.Equal(uint64(5000), bal.Uint64())

	a := New(cfg, logger)
	c, err := a.buildCore(ctx, deps, "standalone")
	require.NoError(err)
	require.Equal(common.HexToAddress(cfg.Engine.Operator), c.engine.Operator())
	require.Equal(common.HexToAddress(cfg.Engine.Treasury), c.engine.Treasury())
}

func TestWireRejectsBadSeed(t *testing.T) {
	cfg := standaloneConfig()
	cfg.Ledger.Seed = map[string]string{"0x00000000000000000000000000000000000000b1": "lots"}
	_, _, err := Wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestStandaloneRunStopsOnCancel(t *testing.T) {
	cfg := standaloneConfig()
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := a.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineLeaseAllowsOneInstance(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	locks := memory.NewLockManager()

	release, err := claimEngineLease(ctx, locks, time.Second, 20*time.Millisecond)
	require.NoError(err)

	_, err = claimEngineLease(ctx, locks, time.Second, 20*time.Millisecond)
	require.ErrorIs(err, domain.ErrLockHeld)
	require.Contains(err.Error(), "held by another instance")

	release()
	again, err := claimEngineLease(ctx, locks, time.Second, 20*time.Millisecond)
	require.NoError(err)
	again()
}
