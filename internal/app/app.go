// Package app provides the top-level lifecycle of the settlement engine
// service. It wires the ledger, stores, caches, blob storage and
// notifications, builds the engine and its service layer, and starts the
// goroutines of the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/npanium/zkLeaderboard/internal/config"
	"github.com/npanium/zkLeaderboard/internal/engine"
	"github.com/npanium/zkLeaderboard/internal/service"
)

// eventQueueSize bounds the events waiting for the dispatcher.
const eventQueueSize = 1024

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
	closers   []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// core is the engine together with the services built around it.
type core struct {
	engine     *engine.Engine
	dispatcher *service.Dispatcher
	betting    *service.BettingService
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.startedAt = time.Now().UTC()
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("ledger", a.cfg.Ledger.Backend),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	c, err := a.buildCore(ctx, deps, mode)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	switch mode {
	case "standalone":
		return a.StandaloneMode(ctx, deps, c)
	case "server":
		return a.ServerMode(ctx, deps, c)
	case "full":
		return a.FullMode(ctx, deps, c)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// buildCore creates the dispatcher, the engine and the betting service, and
// runs the configured auto-init.
func (a *App) buildCore(ctx context.Context, deps *Dependencies, mode string) (*core, error) {
	dcfg := service.DispatcherConfig{
		Bus:       deps.SignalBus,
		QueueSize: eventQueueSize,
		Logger:    a.logger,
	}
	// In full mode the indexer copies the event stream into Postgres.
	if mode != "full" {
		dcfg.Store = deps.EventStore
	}
	if deps.Notifier.Enabled() {
		dcfg.Notifier = deps.Notifier
	}
	dispatcher := service.NewDispatcher(dcfg)

	eng, err := engine.New(engine.Config{
		Custody: deps.Custody,
		Ledger:  deps.Ledger,
		Events:  dispatcher,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	betting, err := service.NewBettingService(service.BettingConfig{
		Engine:      eng,
		Admin:       deps.Admin,
		Locks:       deps.LockManager,
		LockTTL:     a.cfg.Redis.LockTTLDuration(),
		Audit:       deps.AuditStore,
		Settlements: deps.SettlementStore,
		Archiver:    deps.Archiver,
		Events:      deps.EventStore,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build betting service: %w", err)
	}

	if a.cfg.Engine.AutoInit {
		if err := a.autoInit(ctx, deps, betting); err != nil {
			return nil, err
		}
	}

	return &core{engine: eng, dispatcher: dispatcher, betting: betting}, nil
}

func (a *App) autoInit(ctx context.Context, deps *Dependencies, betting *service.BettingService) error {
	operator := common.HexToAddress(a.cfg.Engine.Operator)
	treasury := common.HexToAddress(a.cfg.Engine.Treasury)
	tok := deps.TokenAddress
	if a.cfg.Engine.Token != "" {
		tok = common.HexToAddress(a.cfg.Engine.Token)
	}

	if err := betting.Init(ctx, operator, treasury, tok); err != nil {
		return fmt.Errorf("auto init: %w", err)
	}
	a.logger.InfoContext(ctx, "engine initialized",
		slog.String("operator", operator.Hex()),
		slog.String("treasury", treasury.Hex()),
		slog.String("token", tok.Hex()),
	)
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
