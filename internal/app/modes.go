package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/npanium/zkLeaderboard/internal/server"
	"github.com/npanium/zkLeaderboard/internal/server/handler"
	"github.com/npanium/zkLeaderboard/internal/server/ws"
	"github.com/npanium/zkLeaderboard/internal/service"
)

const (
	indexerBatch    = 100
	indexerInterval = time.Second
	shutdownTimeout = 5 * time.Second
)

// StandaloneMode runs the engine against the in-memory ledger and in-process
// coordination, serving the HTTP API when enabled.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies, c *core) error {
	a.logger.InfoContext(ctx, "starting standalone mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startDispatcher(ctx, g, c)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	}
	return g.Wait()
}

// ServerMode serves the HTTP API over whichever backends are enabled. Events
// are written to the event store by the dispatcher.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, c *core) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Bool("postgres", deps.EventStore != nil),
		slog.Bool("archive", deps.Archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startDispatcher(ctx, g, c)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	}
	return g.Wait()
}

// FullMode adds the event indexer, which copies the Redis event stream into
// Postgres and resumes from its stored cursor after a restart.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, c *core) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startDispatcher(ctx, g, c)

	indexer := service.NewEventIndexer(deps.SignalBus, deps.EventStore, deps.CursorStore,
		indexerBatch, indexerInterval, a.logger)
	g.Go(func() error {
		return indexer.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	}
	return g.Wait()
}

func (a *App) startDispatcher(ctx context.Context, g *errgroup.Group, c *core) {
	g.Go(func() error {
		err := c.dispatcher.Run(ctx)
		if dropped := c.dispatcher.Dropped(); dropped > 0 {
			a.logger.Warn("engine events dropped", slog.Int64("count", dropped))
		}
		return err
	})
}

// startHTTPServer adds the WebSocket hub and the HTTP server to the given
// errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		Status:         func() any { return c.engine.Snapshot() },
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		PreviousAPIKey: a.cfg.Server.PreviousAPIKey,
		RelayLimit:     a.cfg.Server.RelayLimit,
		RelayWindow:    a.cfg.Server.RelayWindowDuration(),
	}, server.Handlers{
		Health:      handler.NewHealthHandler(deps.Health, a.logger),
		Status:      handler.NewStatusHandler(a.cfg.Mode, c.engine, a.startedAt),
		Engine:      handler.NewEngineHandler(c.betting, c.engine, a.logger),
		Bets:        handler.NewBetHandler(c.betting, c.engine, a.logger),
		Token:       handler.NewTokenHandler(c.betting, a.logger),
		Settlements: handler.NewSettlementHandler(c.betting, a.logger),
	}, deps.RateLimiter, hub, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty; operator routes are unauthenticated")
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
