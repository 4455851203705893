// Package server is the HTTP and WebSocket surface of the settlement engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/npanium/zkLeaderboard/internal/domain"
	"github.com/npanium/zkLeaderboard/internal/server/handler"
	"github.com/npanium/zkLeaderboard/internal/server/middleware"
	"github.com/npanium/zkLeaderboard/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards operator routes; empty disables the check.
	APIKey string
	// PreviousAPIKey stays valid alongside APIKey during a key rotation.
	PreviousAPIKey string
	// RelayLimit and RelayWindow bound relayed bet submissions per client IP.
	RelayLimit  int
	RelayWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Engine      *handler.EngineHandler
	Bets        *handler.BetHandler
	Token       *handler.TokenHandler
	Settlements *handler.SettlementHandler
}

// Server is the engine's HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route. Operator routes require the API key and
// relay routes are rate limited per client IP.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))
	mux := http.NewServeMux()

	operator := middleware.Auth(cfg.APIKey, cfg.PreviousAPIKey)
	relay := middleware.RateLimit(limiter, "relay", cfg.RelayLimit, cfg.RelayWindow, logger)
	guarded := func(mw func(http.Handler) http.Handler, fn http.HandlerFunc) http.Handler {
		return mw(fn)
	}

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Operator lifecycle.
	mux.Handle("POST /api/engine/init", guarded(operator, handlers.Engine.Init))
	mux.Handle("POST /api/window/start", guarded(operator, handlers.Engine.StartWindow))
	mux.Handle("POST /api/window/close", guarded(operator, handlers.Engine.CloseWindow))
	mux.Handle("POST /api/payouts", guarded(operator, handlers.Engine.ProcessPayouts))
	mux.Handle("POST /api/token/mint-to", guarded(operator, handlers.Token.MintTo))
	mux.Handle("GET /api/audit", guarded(operator, handlers.Settlements.Audit))

	// Public queries.
	mux.HandleFunc("GET /api/window/status", handlers.Engine.WindowStatus)
	mux.HandleFunc("GET /api/candidates/{address}", handlers.Engine.Candidate)
	mux.HandleFunc("GET /api/nonces/{address}", handlers.Engine.Nonce)
	mux.HandleFunc("GET /api/bets/count", handlers.Bets.Count)
	mux.HandleFunc("GET /api/bets/amounts/{index}", handlers.Bets.Amounts)
	mux.HandleFunc("GET /api/bets/{index}", handlers.Bets.GetBet)
	mux.HandleFunc("GET /api/token/balance/{address}", handlers.Token.Balance)
	mux.HandleFunc("GET /api/settlements", handlers.Settlements.List)
	mux.HandleFunc("GET /api/settlements/archive", handlers.Settlements.Archived)
	mux.HandleFunc("GET /api/settlements/{id}", handlers.Settlements.Get)
	mux.HandleFunc("GET /api/events", handlers.Settlements.RoundEvents)

	// Relayed bets.
	mux.Handle("POST /api/bets", guarded(relay, handlers.Bets.PlaceBet))
	mux.Handle("POST /api/bets/verify", guarded(relay, handlers.Bets.VerifyBet))

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
