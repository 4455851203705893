// Package service wraps the settlement engine with the concerns of a running
// deployment: the mutation lock, the audit trail, settlement persistence and
// archiving, and event fan-out.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"github.com/npanium/zkLeaderboard/internal/domain"
	"github.com/npanium/zkLeaderboard/internal/engine"
)

// MutateLockKey serializes every state-changing engine call.
const MutateLockKey = "betengine:mutate"

const defaultLockTTL = 30 * time.Second

// BettingConfig wires a BettingService. Only Engine and Locks are required;
// every other collaborator is skipped when nil.
type BettingConfig struct {
	Engine      *engine.Engine
	Admin       domain.TokenAdmin
	Locks       domain.LockManager
	LockTTL     time.Duration
	Audit       domain.AuditStore
	Settlements domain.SettlementStore
	Archiver    domain.SettlementArchiver
	Events      domain.EventStore
	Logger      *slog.Logger
}

// BettingService exposes the engine to the HTTP layer. Privileged calls are
// made as the recorded operator: the service is the operator's agent, and
// access to it is guarded upstream.
type BettingService struct {
	eng         *engine.Engine
	admin       domain.TokenAdmin
	locks       domain.LockManager
	lockTTL     time.Duration
	audit       domain.AuditStore
	settlements domain.SettlementStore
	archiver    domain.SettlementArchiver
	events      domain.EventStore
	logger      *slog.Logger
}

// NewBettingService creates a BettingService.
func NewBettingService(cfg BettingConfig) (*BettingService, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("betting_service: engine is required")
	}
	if cfg.Locks == nil {
		return nil, fmt.Errorf("betting_service: lock manager is required")
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BettingService{
		eng:         cfg.Engine,
		admin:       cfg.Admin,
		locks:       cfg.Locks,
		lockTTL:     ttl,
		audit:       cfg.Audit,
		settlements: cfg.Settlements,
		archiver:    cfg.Archiver,
		events:      cfg.Events,
		logger:      logger.With(slog.String("component", "betting_service")),
	}, nil
}

// Engine returns the wrapped engine for read-only queries.
func (s *BettingService) Engine() *engine.Engine {
	return s.eng
}

// Init records the operator, treasury and token principals.
func (s *BettingService) Init(ctx context.Context, operator, treasury, token domain.Address) error {
	err := s.mutate(ctx, "init", func(ctx context.Context) error {
		return s.eng.Init(ctx, operator, treasury, token)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "engine_init", map[string]any{
		"operator": operator.Hex(),
		"treasury": treasury.Hex(),
		"token":    token.Hex(),
	})
	return nil
}

// StartWindow opens a new round over candidates.
func (s *BettingService) StartWindow(ctx context.Context, candidates []domain.Address) error {
	err := s.mutate(ctx, "start_window", func(ctx context.Context) error {
		return s.eng.StartWindow(ctx, s.eng.Operator(), candidates)
	})
	if err != nil {
		return err
	}

	roster := make([]string, len(candidates))
	for i, c := range candidates {
		roster[i] = c.Hex()
	}
	s.record(ctx, "window_started", map[string]any{
		"round":      s.eng.Round(),
		"candidates": roster,
	})
	return nil
}

// CloseWindow stops accepting bets for the current round.
func (s *BettingService) CloseWindow(ctx context.Context) error {
	err := s.mutate(ctx, "close_window", func(ctx context.Context) error {
		return s.eng.CloseBettingWindow(ctx, s.eng.Operator())
	})
	if err != nil {
		return err
	}
	s.record(ctx, "window_closed", map[string]any{
		"round": s.eng.Round(),
		"bets":  s.eng.BetCount(),
	})
	return nil
}

// PlaceSignedBet records a relayed wager after checking its authorization.
func (s *BettingService) PlaceSignedBet(ctx context.Context, auth domain.BetAuthorization) error {
	return s.mutate(ctx, "place_bet", func(ctx context.Context) error {
		return s.eng.PlaceBetWithSignature(ctx, auth)
	})
}

// VerifyBet checks an authorization without placing it.
func (s *BettingService) VerifyBet(auth domain.BetAuthorization) error {
	return s.eng.VerifyAuthorization(auth)
}

// Settle distributes the closed round's pools. Once the engine has settled,
// persistence and archiving failures are logged and do not fail the call.
func (s *BettingService) Settle(ctx context.Context, winners []bool) (*domain.SettlementReport, error) {
	var report *domain.SettlementReport
	err := s.mutate(ctx, "process_payouts", func(ctx context.Context) error {
		var err error
		report, err = s.eng.ProcessPayouts(ctx, s.eng.Operator(), winners)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The round is settled; record it even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	s.persist(ctx, report)
	s.record(ctx, "settlement", map[string]any{
		"id":        report.ID,
		"round":     report.Round,
		"payouts":   len(report.Payouts),
		"failures":  len(report.Failures),
		"delivered": report.Delivered().Dec(),
		"archive":   report.ArchiveKey,
	})
	return report, nil
}

func (s *BettingService) persist(ctx context.Context, report *domain.SettlementReport) {
	if s.settlements != nil {
		if err := s.settlements.Save(ctx, *report); err != nil {
			s.logger.ErrorContext(ctx, "save settlement failed",
				slog.String("id", report.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.archiver == nil {
		return
	}

	key, err := s.archiver.Archive(ctx, *report)
	if err != nil {
		s.logger.ErrorContext(ctx, "archive settlement failed",
			slog.String("id", report.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	report.ArchiveKey = key
	if s.settlements != nil {
		if err := s.settlements.SetArchiveKey(ctx, report.ID, key); err != nil {
			s.logger.WarnContext(ctx, "record archive key failed",
				slog.String("id", report.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Mint credits amount to the given account on ledgers that support minting.
func (s *BettingService) Mint(ctx context.Context, to domain.Address, amount *uint256.Int) error {
	if s.admin == nil {
		return fmt.Errorf("betting_service: mint: %w", domain.ErrNotSupported)
	}
	if err := s.admin.MintTo(ctx, to, amount); err != nil {
		return fmt.Errorf("betting_service: mint: %w", err)
	}
	s.record(ctx, "mint", map[string]any{"to": to.Hex(), "amount": amount.Dec()})
	return nil
}

// Balance returns owner's token balance.
func (s *BettingService) Balance(ctx context.Context, owner domain.Address) (*uint256.Int, error) {
	if s.admin == nil {
		return nil, fmt.Errorf("betting_service: balance: %w", domain.ErrNotSupported)
	}
	bal, err := s.admin.BalanceOf(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("betting_service: balance: %w", err)
	}
	return bal, nil
}

// RecentSettlements lists stored settlement reports, newest first.
func (s *BettingService) RecentSettlements(ctx context.Context, limit int) ([]domain.SettlementReport, error) {
	if s.settlements == nil {
		return nil, fmt.Errorf("betting_service: settlements: %w", domain.ErrNotSupported)
	}
	return s.settlements.ListRecent(ctx, limit)
}

// Settlement returns one stored settlement report.
func (s *BettingService) Settlement(ctx context.Context, id string) (domain.SettlementReport, error) {
	if s.settlements == nil {
		return domain.SettlementReport{}, fmt.Errorf("betting_service: settlement: %w", domain.ErrNotSupported)
	}
	return s.settlements.GetByID(ctx, id)
}

// ArchivedSettlements loads every report archived for round from cold
// storage.
func (s *BettingService) ArchivedSettlements(ctx context.Context, round uint64) ([]domain.SettlementReport, error) {
	if s.archiver == nil {
		return nil, fmt.Errorf("betting_service: archive: %w", domain.ErrNotSupported)
	}
	keys, err := s.archiver.ListRound(ctx, round)
	if err != nil {
		return nil, fmt.Errorf("betting_service: archive round %d: %w", round, err)
	}
	reports := make([]domain.SettlementReport, 0, len(keys))
	for _, key := range keys {
		report, err := s.archiver.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("betting_service: archive round %d: %w", round, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// RoundEvents returns the indexed events of round in emission order.
func (s *BettingService) RoundEvents(ctx context.Context, round uint64) ([]domain.Event, error) {
	if s.events == nil {
		return nil, fmt.Errorf("betting_service: events: %w", domain.ErrNotSupported)
	}
	return s.events.ListByRound(ctx, round)
}

// AuditLog lists operator actions, newest first.
func (s *BettingService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return nil, fmt.Errorf("betting_service: audit: %w", domain.ErrNotSupported)
	}
	return s.audit.List(ctx, opts)
}

// mutate runs fn under the mutation lock. Only the wait for the lock honours
// ctx and is bounded by the lock TTL; fn runs on a context that is never
// cancelled so an engine call cannot stop halfway through its transfers.
func (s *BettingService) mutate(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	unlock, err := s.locks.Acquire(waitCtx, MutateLockKey, s.lockTTL)
	if err != nil {
		return fmt.Errorf("betting_service: %s: %w", op, err)
	}
	defer unlock()

	if err := fn(context.WithoutCancel(ctx)); err != nil {
		s.logger.DebugContext(ctx, "engine call rejected",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (s *BettingService) record(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if actor := domain.Actor(ctx); actor != "" {
		detail["actor"] = actor
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
