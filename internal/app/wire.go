package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	s3blob "github.com/npanium/zkLeaderboard/internal/blob/s3"
	"github.com/npanium/zkLeaderboard/internal/cache/memory"
	"github.com/npanium/zkLeaderboard/internal/cache/redis"
	"github.com/npanium/zkLeaderboard/internal/config"
	"github.com/npanium/zkLeaderboard/internal/crypto"
	"github.com/npanium/zkLeaderboard/internal/domain"
	"github.com/npanium/zkLeaderboard/internal/notify"
	"github.com/npanium/zkLeaderboard/internal/server/handler"
	"github.com/npanium/zkLeaderboard/internal/store/postgres"
	"github.com/npanium/zkLeaderboard/internal/token"
)

// engineLeaseKey is held for the life of the process by the one engine
// instance allowed against shared backends.
const engineLeaseKey = "betengine:engine"

// defaultCustody is the engine's account on the memory ledger when
// ledger.custody is not configured.
var defaultCustody = common.HexToAddress("0x000000000000000000000000000000000000cafe")

// Dependencies bundles every collaborator the engine and its service layer
// need. It is constructed by Wire and torn down by the returned cleanup
// function. Store and archive fields stay nil when their backend is disabled.
type Dependencies struct {
	// Value transfer
	Custody domain.Address
	Ledger  domain.TokenLedger
	Admin   domain.TokenAdmin
	// TokenAddress is the token contract, used by auto-init when engine.token
	// is not configured. Zero for the memory ledger.
	TokenAddress domain.Address

	// Stores
	AuditStore      domain.AuditStore
	EventStore      domain.EventStore
	SettlementStore domain.SettlementStore
	CursorStore     domain.CursorStore

	// Coordination
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Blob storage
	Archiver domain.SettlementArchiver

	// Notifications
	Notifier *notify.Notifier

	// Health lists the reachable backends reported by GET /api/health.
	Health map[string]handler.Pinger
}

// pingFunc adapts a health function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// usesInfra reports whether the mode connects to the configured backends.
// Standalone runs entirely in memory.
func usesInfra(mode string) bool {
	return mode != "standalone"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Health: map[string]handler.Pinger{}}
	mode := strings.ToLower(cfg.Mode)

	// --- Token ledger ---
	closeLedger, err := wireLedger(ctx, cfg, deps, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: ledger: %w", err))
	}
	if closeLedger != nil {
		closers = append(closers, closeLedger)
	}

	// --- PostgreSQL ---
	if usesInfra(mode) && cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
		deps.SettlementStore = postgres.NewSettlementStore(pool)
		deps.CursorStore = postgres.NewCursorStore(pool)
		deps.Health["postgres"] = pgClient
	}

	// --- Redis, or in-process fallbacks ---
	if usesInfra(mode) && cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		if policy, err := redisClient.EvictionPolicy(ctx); err != nil {
			logger.WarnContext(ctx, "redis eviction policy unknown", slog.String("error", err.Error()))
		} else if !redis.EvictionSafe(policy) {
			logger.WarnContext(ctx, "redis may evict engine locks under memory pressure",
				slog.String("maxmemory_policy", policy),
			)
		}

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, int64(cfg.Redis.StreamMaxLen))
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Health["redis"] = redisClient

		ttl := cfg.Redis.LockTTLDuration()
		release, err := claimEngineLease(ctx, deps.LockManager, ttl, ttl+time.Second)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, release)
	} else {
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus(cfg.Redis.StreamMaxLen)
		deps.RateLimiter = memory.NewRateLimiter()
	}

	// --- S3 settlement archive ---
	if usesInfra(mode) && cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), logger)
		deps.Health["s3"] = pingFunc(s3Client.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// claimEngineLease takes the single-instance lease. Engine state is kept in
// process memory, so a second instance would accept the same signed bets
// again. The wait covers the TTL of a previous holder that exited without
// releasing.
func claimEngineLease(ctx context.Context, locks domain.LockManager, ttl, wait time.Duration) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	release, err := locks.Acquire(waitCtx, engineLeaseKey, ttl)
	if err != nil {
		return nil, fmt.Errorf("engine lease %s is held by another instance: %w", engineLeaseKey, err)
	}
	return release, nil
}

// wireLedger selects the value-transfer backend and fills the ledger fields
// of deps. The returned function, when non-nil, releases the backend.
func wireLedger(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (func(), error) {
	switch strings.ToLower(cfg.Ledger.Backend) {
	case "erc20":
		signer, err := crypto.LoadSigner(crypto.KeyConfig{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("load custody key: %w", err)
		}
		erc, err := token.DialERC20(ctx, token.ERC20Config{
			RPCURL:       cfg.Chain.RPCURL,
			Contract:     common.HexToAddress(cfg.Chain.TokenContract),
			Key:          signer.PrivateKey(),
			GasLimit:     cfg.Chain.GasLimit,
			ReceiptPolls: cfg.Chain.ReceiptPolls,
			PollInterval: cfg.Chain.ReceiptIntervalDuration(),
		}, logger)
		if err != nil {
			return nil, err
		}
		deps.Custody = erc.Custody()
		deps.Ledger = erc
		deps.Admin = erc
		deps.TokenAddress = erc.Contract()
		logger.InfoContext(ctx, "erc20 ledger connected",
			slog.String("contract", erc.Contract().Hex()),
			slog.String("custody", deps.Custody.Hex()),
		)
		return erc.Close, nil

	default:
		custody := defaultCustody
		if cfg.Ledger.Custody != "" {
			custody = common.HexToAddress(cfg.Ledger.Custody)
		}
		mem := token.NewMemory()
		for addr, raw := range cfg.Ledger.Seed {
			amount, err := uint256.FromDecimal(raw)
			if err != nil {
				return nil, fmt.Errorf("seed %s: %w", addr, err)
			}
			mem.Mint(common.HexToAddress(addr), amount)
		}
		deps.Custody = custody
		deps.Ledger = mem.As(custody)
		deps.Admin = mem
		logger.InfoContext(ctx, "memory ledger ready",
			slog.String("custody", custody.Hex()),
			slog.Int("seeded_accounts", len(cfg.Ledger.Seed)),
		)
		return nil, nil
	}
}
