// Package config defines the top-level configuration for the settlement
// engine service and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BETENGINE_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Chain    ChainConfig    `toml:"chain"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the principals recorded by Init.
type EngineConfig struct {
	Operator string `toml:"operator"`
	Treasury string `toml:"treasury"`
	Token    string `toml:"token"`
	// AutoInit runs Init at startup with the principals above.
	AutoInit bool `toml:"auto_init"`
}

// ChainConfig holds the JSON-RPC endpoint and the custody key that signs
// token transfers.
type ChainConfig struct {
	RPCURL           string   `toml:"rpc_url"`
	ChainID          int64    `toml:"chain_id"`
	TokenContract    string   `toml:"token_contract"`
	PrivateKey       string   `toml:"private_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	GasLimit         uint64   `toml:"gas_limit"`
	ReceiptPolls     int      `toml:"receipt_polls"`
	ReceiptInterval  duration `toml:"receipt_interval"`
}

// LedgerConfig selects the value-transfer backend.
type LedgerConfig struct {
	// Backend is "memory" or "erc20".
	Backend string `toml:"backend"`
	// Custody is the engine's account on the memory ledger; a fixed internal
	// address is used when empty. The erc20 backend derives custody from the
	// chain key.
	Custody string `toml:"custody"`
	// Seed mints balances into the memory ledger at startup, keyed by address.
	Seed map[string]string `toml:"seed"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Engine state lives in
// process memory, so only one instance may run against shared backends. With
// Redis enabled the instance holds the engine lease and a second instance
// refuses to start.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	StreamMaxLen int      `toml:"stream_max_len"`
	LockTTL      duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards operator routes. Empty disables the check.
	APIKey string `toml:"api_key"`
	// PreviousAPIKey is still accepted while clients move to a new APIKey.
	PreviousAPIKey string `toml:"previous_api_key"`
	// RelayLimit is the number of relayed bets one client may submit per
	// RelayWindow.
	RelayLimit  int      `toml:"relay_limit"`
	RelayWindow duration `toml:"relay_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:          "http://localhost:8545",
			ChainID:         31337,
			GasLimit:        150_000,
			ReceiptPolls:    30,
			ReceiptInterval: duration{2 * time.Second},
		},
		Ledger: LedgerConfig{
			Backend: "memory",
			Seed:    map[string]string{},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "betengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
			LockTTL:      duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "betengine-settlements",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RelayLimit:  30,
			RelayWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"window_started", "window_closed", "settlement_completed", "payout_failed"},
		},
		Mode:     "standalone",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"standalone": true,
	"server":     true,
	"full":       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: standalone, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine principals
	if c.Engine.AutoInit {
		checkAddr(&errs, "engine.operator", c.Engine.Operator, true)
		checkAddr(&errs, "engine.treasury", c.Engine.Treasury, true)
	}
	checkAddr(&errs, "engine.token", c.Engine.Token, false)

	// Ledger
	switch strings.ToLower(c.Ledger.Backend) {
	case "memory":
		checkAddr(&errs, "ledger.custody", c.Ledger.Custody, false)
		for addr, amount := range c.Ledger.Seed {
			if !common.IsHexAddress(addr) {
				errs = append(errs, fmt.Sprintf("ledger.seed: %q is not an address", addr))
			}
			if _, ok := new(big.Int).SetString(amount, 10); !ok {
				errs = append(errs, fmt.Sprintf("ledger.seed: amount %q for %s is not a base-10 integer", amount, addr))
			}
		}
	case "erc20":
		if mode == "standalone" {
			errs = append(errs, "ledger: backend erc20 is not available in standalone mode")
		}
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty for the erc20 backend")
		}
		checkAddr(&errs, "chain.token_contract", c.Chain.TokenContract, true)
		if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
			errs = append(errs, "chain: either private_key or encrypted_key_path must be set for the erc20 backend")
		}
		if c.Chain.EncryptedKeyPath != "" && c.Chain.KeyPassword == "" {
			errs = append(errs, "chain: key_password is required when encrypted_key_path is set")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: memory, erc20)", c.Ledger.Backend))
	}

	// full mode runs the event indexer, which needs every store.
	if mode == "full" {
		if !c.Postgres.Enabled {
			errs = append(errs, "postgres: must be enabled in full mode")
		}
		if !c.Redis.Enabled {
			errs = append(errs, "redis: must be enabled in full mode")
		}
	}

	// A server sharing a real ledger or database must hold the engine lease.
	if c.Server.PreviousAPIKey != "" && c.Server.APIKey == "" {
		errs = append(errs, "server: previous_api_key requires api_key")
	}
	if mode == "server" && !c.Redis.Enabled {
		if c.Postgres.Enabled || strings.EqualFold(c.Ledger.Backend, "erc20") {
			errs = append(errs, "redis: must be enabled in server mode with postgres or the erc20 ledger (single engine instance lease)")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be positive")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RelayLimit < 0 {
			errs = append(errs, "server: relay_limit must be >= 0")
		}
		if c.Server.RelayLimit > 0 && c.Server.RelayWindow.Duration <= 0 {
			errs = append(errs, "server: relay_window must be positive when relay_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkAddr(errs *[]string, field, value string, required bool) {
	if value == "" {
		if required {
			*errs = append(*errs, field+" must be set")
		}
		return
	}
	if !common.IsHexAddress(value) {
		*errs = append(*errs, fmt.Sprintf("%s: %q is not a hex address", field, value))
	}
}

// RelayWindowDuration returns the relayer rate-limit window.
func (s ServerConfig) RelayWindowDuration() time.Duration { return s.RelayWindow.Duration }

// LockTTLDuration returns the mutation lock TTL.
func (r RedisConfig) LockTTLDuration() time.Duration { return r.LockTTL.Duration }

// ReceiptIntervalDuration returns the delay between receipt polls.
func (c ChainConfig) ReceiptIntervalDuration() time.Duration { return c.ReceiptInterval.Duration }
