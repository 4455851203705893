package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BETENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BETENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Operator, "BETENGINE_ENGINE_OPERATOR")
	setStr(&cfg.Engine.Treasury, "BETENGINE_ENGINE_TREASURY")
	setStr(&cfg.Engine.Token, "BETENGINE_ENGINE_TOKEN")
	setBool(&cfg.Engine.AutoInit, "BETENGINE_ENGINE_AUTO_INIT")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "BETENGINE_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "BETENGINE_CHAIN_ID")
	setStr(&cfg.Chain.TokenContract, "BETENGINE_CHAIN_TOKEN_CONTRACT")
	setStr(&cfg.Chain.PrivateKey, "BETENGINE_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "BETENGINE_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "BETENGINE_CHAIN_KEY_PASSWORD")
	setUint64(&cfg.Chain.GasLimit, "BETENGINE_CHAIN_GAS_LIMIT")
	setInt(&cfg.Chain.ReceiptPolls, "BETENGINE_CHAIN_RECEIPT_POLLS")
	setDuration(&cfg.Chain.ReceiptInterval, "BETENGINE_CHAIN_RECEIPT_INTERVAL")

	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "BETENGINE_LEDGER_BACKEND")
	setStr(&cfg.Ledger.Custody, "BETENGINE_LEDGER_CUSTODY")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "BETENGINE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "BETENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "BETENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BETENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BETENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BETENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BETENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BETENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BETENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BETENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BETENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BETENGINE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BETENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BETENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BETENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BETENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BETENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BETENGINE_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "BETENGINE_REDIS_STREAM_MAX_LEN")
	setDuration(&cfg.Redis.LockTTL, "BETENGINE_REDIS_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BETENGINE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BETENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BETENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "BETENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BETENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BETENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BETENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BETENGINE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BETENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BETENGINE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BETENGINE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BETENGINE_SERVER_API_KEY")
	setStr(&cfg.Server.PreviousAPIKey, "BETENGINE_SERVER_PREVIOUS_API_KEY")
	setInt(&cfg.Server.RelayLimit, "BETENGINE_SERVER_RELAY_LIMIT")
	setDuration(&cfg.Server.RelayWindow, "BETENGINE_SERVER_RELAY_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BETENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BETENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BETENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BETENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BETENGINE_MODE")
	setStr(&cfg.LogLevel, "BETENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
