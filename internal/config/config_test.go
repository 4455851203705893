package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	require := require.New(t)

	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Engine.AutoInit = true
	cfg.Engine.Treasury = "not-an-address"
	cfg.Ledger.Backend = "erc20"
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(err)
	msg := err.Error()
	require.Contains(msg, `unknown mode "trade"`)
	require.Contains(msg, `unknown log_level "loud"`)
	require.Contains(msg, "engine.operator must be set")
	require.Contains(msg, "engine.treasury")
	require.Contains(msg, "chain.token_contract must be set")
	require.Contains(msg, "private_key or encrypted_key_path")
	require.Contains(msg, "server: port")
}

func TestValidateFullModeNeedsInfrastructure(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "postgres: must be enabled in full mode")
	require.Contains(t, err.Error(), "redis: must be enabled in full mode")

	cfg.Postgres.Enabled = true
	cfg.Redis.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestValidateSeedBalances(t *testing.T) {
	cfg := Defaults()
	cfg.Ledger.Seed = map[string]string{
		"0x00000000000000000000000000000000000000b1": "1000",
		"bob": "lots",
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), `"bob" is not an address`)
	require.Contains(t, err.Error(), `amount "lots"`)
}

func TestLoadMergesFileAndEnvironment(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "betengine.toml")
	require.NoError(os.WriteFile(path, []byte(`
mode = "server"

[engine]
operator = "0x00000000000000000000000000000000000000a1"
treasury = "0x00000000000000000000000000000000000000a2"
auto_init = true

[redis]
enabled = true
lock_ttl = "10s"

[ledger.seed]
"0x00000000000000000000000000000000000000b1" = "5000"
`), 0o600))

	t.Setenv("BETENGINE_SERVER_PORT", "9090")
	t.Setenv("BETENGINE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BETENGINE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(err)
	require.NoError(cfg.Validate())

	require.Equal("server", cfg.Mode)
	require.Equal("debug", cfg.LogLevel)
	require.Equal(9090, cfg.Server.Port)
	require.Equal([]string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(10*time.Second, cfg.Redis.LockTTLDuration())
	require.Equal("5000", cfg.Ledger.Seed["0x00000000000000000000000000000000000000b1"])
	// untouched defaults survive the merge
	require.Equal("betengine-settlements", cfg.S3.Bucket)
	require.Equal(time.Minute, cfg.Server.RelayWindowDuration())
}

func TestRedactedConfig(t *testing.T) {
	require := require.New(t)

	cfg := Defaults()
	cfg.Chain.PrivateKey = "0xdeadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "secret"
	cfg.Notify.TelegramToken = ""

	out := RedactedConfig(&cfg)
	require.Equal("***", out.Chain.PrivateKey)
	require.Equal("***", out.Postgres.Password)
	require.Equal("***", out.Server.APIKey)
	require.Empty(out.Notify.TelegramToken)

	out.Server.CORSOrigins[0] = "mutated"
	require.Equal("http://localhost:3000", cfg.Server.CORSOrigins[0])
	require.Equal("0xdeadbeef", cfg.Chain.PrivateKey)
}

func TestValidateSharedServerNeedsLease(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	require.NoError(t, cfg.Validate())

	cfg.Postgres.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "single engine instance lease")

	cfg.Redis.Enabled = true
	require.NoError(t, cfg.Validate())
}
