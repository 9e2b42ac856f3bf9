package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exezbcz/paraport/internal/domain/model"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PARAPORT_CHAINS", "")
	t.Setenv("PARAPORT_BRIDGE_PROTOCOLS", "")
	t.Setenv("CATALOGUE_FILE", "")
	t.Setenv("SIM_FUNDS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, model.AllChains(), cfg.Engine.Chains)
	assert.Equal(t, []model.Protocol{model.ProtocolXCM}, cfg.Engine.Protocols)
	assert.Equal(t, 24*time.Second, cfg.Engine.XCMEstimatedTime)
	assert.Equal(t, 6*time.Second, cfg.Balance.PollInterval)
	assert.Equal(t, 100, cfg.Balance.FundsWaitMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Balance.FundsWaitMinDelay)
	assert.Equal(t, 10*time.Second, cfg.Balance.FundsWaitMaxDelay)
	assert.Equal(t, 10*time.Minute, cfg.Balance.ReserveCacheTTL)
	assert.Equal(t, float64(20), cfg.RPC.RateLimitRPS)
	assert.Equal(t, 5, cfg.RPC.RateLimitBurst)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.OpenTimeout)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Empty(t, cfg.Alert.SlackWebhookURL)
	assert.Equal(t, 5*time.Minute, cfg.Alert.Cooldown)
	assert.Empty(t, cfg.Relay.RedisURL)
	assert.Equal(t, "paraport:events", cfg.Relay.Stream)
	assert.Equal(t, 256, cfg.Relay.BufferSize)
	assert.Empty(t, cfg.Sim.Funds)
	assert.Equal(t, "info", cfg.Log.Level)

	cat := cfg.Catalogue.Catalogue()
	assert.Equal(t, []model.Chain{model.ChainPolkadot, model.ChainAssetHubPolkadot}, cat.Chains(model.AssetDOT))
	assert.Equal(t, []model.Asset{model.AssetDOT, model.AssetKSM}, cat.Assets())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PARAPORT_CHAINS", " polkadot , AssetHubPolkadot ")
	t.Setenv("PARAPORT_BRIDGE_PROTOCOLS", "xcm")
	t.Setenv("BALANCE_POLL_INTERVAL_MS", "1500")
	t.Setenv("FUNDS_WAIT_MAX_ATTEMPTS", "7")
	t.Setenv("FUNDS_WAIT_MIN_DELAY_MS", "100")
	t.Setenv("FUNDS_WAIT_MAX_DELAY_MS", "200")
	t.Setenv("RPC_RATE_LIMIT_RPS", "2.5")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("RELAY_REDIS_URL", "redis://redis:6379/0")
	t.Setenv("SIM_FUNDS", "AssetHubPolkadot=50000000000, Polkadot=0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []model.Chain{model.ChainPolkadot, model.ChainAssetHubPolkadot}, cfg.Engine.Chains)
	assert.Equal(t, []model.Protocol{model.ProtocolXCM}, cfg.Engine.Protocols)
	assert.Equal(t, 1500*time.Millisecond, cfg.Balance.PollInterval)
	assert.Equal(t, 7, cfg.Balance.FundsWaitMaxAttempts)
	assert.Equal(t, 2.5, cfg.RPC.RateLimitRPS)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
	assert.Equal(t, "redis://redis:6379/0", cfg.Relay.RedisURL)
	assert.Equal(t, map[model.Chain]string{
		model.ChainAssetHubPolkadot: "50000000000",
		model.ChainPolkadot:         "0",
	}, cfg.Sim.Funds)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsUnknownChain(t *testing.T) {
	t.Setenv("PARAPORT_CHAINS", "Polkadot,Westend")
	_, err := Load()
	assert.ErrorIs(t, err, model.ErrConfigValidation)
}

func TestLoad_RejectsUnsupportedProtocol(t *testing.T) {
	t.Setenv("PARAPORT_CHAINS", "")
	t.Setenv("PARAPORT_BRIDGE_PROTOCOLS", "XCM,Snowbridge")
	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfigValidation)
	assert.Contains(t, err.Error(), "SNOWBRIDGE")
}

func TestLoad_RejectsBadSimFunds(t *testing.T) {
	for _, raw := range []string{"Polkadot", "Westend=1", "Polkadot=-5", "Polkadot=abc"} {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("PARAPORT_CHAINS", "")
			t.Setenv("SIM_FUNDS", raw)
			_, err := Load()
			assert.ErrorIs(t, err, model.ErrConfigValidation)
		})
	}
}

func validConfig() *Config {
	return &Config{
		Engine: EngineConfig{Chains: model.AllChains(), Protocols: []model.Protocol{model.ProtocolXCM}},
		Balance: BalanceConfig{
			PollInterval:         time.Second,
			FundsWaitMaxAttempts: 3,
			FundsWaitMinDelay:    time.Second,
			FundsWaitMaxDelay:    2 * time.Second,
		},
		RPC:       RPCConfig{RateLimitRPS: 1, RateLimitBurst: 1},
		Tracing:   TracingConfig{SampleRatio: 1},
		Catalogue: DefaultCatalogueFile(),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no chains", func(c *Config) { c.Engine.Chains = nil }},
		{"no protocols", func(c *Config) { c.Engine.Protocols = nil }},
		{"zero attempts", func(c *Config) { c.Balance.FundsWaitMaxAttempts = 0 }},
		{"inverted delay window", func(c *Config) { c.Balance.FundsWaitMaxDelay = time.Millisecond }},
		{"zero poll", func(c *Config) { c.Balance.PollInterval = 0 }},
		{"zero rps", func(c *Config) { c.RPC.RateLimitRPS = 0 }},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }},
		{"relay without stream", func(c *Config) {
			c.Relay.RedisURL = "redis://localhost:6379"
			c.Relay.Stream = ""
		}},
		{"empty catalogue", func(c *Config) { c.Catalogue = CatalogueFile{} }},
	}
	require.NoError(t, validConfig().validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.validate(), model.ErrConfigValidation)
		})
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCatalogueFile(t *testing.T) {
	path := writeFile(t, `
assets:
  - symbol: DOT
    decimals: 10
    chains:
      - chain: AssetHubPolkadot
        existentialDeposit: "100000000"
      - chain: polkadot
        existentialDeposit: "10000000000"
  - symbol: USDT
    decimals: 6
    chains:
      - chain: AssetHubPolkadot
        id: "1984"
`)
	f, err := LoadCatalogueFile(path)
	require.NoError(t, err)

	resolved, err := f.Resolve()
	require.NoError(t, err)
	require.Len(t, resolved, 3)
	assert.Equal(t, model.ChainAssetHubPolkadot, resolved[0].Chain)
	assert.Equal(t, "100000000", resolved[0].ExistentialDeposit.String())
	assert.Equal(t, uint8(10), resolved[1].Info.Decimals)
	assert.Equal(t, "1984", resolved[2].Info.ID)
	assert.True(t, resolved[2].ExistentialDeposit.IsZero())

	cat := f.Catalogue()
	assert.Equal(t, []model.Chain{model.ChainAssetHubPolkadot, model.ChainPolkadot}, cat.Chains(model.AssetDOT))
	assert.True(t, cat.Supports(model.ChainAssetHubPolkadot, "USDT"))
}

func TestLoadCatalogueFile_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":      "assets: [",
		"unknown chain": "assets:\n  - symbol: DOT\n    chains:\n      - chain: Westend\n",
		"bad deposit":   "assets:\n  - symbol: DOT\n    chains:\n      - chain: Polkadot\n        existentialDeposit: \"-1\"\n",
		"duplicate":     "assets:\n  - symbol: DOT\n    chains:\n      - chain: Polkadot\n      - chain: polkadot\n",
		"no chains":     "assets:\n  - symbol: DOT\n",
		"empty":         "assets: []\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCatalogueFile(writeFile(t, body))
			assert.ErrorIs(t, err, model.ErrConfigValidation)
		})
	}

	_, err := LoadCatalogueFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetEnvInt_InvalidValue(t *testing.T) {
	t.Setenv("TEST_INT", "not_a_number")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))
}

func TestGetEnvInt_ValidValue(t *testing.T) {
	t.Setenv("TEST_INT", "99")
	assert.Equal(t, 99, getEnvInt("TEST_INT", 42))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	assert.True(t, getEnvBool("TEST_BOOL", true), "unparsable falls back")
	t.Setenv("TEST_BOOL", "false")
	assert.False(t, getEnvBool("TEST_BOOL", true))
}
