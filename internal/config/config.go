package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/exezbcz/paraport/internal/domain/model"
)

type Config struct {
	Engine    EngineConfig
	Balance   BalanceConfig
	RPC       RPCConfig
	Breaker   BreakerConfig
	Catalogue CatalogueFile
	Server    ServerConfig
	Tracing   TracingConfig
	Alert     AlertConfig
	Relay     RelayConfig
	Sim       SimConfig
	Log       LogConfig
}

type EngineConfig struct {
	Chains           []model.Chain
	Protocols        []model.Protocol
	XCMEstimatedTime time.Duration
}

type BalanceConfig struct {
	PollInterval         time.Duration
	FundsWaitMaxAttempts int
	FundsWaitMinDelay    time.Duration
	FundsWaitMaxDelay    time.Duration
	ReserveCacheTTL      time.Duration
}

type RPCConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

type BreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

type ServerConfig struct {
	MetricsPort int
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Cooldown        time.Duration
}

type RelayConfig struct {
	RedisURL   string
	Stream     string
	BufferSize int
	MaxLen     int64
}

// SimConfig seeds the simulated ledger used by the demo binary.
type SimConfig struct {
	Address   string
	Funds     map[model.Chain]string
	BlockTime time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Engine: EngineConfig{
			XCMEstimatedTime: time.Duration(getEnvInt("XCM_ESTIMATED_TIME_MS", 24000)) * time.Millisecond,
		},
		Balance: BalanceConfig{
			PollInterval:         time.Duration(getEnvInt("BALANCE_POLL_INTERVAL_MS", 6000)) * time.Millisecond,
			FundsWaitMaxAttempts: getEnvInt("FUNDS_WAIT_MAX_ATTEMPTS", 100),
			FundsWaitMinDelay:    time.Duration(getEnvInt("FUNDS_WAIT_MIN_DELAY_MS", 5000)) * time.Millisecond,
			FundsWaitMaxDelay:    time.Duration(getEnvInt("FUNDS_WAIT_MAX_DELAY_MS", 10000)) * time.Millisecond,
			ReserveCacheTTL:      time.Duration(getEnvInt("RESERVE_CACHE_TTL_SEC", 600)) * time.Second,
		},
		RPC: RPCConfig{
			RateLimitRPS:   getEnvFloat("RPC_RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvInt("RPC_RATE_LIMIT_BURST", 5),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvInt("QUOTE_BREAKER_FAILURES", 5),
			OpenTimeout:      time.Duration(getEnvInt("QUOTE_BREAKER_OPEN_SEC", 30)) * time.Second,
		},
		Server: ServerConfig{
			MetricsPort: getEnvInt("METRICS_PORT", 9090),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_ENDPOINT", "localhost:4317"),
			Insecure:    getEnvBool("TRACING_INSECURE", true),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("ALERT_SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:        time.Duration(getEnvInt("ALERT_COOLDOWN_SEC", 300)) * time.Second,
		},
		Relay: RelayConfig{
			RedisURL:   getEnv("RELAY_REDIS_URL", ""),
			Stream:     getEnv("RELAY_STREAM", "paraport:events"),
			BufferSize: getEnvInt("RELAY_BUFFER_SIZE", 256),
			MaxLen:     int64(getEnvInt("RELAY_STREAM_MAXLEN", 10000)),
		},
		Sim: SimConfig{
			Address:   getEnv("SIM_ADDRESS", "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"),
			BlockTime: time.Duration(getEnvInt("SIM_BLOCK_TIME_MS", 500)) * time.Millisecond,
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	chains, err := parseChains(getEnv("PARAPORT_CHAINS", "Polkadot,AssetHubPolkadot,Kusama,AssetHubKusama"))
	if err != nil {
		return nil, err
	}
	cfg.Engine.Chains = chains

	for _, p := range getEnvList("PARAPORT_BRIDGE_PROTOCOLS", "XCM") {
		cfg.Engine.Protocols = append(cfg.Engine.Protocols, model.Protocol(strings.ToUpper(p)))
	}

	cfg.Catalogue = DefaultCatalogueFile()
	if path := getEnv("CATALOGUE_FILE", ""); path != "" {
		file, err := LoadCatalogueFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Catalogue = file
	}

	funds, err := parseFunds(getEnv("SIM_FUNDS", ""))
	if err != nil {
		return nil, err
	}
	cfg.Sim.Funds = funds

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Engine.Chains) == 0 {
		return model.ErrConfigValidation.Wrap("PARAPORT_CHAINS must list at least one chain")
	}
	if len(c.Engine.Protocols) == 0 {
		return model.ErrConfigValidation.Wrap("at least one bridge protocol must be specified")
	}
	for _, p := range c.Engine.Protocols {
		if p != model.ProtocolXCM {
			return model.ErrConfigValidation.Wrapf("unsupported bridge protocol %q", p)
		}
	}
	if c.Balance.FundsWaitMaxAttempts <= 0 {
		return model.ErrConfigValidation.Wrap("FUNDS_WAIT_MAX_ATTEMPTS must be positive")
	}
	if c.Balance.FundsWaitMinDelay <= 0 || c.Balance.FundsWaitMaxDelay < c.Balance.FundsWaitMinDelay {
		return model.ErrConfigValidation.Wrapf("funds wait delay window %s..%s is invalid",
			c.Balance.FundsWaitMinDelay, c.Balance.FundsWaitMaxDelay)
	}
	if c.Balance.PollInterval <= 0 {
		return model.ErrConfigValidation.Wrap("BALANCE_POLL_INTERVAL_MS must be positive")
	}
	if c.RPC.RateLimitRPS <= 0 || c.RPC.RateLimitBurst <= 0 {
		return model.ErrConfigValidation.Wrap("RPC rate limit must be positive")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return model.ErrConfigValidation.Wrapf("TRACING_SAMPLE_RATIO %v must be within [0,1]", c.Tracing.SampleRatio)
	}
	if c.Relay.RedisURL != "" && c.Relay.Stream == "" {
		return model.ErrConfigValidation.Wrap("RELAY_STREAM is required when RELAY_REDIS_URL is set")
	}
	if err := c.Catalogue.validate(); err != nil {
		return err
	}
	return nil
}

func parseChains(raw string) ([]model.Chain, error) {
	var chains []model.Chain
	for _, name := range splitList(raw) {
		ch, ok := model.ParseChain(name)
		if !ok {
			return nil, model.ErrConfigValidation.Wrapf("unknown chain %q", name)
		}
		chains = append(chains, ch)
	}
	return chains, nil
}

// parseFunds reads "Chain=amount,Chain=amount" in plancks.
func parseFunds(raw string) (map[model.Chain]string, error) {
	funds := make(map[model.Chain]string)
	for _, pair := range splitList(raw) {
		name, amount, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, model.ErrConfigValidation.Wrapf("SIM_FUNDS entry %q must be chain=amount", pair)
		}
		ch, ok := model.ParseChain(name)
		if !ok {
			return nil, model.ErrConfigValidation.Wrapf("SIM_FUNDS: unknown chain %q", name)
		}
		amount = strings.TrimSpace(amount)
		if _, err := strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, model.ErrConfigValidation.Wrapf("SIM_FUNDS: invalid amount %q for %s", amount, ch)
		}
		funds[ch] = amount
	}
	return funds, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	return splitList(getEnv(key, fallback))
}

