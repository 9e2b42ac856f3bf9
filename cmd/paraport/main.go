package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/exezbcz/paraport/internal/alert"
	"github.com/exezbcz/paraport/internal/chain/ratelimit"
	"github.com/exezbcz/paraport/internal/chain/sim"
	"github.com/exezbcz/paraport/internal/config"
	"github.com/exezbcz/paraport/internal/domain/event"
	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/engine"
	"github.com/exezbcz/paraport/internal/relay"
	"github.com/exezbcz/paraport/internal/tracing"
)

var newRedisSink = func(ctx context.Context, url string, maxLen int64) (relay.Sink, error) {
	return relay.NewRedisSink(ctx, url, maxLen)
}

type cliFlags struct {
	address string
	chain   string
	asset   string
	amount  string
	mode    string
}

func parseFlags(args []string, defaultAddress string) (cliFlags, error) {
	fs := flag.NewFlagSet("paraport", flag.ContinueOnError)
	var f cliFlags
	fs.StringVar(&f.address, "address", defaultAddress, "account to fund")
	fs.StringVar(&f.chain, "chain", string(model.ChainAssetHubPolkadot), "destination chain")
	fs.StringVar(&f.asset, "asset", string(model.AssetDOT), "asset symbol")
	fs.StringVar(&f.amount, "amount", "", "target amount in plancks")
	fs.StringVar(&f.mode, "mode", string(model.TeleportModeExpected), "teleport mode: expected, exact or only")
	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return f, nil
}

func (f cliFlags) sessionParams() (model.SessionParams, error) {
	ch, ok := model.ParseChain(f.chain)
	if !ok {
		return model.SessionParams{}, fmt.Errorf("unknown chain %q", f.chain)
	}
	amount, ok := sdkmath.NewIntFromString(strings.TrimSpace(f.amount))
	if !ok {
		return model.SessionParams{}, fmt.Errorf("invalid amount %q", f.amount)
	}
	mode, ok := model.ParseTeleportMode(strings.ToLower(f.mode))
	if !ok {
		return model.SessionParams{}, fmt.Errorf("unknown teleport mode %q", f.mode)
	}
	return model.SessionParams{
		Address: f.address,
		Chain:   ch,
		Asset:   model.Asset(strings.ToUpper(f.asset)),
		Amount:  amount,
		Mode:    mode,
	}, nil
}

// buildLedger creates the simulated chains and seeds the configured account.
func buildLedger(cfg *config.Config, logger *slog.Logger) (*sim.Ledger, error) {
	assets, err := cfg.Catalogue.Resolve()
	if err != nil {
		return nil, err
	}
	ledger := sim.New(assets, logger, sim.WithBlockTime(cfg.Sim.BlockTime))
	for ch, raw := range cfg.Sim.Funds {
		amount, ok := sdkmath.NewIntFromString(raw)
		if !ok || amount.IsNegative() {
			return nil, model.ErrConfigValidation.Wrapf("sim funds for %s: invalid amount %q", ch, raw)
		}
		for _, a := range assets {
			if a.Chain != ch {
				continue
			}
			if err := ledger.Fund(ch, cfg.Sim.Address, a.Info.Symbol, amount); err != nil {
				return nil, err
			}
		}
	}
	return ledger, nil
}

func resolveRelaySink(ctx context.Context, cfg config.RelayConfig, logger *slog.Logger) (relay.Sink, error) {
	url := strings.TrimSpace(cfg.RedisURL)
	if url == "" {
		return relay.NewMemorySink(), nil
	}
	sink, err := newRedisSink(ctx, url, cfg.MaxLen)
	if err != nil {
		return nil, fmt.Errorf("initialize redis relay: %w", err)
	}
	logger.Info("redis relay enabled", "stream", cfg.Stream)
	return sink, nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	flags, err := parseFlags(os.Args[1:], cfg.Sim.Address)
	if err != nil {
		os.Exit(2)
	}
	params, err := flags.sessionParams()
	if err != nil {
		logger.Error("invalid session flags", "error", err)
		os.Exit(2)
	}

	logger.Info("starting paraport",
		"chains", len(cfg.Engine.Chains),
		"protocols", cfg.Engine.Protocols,
		"destination", params.Chain,
		"asset", params.Asset,
		"amount", params.Amount.String(),
		"mode", params.Mode,
	)

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), "paraport", tracingEndpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, err := buildLedger(cfg, logger)
	if err != nil {
		logger.Error("failed to build ledger", "error", err)
		os.Exit(1)
	}
	client := ratelimit.Wrap(ledger, cfg.RPC.RateLimitRPS, cfg.RPC.RateLimitBurst)

	sink, err := resolveRelaySink(ctx, cfg.Relay, logger)
	if err != nil {
		logger.Error("failed to initialize relay", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(engine.ConfigFrom(cfg), client, logger,
		engine.WithRouteBuilder(ledger),
		engine.WithWatcher(ledger),
		engine.WithRelay(relay.NewPublisher(sink, cfg.Relay.Stream, cfg.Relay.BufferSize, logger)),
		engine.WithAlerter(alert.FromURLs(cfg.Alert.SlackWebhookURL, cfg.Alert.WebhookURL, cfg.Alert.Cooldown, logger)),
	)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	defer eng.Destroy()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.MetricsPort, logger)
	})

	g.Go(func() error {
		defer cancel()
		return runSession(gCtx, eng, params, logger)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("paraport exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("paraport shut down gracefully")
}

// runSession opens a session for params, executes it when a teleport is
// needed and possible, and returns once it settles or ctx ends.
func runSession(ctx context.Context, eng *engine.Engine, params model.SessionParams, logger *slog.Logger) error {
	if err := eng.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	settled := make(chan model.Session, 1)
	notify := func(s model.Session) {
		select {
		case settled <- s:
		default:
		}
	}
	defer eng.OnSession(event.SessionCompleted, notify)()
	defer eng.OnSession(event.SessionFailed, notify)()

	s, err := eng.InitSession(ctx, params)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	log := logger.With("session_id", s.ID)
	log.Info("session ready",
		"status", s.Status,
		"funds_needed", s.Funds.Needed,
		"funds_available", s.Funds.Available,
		"no_funds_at_all", s.Funds.NoFundsAtAll,
	)

	switch {
	case !s.Funds.Needed:
		log.Info("destination already holds the requested amount")
		return nil
	case !s.Funds.Available:
		log.Warn("no route can fund the destination")
		return nil
	}

	q := s.Quotes.Selected
	log.Info("executing teleport",
		"origin", q.Route.Origin,
		"protocol", q.Route.Protocol,
		"amount", q.Amount.String(),
		"fee", q.Fees.Total.String(),
		"total", q.Total.String(),
	)
	teleportID, err := eng.ExecuteSession(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("execute session: %w", err)
	}

	select {
	case done := <-settled:
		if done.Status == model.SessionStatusFailed {
			return fmt.Errorf("teleport %s failed: %s", teleportID, done.Error)
		}
		log.Info("teleport completed", "teleport_id", teleportID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
