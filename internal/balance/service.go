// Package balance reads, waits for and watches account balances across chains.
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdkmath "cosmossdk.io/math"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/exezbcz/paraport/internal/cache"
	"github.com/exezbcz/paraport/internal/chain"
	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/metrics"
	"github.com/exezbcz/paraport/internal/retry"
	"github.com/exezbcz/paraport/internal/tracing"
)

const (
	defaultPollInterval   = 6 * time.Second
	defaultReserveTTL     = 10 * time.Minute
	defaultReserveEntries = 256
)

type reserveKey struct {
	chain model.Chain
	asset model.Asset
}

func (k reserveKey) String() string {
	return k.chain.String() + "/" + k.asset.String()
}

// Service answers balance questions on top of a chain.Client.
type Service struct {
	client       chain.Client
	watcher      chain.Watcher
	reserves     *cache.LRU[reserveKey, sdkmath.Int]
	waitPolicy   retry.Policy
	pollInterval time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
	nowFn        func() time.Time
}

type Option func(*Service)

// WithWaitPolicy overrides the WaitForFunds retry policy.
func WithWaitPolicy(p retry.Policy) Option {
	return func(s *Service) { s.waitPolicy = p }
}

// WithPollInterval sets the watch period for chains without push updates.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithReserveTTL sets how long existential reserves are cached.
func WithReserveTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.reserves = cache.NewLRU[reserveKey, sdkmath.Int](defaultReserveEntries, ttl, reserveKey.String)
		}
	}
}

// WithWatcher sets the push source used by SubscribeBalances. By default the
// client itself is used when it implements chain.Watcher.
func WithWatcher(w chain.Watcher) Option {
	return func(s *Service) { s.watcher = w }
}

func New(client chain.Client, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		client:       client,
		reserves:     cache.NewLRU[reserveKey, sdkmath.Int](defaultReserveEntries, defaultReserveTTL, reserveKey.String),
		waitPolicy:   retry.DefaultPolicy(),
		pollInterval: defaultPollInterval,
		logger:       logger.With("component", "balance"),
		tracer:       tracing.Tracer("paraport/balance"),
		nowFn:        time.Now,
	}
	if w, ok := client.(chain.Watcher); ok {
		s.watcher = w
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBalance queries one chain and derives the transferable amount.
func (s *Service) GetBalance(ctx context.Context, ch model.Chain, address string, asset model.Asset) (model.Balance, error) {
	raw, err := s.client.Balance(ctx, ch, address, asset)
	if err != nil {
		return model.Balance{}, fmt.Errorf("query %s balance on %s: %w", asset, ch, err)
	}
	reserve, err := s.reserve(ctx, ch, asset)
	if err != nil {
		return model.Balance{}, err
	}
	return model.NewBalance(ch, address, asset, raw, reserve), nil
}

func (s *Service) reserve(ctx context.Context, ch model.Chain, asset model.Asset) (sdkmath.Int, error) {
	v, hit, err := s.reserves.GetOrLoad(ctx, reserveKey{chain: ch, asset: asset}, func(ctx context.Context) (sdkmath.Int, error) {
		return s.client.ExistentialDeposit(ctx, ch, asset)
	})
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("query %s existential deposit on %s: %w", asset, ch, err)
	}
	if hit {
		metrics.ReserveCacheHits.WithLabelValues(ch.String()).Inc()
	} else {
		metrics.ReserveCacheMisses.WithLabelValues(ch.String()).Inc()
	}
	return v, nil
}

// GetBalances queries every chain concurrently. Any single failure fails
// the call. Results keep the order of chains.
func (s *Service) GetBalances(ctx context.Context, address string, asset model.Asset, chains []model.Chain) ([]model.Balance, error) {
	ctx, span := s.tracer.Start(ctx, "balance.get_balances", trace.WithAttributes(
		attribute.String("asset", asset.String()),
		attribute.Int("chains", len(chains)),
	))
	defer span.End()

	out := make([]model.Balance, len(chains))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range chains {
		g.Go(func() error {
			b, err := s.GetBalance(gctx, ch, address, asset)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

// HasEnoughBalance reports whether chain's transferable balance covers amount.
func (s *Service) HasEnoughBalance(ctx context.Context, ch model.Chain, address string, asset model.Asset, amount sdkmath.Int) (bool, error) {
	b, err := s.GetBalance(ctx, ch, address, asset)
	if err != nil {
		return false, err
	}
	return b.Transferable.GTE(amount), nil
}

// WaitForFunds polls chains until one holds at least amount transferable
// and returns that balance. It gives up with ErrFundsWaitExhausted once the
// wait policy runs out of attempts, or earlier on a terminal query error.
func (s *Service) WaitForFunds(ctx context.Context, address string, asset model.Asset, chains []model.Chain, amount sdkmath.Int) (model.Balance, error) {
	ctx, span := s.tracer.Start(ctx, "balance.wait_for_funds", trace.WithAttributes(
		attribute.String("asset", asset.String()),
		attribute.String("amount", amount.String()),
	))
	defer span.End()

	log := s.logger.With("address", address, "asset", asset, "amount", amount.String())
	started := s.nowFn()

	var found model.Balance
	attempts, err := s.waitPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		metrics.FundsWaitAttemptsTotal.WithLabelValues(asset.String()).Inc()
		balances, err := s.GetBalances(ctx, address, asset, chains)
		if err != nil {
			log.Warn("balance poll failed", "attempt", attempt, "error", err)
			return err
		}
		for _, b := range balances {
			if b.Transferable.GTE(amount) {
				found = b
				return nil
			}
		}
		log.Debug("funds not arrived yet", "attempt", attempt)
		return retry.ErrNotYet
	})

	elapsed := s.nowFn().Sub(started).Seconds()
	if err != nil {
		metrics.FundsWaitDuration.WithLabelValues(asset.String(), "failed").Observe(elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, retry.ErrExhausted) {
			return model.Balance{}, model.ErrFundsWaitExhausted.Wrapf("%s %s after %d attempts: %v", amount, asset, attempts, err)
		}
		return model.Balance{}, fmt.Errorf("wait for funds: %w", err)
	}
	metrics.FundsWaitDuration.WithLabelValues(asset.String(), "ok").Observe(elapsed)
	log.Info("funds available", "chain", found.Chain, "attempts", attempts)
	return found, nil
}
