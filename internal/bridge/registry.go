package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/exezbcz/paraport/internal/circuitbreaker"
	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/metrics"
	"github.com/exezbcz/paraport/internal/tracing"
)

// Registry maps protocol names to adapters. Quotes are fetched from every
// adapter and one adapter failing never affects the others.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.Protocol]Adapter
	breakers map[model.Protocol]*circuitbreaker.Breaker
	order    []model.Protocol
	breaker  circuitbreaker.Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewRegistry(logger *slog.Logger, breaker circuitbreaker.Config) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		adapters: make(map[model.Protocol]Adapter),
		breakers: make(map[model.Protocol]*circuitbreaker.Breaker),
		breaker:  breaker,
		logger:   logger.With("component", "bridge_registry"),
		tracer:   tracing.Tracer("paraport/bridge"),
	}
}

// Register adds or replaces the adapter for its protocol.
func (r *Registry) Register(a Adapter) {
	p := a.Protocol()
	cfg := r.breaker
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		metrics.QuoteBreakerState.WithLabelValues(p.String()).Set(float64(to))
		r.logger.Warn("quote breaker state changed", "protocol", p, "from", from.String(), "to", to.String())
		if userHook != nil {
			userHook(from, to)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[p]; !exists {
		r.order = append(r.order, p)
	}
	r.adapters[p] = a
	r.breakers[p] = circuitbreaker.New(cfg)
}

// Get returns the adapter for protocol or ErrProtocolNotFound.
func (r *Registry) Get(protocol model.Protocol) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[protocol]
	if !ok {
		return nil, model.ErrProtocolNotFound.Wrap(protocol.String())
	}
	return a, nil
}

// GetAll returns adapters in registration order.
func (r *Registry) GetAll() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.adapters[p])
	}
	return out
}

// InitializeAll initializes every adapter concurrently.
func (r *Registry) InitializeAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range r.GetAll() {
		g.Go(func() error {
			return a.Initialize(gctx)
		})
	}
	return g.Wait()
}

// Quotes asks every adapter for a quote concurrently and returns the ones
// received, in registration order. Errors and open breakers count as "no
// quote" and are only logged.
func (r *Registry) Quotes(ctx context.Context, params QuoteParams) []model.Quote {
	ctx, span := r.tracer.Start(ctx, "bridge.quotes", trace.WithAttributes(
		attribute.String("asset", params.Asset.String()),
		attribute.String("destination", params.Destination.String()),
	))
	defer span.End()

	r.mu.RLock()
	protocols := append([]model.Protocol(nil), r.order...)
	adapters := make([]Adapter, len(protocols))
	breakers := make([]*circuitbreaker.Breaker, len(protocols))
	for i, p := range protocols {
		adapters[i] = r.adapters[p]
		breakers[i] = r.breakers[p]
	}
	r.mu.RUnlock()

	results := make([]*model.Quote, len(adapters))
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = r.quoteOne(ctx, a, breakers[i], params)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	span.SetAttributes(attribute.Int("quotes", len(out)))
	return out
}

func (r *Registry) quoteOne(ctx context.Context, a Adapter, b *circuitbreaker.Breaker, params QuoteParams) *model.Quote {
	protocol := a.Protocol().String()
	log := r.logger.With("protocol", protocol)

	start := time.Now()
	var q *model.Quote
	err := b.Execute(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("quote panicked", "panic", rec)
				err = errors.New("quote panicked")
			}
		}()
		q, err = a.Quote(ctx, params)
		return err
	})
	metrics.QuoteLatency.WithLabelValues(protocol).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		metrics.QuoteResultsTotal.WithLabelValues(protocol, "breaker_open").Inc()
		log.Debug("quote skipped, breaker open")
		return nil
	case err != nil:
		metrics.QuoteResultsTotal.WithLabelValues(protocol, "error").Inc()
		log.Warn("quote failed", "error", err)
		return nil
	case q == nil:
		metrics.QuoteResultsTotal.WithLabelValues(protocol, "none").Inc()
		return nil
	}
	metrics.QuoteResultsTotal.WithLabelValues(protocol, "ok").Inc()
	return q
}
