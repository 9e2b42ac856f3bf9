// Package xcm implements the bridge adapter for XCM transfers between
// relay chains and their system parachains.
package xcm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/exezbcz/paraport/internal/bridge"
	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/subscription"
	"github.com/exezbcz/paraport/internal/tracing"
)

const defaultEstimatedTime = 24 * time.Second

var _ bridge.Adapter = (*Adapter)(nil)

type Config struct {
	// Chains restricts routing to these chains. Empty means every catalogue chain.
	Chains        []model.Chain
	Catalogue     model.Catalogue
	EstimatedTime time.Duration
}

type Adapter struct {
	cfg         Config
	balances    BalanceReader
	builder     RouteBuilder
	initialized atomic.Bool
	logger      *slog.Logger
	tracer      trace.Tracer
}

func New(cfg Config, balances BalanceReader, builder RouteBuilder, logger *slog.Logger) *Adapter {
	if cfg.EstimatedTime <= 0 {
		cfg.EstimatedTime = defaultEstimatedTime
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:      cfg,
		balances: balances,
		builder:  builder,
		logger:   logger.With("component", "xcm_adapter"),
		tracer:   tracing.Tracer("paraport/bridge/xcm"),
	}
}

func (a *Adapter) Protocol() model.Protocol {
	return model.ProtocolXCM
}

// Initialize opens connections to every configured chain.
func (a *Adapter) Initialize(ctx context.Context) error {
	if !a.initialized.CompareAndSwap(false, true) {
		return model.ErrAlreadyInitialized.Wrap("xcm adapter")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range a.chains() {
		g.Go(func() error {
			if err := a.builder.Connect(gctx, ch); err != nil {
				return model.ErrTransport.Wrapf("connect %s: %v", ch, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("xcm adapter initialized", "chains", len(a.chains()))
	return nil
}

func (a *Adapter) chains() []model.Chain {
	if len(a.cfg.Chains) > 0 {
		return a.cfg.Chains
	}
	return model.AllChains()
}

// Quote prices moving the shortfall onto params.Destination from the chain
// holding the most transferable funds.
//
// The fee is estimated twice: first on the raw amount, then on the amount
// adjusted by that first estimate. Expected mode delivers the missing part
// of the target and charges the fee on top. Exact and Only move the
// requested amount and deliver it minus the fee.
func (a *Adapter) Quote(ctx context.Context, params bridge.QuoteParams) (q *model.Quote, err error) {
	ctx, span := a.tracer.Start(ctx, "xcm.quote", trace.WithAttributes(
		attribute.String("asset", params.Asset.String()),
		attribute.String("destination", params.Destination.String()),
		attribute.String("mode", string(params.Mode)),
	))
	defer func() { tracing.End(span, err) }()

	chains := a.cfg.Catalogue.Chains(params.Asset, a.chains()...)
	if !slices.Contains(chains, params.Destination) {
		return nil, model.ErrInvalidParams.Wrapf("%s is not routable to %s", params.Asset, params.Destination)
	}

	balances, err := a.balances.GetBalances(ctx, params.Address, params.Asset, chains)
	if err != nil {
		return nil, err
	}
	dest, origin, ok := a.pickOrigin(balances, params)
	if !ok {
		a.logger.Debug("no origin chain available", "destination", params.Destination, "asset", params.Asset)
		return nil, nil
	}

	requested := params.Amount
	if params.Mode == model.TeleportModeExpected {
		requested = requested.Sub(dest.Transferable)
	}
	if !requested.IsPositive() {
		return nil, nil
	}

	transfer := bridge.TransferParams{From: origin.Chain, To: params.Destination, Address: params.Address, Asset: params.Asset}

	transfer.Amount = requested
	approx, err := a.builder.DryRunFee(ctx, transfer)
	if err != nil {
		return nil, fmt.Errorf("estimate fee: %w", err)
	}

	if params.Mode == model.TeleportModeExpected {
		transfer.Amount = requested.Add(approx)
	} else {
		transfer.Amount = requested.Sub(approx)
	}
	if !transfer.Amount.IsPositive() {
		return nil, nil
	}
	fee, err := a.builder.DryRunFee(ctx, transfer)
	if err != nil {
		return nil, fmt.Errorf("re-estimate fee: %w", err)
	}

	net := requested
	if params.Mode != model.TeleportModeExpected {
		net = requested.Sub(fee)
	}
	if !net.IsPositive() {
		return nil, nil
	}

	quote := model.NewQuote(
		model.Route{Origin: origin.Chain, Destination: params.Destination, Protocol: model.ProtocolXCM},
		params.Asset,
		params.Mode,
		net,
		model.Fees{Bridge: fee, Total: fee},
		model.Execution{RequiredSignatureCount: 1, Time: a.cfg.EstimatedTime},
	)

	if origin.Transferable.Add(dest.Transferable).LT(quote.Total) || origin.Transferable.LT(quote.Total) {
		a.logger.Debug("insufficient funds for route",
			"origin", origin.Chain,
			"origin_transferable", origin.Transferable.String(),
			"total", quote.Total.String(),
		)
		return nil, nil
	}
	return &quote, nil
}

// pickOrigin returns the destination balance and the supported source with
// the highest transferable balance. Ties keep catalogue order.
func (a *Adapter) pickOrigin(balances []model.Balance, params bridge.QuoteParams) (dest, origin model.Balance, ok bool) {
	dest = model.Balance{Transferable: sdkmath.ZeroInt()}
	for _, b := range balances {
		if b.Chain == params.Destination {
			dest = b
			continue
		}
		if !b.Transferable.IsPositive() || !a.builder.Supports(b.Chain, params.Destination, params.Asset) {
			continue
		}
		if !ok || b.Transferable.GT(origin.Transferable) {
			origin, ok = b, true
		}
	}
	return dest, origin, ok
}

// Transfer signs and submits the XCM transfer. cb first receives Sign, then
// every lifecycle update translated to the common vocabulary.
func (a *Adapter) Transfer(ctx context.Context, params bridge.TransferParams, cb bridge.StatusCallback) (*subscription.Handle, error) {
	if !a.initialized.Load() {
		return nil, model.ErrNotInitialized.Wrap("xcm adapter")
	}
	if !params.Amount.IsPositive() {
		return nil, model.ErrInvalidParams.Wrapf("transfer amount %s", params.Amount)
	}

	log := a.logger.With("from", params.From, "to", params.To, "amount", params.Amount.String())
	cb(bridge.StatusUpdate{Status: model.TransactionStatusSign})

	unsub, err := a.builder.Submit(ctx, params, func(ev ExtrinsicEvent) {
		u := resolveStatus(ev)
		if u.Status == model.TransactionStatusUnknown {
			log.Debug("ignoring extrinsic event", "kind", ev.Kind)
			return
		}
		log.Debug("extrinsic status", "kind", ev.Kind, "tx_hash", ev.TxHash)
		cb(u)
	})
	if err != nil {
		return nil, model.ErrTransport.Wrapf("submit transfer: %v", err)
	}
	log.Info("xcm transfer submitted")
	return subscription.New(unsub), nil
}
