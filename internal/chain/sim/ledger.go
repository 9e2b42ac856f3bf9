// Package sim provides an in-memory ledger that behaves like a set of
// connected relay and asset hub chains. It backs the demo binary and the
// engine tests.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/exezbcz/paraport/internal/bridge"
	"github.com/exezbcz/paraport/internal/bridge/xcm"
	"github.com/exezbcz/paraport/internal/chain"
	"github.com/exezbcz/paraport/internal/config"
	"github.com/exezbcz/paraport/internal/domain/model"
)

var (
	_ chain.Client     = (*Ledger)(nil)
	_ chain.Watcher    = (*Ledger)(nil)
	_ chain.Connector  = (*Ledger)(nil)
	_ xcm.RouteBuilder = (*Ledger)(nil)
)

// FeeFunc prices a transfer.
type FeeFunc func(params bridge.TransferParams) sdkmath.Int

type assetKey struct {
	chain model.Chain
	asset model.Asset
}

type accountKey struct {
	chain   model.Chain
	address string
	asset   model.Asset
}

type watcher struct {
	id int
	fn func(sdkmath.Int)
}

type Ledger struct {
	assets    map[assetKey]config.ChainAsset
	fee       FeeFunc
	blockTime time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	balances  map[accountKey]sdkmath.Int
	watchers  map[accountKey][]watcher
	nextWatch int
	connected map[model.Chain]bool
	failNext  []error
	dispatch  []string
	closed    bool

	seq atomic.Uint64
	wg  sync.WaitGroup
}

type Option func(*Ledger)

// WithFee overrides the default fee of one thousandth of a unit.
func WithFee(fn FeeFunc) Option {
	return func(l *Ledger) { l.fee = fn }
}

// WithBlockTime sets the delay between lifecycle events of a submitted transfer.
func WithBlockTime(d time.Duration) Option {
	return func(l *Ledger) { l.blockTime = d }
}

func New(assets []config.ChainAsset, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		assets:    make(map[assetKey]config.ChainAsset, len(assets)),
		logger:    logger.With("component", "sim_ledger"),
		balances:  make(map[accountKey]sdkmath.Int),
		watchers:  make(map[accountKey][]watcher),
		connected: make(map[model.Chain]bool),
	}
	for _, a := range assets {
		l.assets[assetKey{a.Chain, a.Info.Symbol}] = a
	}
	l.fee = l.defaultFee
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) defaultFee(params bridge.TransferParams) sdkmath.Int {
	a, ok := l.assets[assetKey{params.From, params.Asset}]
	if !ok || a.Info.Decimals < 3 {
		return sdkmath.OneInt()
	}
	return sdkmath.NewIntWithDecimal(1, int(a.Info.Decimals)-3)
}

func (l *Ledger) lookup(ch model.Chain, asset model.Asset) (config.ChainAsset, error) {
	a, ok := l.assets[assetKey{ch, asset}]
	if !ok {
		return config.ChainAsset{}, model.ErrInvalidParams.Wrapf("%s is not held on %s", asset, ch)
	}
	return a, nil
}

// Fund sets the free balance of an account and notifies its watchers.
func (l *Ledger) Fund(ch model.Chain, address string, asset model.Asset, amount sdkmath.Int) error {
	if _, err := l.lookup(ch, asset); err != nil {
		return err
	}
	l.mu.Lock()
	notify := l.setLocked(accountKey{ch, address, asset}, amount)
	l.mu.Unlock()
	notify()
	return nil
}

// FailNextSubmit makes the next Submit call return err.
func (l *Ledger) FailNextSubmit(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = append(l.failNext, err)
}

// FailNextDispatch makes the next submitted transfer finalize with reason
// as its dispatch error. No funds move.
func (l *Ledger) FailNextDispatch(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatch = append(l.dispatch, reason)
}

// setLocked stores amount and returns a function that notifies watchers
// outside the lock.
func (l *Ledger) setLocked(key accountKey, amount sdkmath.Int) func() {
	l.balances[key] = amount
	ws := append([]watcher(nil), l.watchers[key]...)
	return func() {
		for _, w := range ws {
			w.fn(amount)
		}
	}
}

func (l *Ledger) balanceLocked(key accountKey) sdkmath.Int {
	if v, ok := l.balances[key]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (l *Ledger) Balance(_ context.Context, ch model.Chain, address string, asset model.Asset) (sdkmath.Int, error) {
	if _, err := l.lookup(ch, asset); err != nil {
		return sdkmath.Int{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(accountKey{ch, address, asset}), nil
}

func (l *Ledger) ExistentialDeposit(_ context.Context, ch model.Chain, asset model.Asset) (sdkmath.Int, error) {
	a, err := l.lookup(ch, asset)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return a.ExistentialDeposit, nil
}

func (l *Ledger) AssetInfo(_ context.Context, ch model.Chain, asset model.Asset) (model.AssetInfo, error) {
	a, err := l.lookup(ch, asset)
	if err != nil {
		return model.AssetInfo{}, err
	}
	return a.Info, nil
}

// WatchBalance calls fn with the current balance, then on every change.
func (l *Ledger) WatchBalance(_ context.Context, ch model.Chain, address string, asset model.Asset, fn func(sdkmath.Int)) (func(), error) {
	if _, err := l.lookup(ch, asset); err != nil {
		return nil, err
	}
	key := accountKey{ch, address, asset}

	l.mu.Lock()
	l.nextWatch++
	id := l.nextWatch
	l.watchers[key] = append(l.watchers[key], watcher{id: id, fn: fn})
	current := l.balanceLocked(key)
	l.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			ws := l.watchers[key]
			for i, w := range ws {
				if w.id == id {
					l.watchers[key] = append(ws[:i:i], ws[i+1:]...)
					break
				}
			}
			if len(l.watchers[key]) == 0 {
				delete(l.watchers, key)
			}
		})
	}, nil
}

func (l *Ledger) Connect(_ context.Context, ch model.Chain) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("ledger closed")
	}
	l.connected[ch] = true
	return nil
}

// WatcherCount returns the number of live balance watchers.
func (l *Ledger) WatcherCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ws := range l.watchers {
		n += len(ws)
	}
	return n
}

// Connected reports whether Connect was called for ch.
func (l *Ledger) Connected(ch model.Chain) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected[ch]
}

// Supports reports whether asset can move between the two chains. Only
// chains holding the asset within the same network are connected.
func (l *Ledger) Supports(from, to model.Chain, asset model.Asset) bool {
	if from == to {
		return false
	}
	_, okFrom := l.assets[assetKey{from, asset}]
	_, okTo := l.assets[assetKey{to, asset}]
	return okFrom && okTo
}

func (l *Ledger) DryRunFee(_ context.Context, params bridge.TransferParams) (sdkmath.Int, error) {
	if !l.Supports(params.From, params.To, params.Asset) {
		return sdkmath.Int{}, model.ErrInvalidParams.Wrapf("no route %s -> %s for %s", params.From, params.To, params.Asset)
	}
	return l.fee(params), nil
}

// Submit debits the origin and plays the extrinsic lifecycle on a separate
// goroutine, crediting the destination with amount minus fee on finality.
func (l *Ledger) Submit(_ context.Context, params bridge.TransferParams, fn func(xcm.ExtrinsicEvent)) (func(), error) {
	if !l.Supports(params.From, params.To, params.Asset) {
		return nil, model.ErrInvalidParams.Wrapf("no route %s -> %s for %s", params.From, params.To, params.Asset)
	}
	if !params.Amount.IsPositive() {
		return nil, model.ErrInvalidParams.Wrap("amount must be positive")
	}
	fee := l.fee(params)
	from := accountKey{params.From, params.Address, params.Asset}
	to := accountKey{params.To, params.Address, params.Asset}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, fmt.Errorf("ledger closed")
	}
	if len(l.failNext) > 0 {
		err := l.failNext[0]
		l.failNext = l.failNext[1:]
		l.mu.Unlock()
		return nil, err
	}
	var dispatchErr string
	if len(l.dispatch) > 0 {
		dispatchErr = l.dispatch[0]
		l.dispatch = l.dispatch[1:]
	}
	balance := l.balanceLocked(from)
	if balance.LT(params.Amount) {
		l.mu.Unlock()
		return nil, fmt.Errorf("insufficient balance on %s: have %s, need %s", params.From, balance, params.Amount)
	}
	notifyDebit := func() {}
	if dispatchErr == "" {
		notifyDebit = l.setLocked(from, balance.Sub(params.Amount))
	}
	l.wg.Add(1)
	l.mu.Unlock()
	notifyDebit()

	hash := fmt.Sprintf("0x%064x", l.seq.Add(1))
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }

	go func() {
		defer l.wg.Done()
		next := func() bool {
			if l.blockTime > 0 {
				timer := time.NewTimer(l.blockTime)
				defer timer.Stop()
				select {
				case <-stop:
					return false
				case <-timer.C:
				}
			}
			select {
			case <-stop:
				return false
			default:
				return true
			}
		}

		for _, kind := range []xcm.ExtrinsicKind{xcm.ExtrinsicReady, xcm.ExtrinsicBroadcast, xcm.ExtrinsicInBlock} {
			if !next() {
				return
			}
			fn(xcm.ExtrinsicEvent{Kind: kind, TxHash: hash})
		}
		if !next() {
			return
		}
		if dispatchErr != "" {
			l.logger.Debug("transfer failed in dispatch", "tx_hash", hash, "error", dispatchErr)
			fn(xcm.ExtrinsicEvent{Kind: xcm.ExtrinsicFinalized, TxHash: hash, DispatchError: dispatchErr})
			return
		}

		l.mu.Lock()
		notifyCredit := l.setLocked(to, l.balanceLocked(to).Add(params.Amount.Sub(fee)))
		l.mu.Unlock()
		notifyCredit()

		l.logger.Debug("transfer finalized",
			"tx_hash", hash,
			"from", params.From,
			"to", params.To,
			"amount", params.Amount.String(),
			"fee", fee.String(),
		)
		fn(xcm.ExtrinsicEvent{Kind: xcm.ExtrinsicFinalized, TxHash: hash})
	}()
	return cancel, nil
}

// Close rejects new submissions and waits for in-flight transfers.
func (l *Ledger) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
	return nil
}
