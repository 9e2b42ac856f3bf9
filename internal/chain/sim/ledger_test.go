package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exezbcz/paraport/internal/bridge"
	"github.com/exezbcz/paraport/internal/bridge/xcm"
	"github.com/exezbcz/paraport/internal/config"
	"github.com/exezbcz/paraport/internal/domain/model"
)

const addr = "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"

func newLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	assets, err := config.DefaultCatalogueFile().Resolve()
	require.NoError(t, err)
	l := New(assets, nil, opts...)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

type events struct {
	mu   sync.Mutex
	list []xcm.ExtrinsicEvent
	done chan struct{}
}

func newEvents() *events {
	return &events{done: make(chan struct{})}
}

func (e *events) add(ev xcm.ExtrinsicEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, ev)
	if ev.Kind == xcm.ExtrinsicFinalized {
		close(e.done)
	}
}

func (e *events) kinds() []xcm.ExtrinsicKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]xcm.ExtrinsicKind, 0, len(e.list))
	for _, ev := range e.list {
		out = append(out, ev.Kind)
	}
	return out
}

func (e *events) wait(t *testing.T) {
	t.Helper()
	select {
	case <-e.done:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer did not finalize")
	}
}

func TestLedger_ChainMetadata(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	ed, err := l.ExistentialDeposit(ctx, model.ChainPolkadot, model.AssetDOT)
	require.NoError(t, err)
	assert.Equal(t, "10000000000", ed.String())

	info, err := l.AssetInfo(ctx, model.ChainAssetHubKusama, model.AssetKSM)
	require.NoError(t, err)
	assert.Equal(t, uint8(12), info.Decimals)

	_, err = l.Balance(ctx, model.ChainKusama, addr, model.AssetDOT)
	assert.ErrorIs(t, err, model.ErrInvalidParams)

	bal, err := l.Balance(ctx, model.ChainPolkadot, addr, model.AssetDOT)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestLedger_Routes(t *testing.T) {
	l := newLedger(t)
	assert.True(t, l.Supports(model.ChainPolkadot, model.ChainAssetHubPolkadot, model.AssetDOT))
	assert.False(t, l.Supports(model.ChainPolkadot, model.ChainPolkadot, model.AssetDOT))
	assert.False(t, l.Supports(model.ChainKusama, model.ChainAssetHubPolkadot, model.AssetDOT))

	fee, err := l.DryRunFee(context.Background(), bridge.TransferParams{
		From: model.ChainPolkadot, To: model.ChainAssetHubPolkadot, Asset: model.AssetDOT, Amount: sdkmath.NewInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "10000000", fee.String())

	_, err = l.DryRunFee(context.Background(), bridge.TransferParams{
		From: model.ChainKusama, To: model.ChainAssetHubPolkadot, Asset: model.AssetDOT,
	})
	assert.ErrorIs(t, err, model.ErrInvalidParams)

	require.NoError(t, l.Connect(context.Background(), model.ChainKusama))
	assert.True(t, l.Connected(model.ChainKusama))
	assert.False(t, l.Connected(model.ChainPolkadot))
}

func TestLedger_WatchBalance(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Fund(model.ChainPolkadot, addr, model.AssetDOT, sdkmath.NewInt(5)))

	var seen []string
	stop, err := l.WatchBalance(context.Background(), model.ChainPolkadot, addr, model.AssetDOT, func(v sdkmath.Int) {
		seen = append(seen, v.String())
	})
	require.NoError(t, err)

	require.NoError(t, l.Fund(model.ChainPolkadot, addr, model.AssetDOT, sdkmath.NewInt(9)))
	stop()
	stop()
	require.NoError(t, l.Fund(model.ChainPolkadot, addr, model.AssetDOT, sdkmath.NewInt(12)))

	assert.Equal(t, []string{"5", "9"}, seen)
}

func TestLedger_SubmitMovesFunds(t *testing.T) {
	fee := func(bridge.TransferParams) sdkmath.Int { return sdkmath.NewInt(3) }
	l := newLedger(t, WithFee(fee))
	ctx := context.Background()
	require.NoError(t, l.Fund(model.ChainPolkadot, addr, model.AssetDOT, sdkmath.NewInt(100)))

	ev := newEvents()
	stop, err := l.Submit(ctx, bridge.TransferParams{
		Amount: sdkmath.NewInt(40), From: model.ChainPolkadot, To: model.ChainAssetHubPolkadot,
		Address: addr, Asset: model.AssetDOT,
	}, ev.add)
	require.NoError(t, err)
	defer stop()
	ev.wait(t)

	assert.Equal(t, []xcm.ExtrinsicKind{
		xcm.ExtrinsicReady, xcm.ExtrinsicBroadcast, xcm.ExtrinsicInBlock, xcm.ExtrinsicFinalized,
	}, ev.kinds())

	origin, _ := l.Balance(ctx, model.ChainPolkadot, addr, model.AssetDOT)
	dest, _ := l.Balance(ctx, model.ChainAssetHubPolkadot, addr, model.AssetDOT)
	assert.Equal(t, "60", origin.String())
	assert.Equal(t, "37", dest.String())
}

func TestLedger_SubmitFailures(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Fund(model.ChainPolkadot, addr, model.AssetDOT, sdkmath.NewInt(100)))
	params := bridge.TransferParams{
		Amount: sdkmath.NewInt(40), From: model.ChainPolkadot, To: model.ChainAssetHubPolkadot,
		Address: addr, Asset: model.AssetDOT,
	}

	boom := errors.New("pool full")
	l.FailNextSubmit(boom)
	_, err := l.Submit(ctx, params, func(xcm.ExtrinsicEvent) {})
	assert.ErrorIs(t, err, boom)

	big := params
	big.Amount = sdkmath.NewInt(101)
	_, err = l.Submit(ctx, big, func(xcm.ExtrinsicEvent) {})
	assert.ErrorContains(t, err, "insufficient balance")

	l.FailNextDispatch("Module.TooExpensive")
	ev := newEvents()
	_, err = l.Submit(ctx, params, ev.add)
	require.NoError(t, err)
	ev.wait(t)

	ev.mu.Lock()
	last := ev.list[len(ev.list)-1]
	ev.mu.Unlock()
	assert.Equal(t, "Module.TooExpensive", last.DispatchError)
	origin, _ := l.Balance(ctx, model.ChainPolkadot, addr, model.AssetDOT)
	assert.Equal(t, "100", origin.String())
}

func TestLedger_CancelStopsLifecycle(t *testing.T) {
	l := newLedger(t, WithBlockTime(time.Hour))
	require.NoError(t, l.Fund(model.ChainPolkadot, addr, model.AssetDOT, sdkmath.NewInt(100)))

	ev := newEvents()
	stop, err := l.Submit(context.Background(), bridge.TransferParams{
		Amount: sdkmath.NewInt(40), From: model.ChainPolkadot, To: model.ChainAssetHubPolkadot,
		Address: addr, Asset: model.AssetDOT,
	}, ev.add)
	require.NoError(t, err)
	stop()
	require.NoError(t, l.Close())

	assert.Empty(t, ev.kinds())
	_, err = l.Submit(context.Background(), bridge.TransferParams{
		Amount: sdkmath.NewInt(1), From: model.ChainPolkadot, To: model.ChainAssetHubPolkadot,
		Address: addr, Asset: model.AssetDOT,
	}, ev.add)
	assert.Error(t, err)
}
