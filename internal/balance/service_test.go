package balance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/exezbcz/paraport/internal/chain/mocks"
	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func instantPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func expectReserve(client *mocks.MockClient, ch model.Chain, asset model.Asset, v int64) {
	client.EXPECT().ExistentialDeposit(gomock.Any(), ch, asset).Return(sdkmath.NewInt(v), nil).AnyTimes()
}

func TestGetBalance_TransferableAndReserveCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().Balance(gomock.Any(), model.ChainPolkadot, "alice", model.AssetDOT).Return(sdkmath.NewInt(500), nil).Times(2)
	client.EXPECT().ExistentialDeposit(gomock.Any(), model.ChainPolkadot, model.AssetDOT).Return(sdkmath.NewInt(100), nil).Times(1)

	svc := New(client, testLogger())
	for i := 0; i < 2; i++ {
		b, err := svc.GetBalance(context.Background(), model.ChainPolkadot, "alice", model.AssetDOT)
		require.NoError(t, err)
		assert.Equal(t, "500", b.Amount.String())
		assert.Equal(t, "400", b.Transferable.String())
		assert.Equal(t, model.ChainPolkadot, b.Chain)
	}
}

func TestGetBalance_BelowReserveIsZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Balance(gomock.Any(), model.ChainKusama, "bob", model.AssetKSM).Return(sdkmath.NewInt(5), nil)
	expectReserve(client, model.ChainKusama, model.AssetKSM, 10)

	b, err := New(client, testLogger()).GetBalance(context.Background(), model.ChainKusama, "bob", model.AssetKSM)
	require.NoError(t, err)
	assert.True(t, b.Transferable.IsZero())
}

func TestGetBalances_OrderedFanOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Balance(gomock.Any(), model.ChainPolkadot, "alice", model.AssetDOT).Return(sdkmath.NewInt(10), nil)
	client.EXPECT().Balance(gomock.Any(), model.ChainAssetHubPolkadot, "alice", model.AssetDOT).Return(sdkmath.NewInt(20), nil)
	expectReserve(client, model.ChainPolkadot, model.AssetDOT, 1)
	expectReserve(client, model.ChainAssetHubPolkadot, model.AssetDOT, 1)

	balances, err := New(client, testLogger()).GetBalances(context.Background(), "alice", model.AssetDOT,
		[]model.Chain{model.ChainPolkadot, model.ChainAssetHubPolkadot})
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, model.ChainPolkadot, balances[0].Chain)
	assert.Equal(t, "9", balances[0].Transferable.String())
	assert.Equal(t, model.ChainAssetHubPolkadot, balances[1].Chain)
	assert.Equal(t, "19", balances[1].Transferable.String())
}

func TestGetBalances_AnyFailureFailsAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Balance(gomock.Any(), model.ChainPolkadot, gomock.Any(), gomock.Any()).Return(sdkmath.NewInt(10), nil).AnyTimes()
	client.EXPECT().Balance(gomock.Any(), model.ChainAssetHubPolkadot, gomock.Any(), gomock.Any()).Return(sdkmath.Int{}, errors.New("node unavailable"))
	expectReserve(client, model.ChainPolkadot, model.AssetDOT, 1)

	_, err := New(client, testLogger()).GetBalances(context.Background(), "alice", model.AssetDOT,
		[]model.Chain{model.ChainPolkadot, model.ChainAssetHubPolkadot})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node unavailable")
}

func TestHasEnoughBalance(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Balance(gomock.Any(), model.ChainPolkadot, "alice", model.AssetDOT).Return(sdkmath.NewInt(110), nil).AnyTimes()
	expectReserve(client, model.ChainPolkadot, model.AssetDOT, 10)
	svc := New(client, testLogger())

	ok, err := svc.HasEnoughBalance(context.Background(), model.ChainPolkadot, "alice", model.AssetDOT, sdkmath.NewInt(100))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasEnoughBalance(context.Background(), model.ChainPolkadot, "alice", model.AssetDOT, sdkmath.NewInt(101))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWaitForFunds_SucceedsWhenFundsArrive(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	var polls atomic.Int32
	client.EXPECT().Balance(gomock.Any(), model.ChainPolkadot, "alice", model.AssetDOT).DoAndReturn(
		func(context.Context, model.Chain, string, model.Asset) (sdkmath.Int, error) {
			if polls.Add(1) < 3 {
				return sdkmath.NewInt(50), nil
			}
			return sdkmath.NewInt(1000), nil
		}).Times(3)
	expectReserve(client, model.ChainPolkadot, model.AssetDOT, 10)

	svc := New(client, testLogger(), WithWaitPolicy(instantPolicy(10)))
	b, err := svc.WaitForFunds(context.Background(), "alice", model.AssetDOT, []model.Chain{model.ChainPolkadot}, sdkmath.NewInt(900))
	require.NoError(t, err)
	assert.Equal(t, "990", b.Transferable.String())
}

func TestWaitForFunds_FirstQualifyingChainWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Balance(gomock.Any(), model.ChainPolkadot, gomock.Any(), gomock.Any()).Return(sdkmath.NewInt(5), nil)
	client.EXPECT().Balance(gomock.Any(), model.ChainAssetHubPolkadot, gomock.Any(), gomock.Any()).Return(sdkmath.NewInt(500), nil)
	expectReserve(client, model.ChainPolkadot, model.AssetDOT, 0)
	expectReserve(client, model.ChainAssetHubPolkadot, model.AssetDOT, 0)

	svc := New(client, testLogger(), WithWaitPolicy(instantPolicy(1)))
	b, err := svc.WaitForFunds(context.Background(), "alice", model.AssetDOT,
		[]model.Chain{model.ChainPolkadot, model.ChainAssetHubPolkadot}, sdkmath.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, model.ChainAssetHubPolkadot, b.Chain)
}

func TestWaitForFunds_Exhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Balance(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(sdkmath.NewInt(1), nil).Times(4)
	expectReserve(client, model.ChainPolkadot, model.AssetDOT, 0)

	svc := New(client, testLogger(), WithWaitPolicy(instantPolicy(4)))
	_, err := svc.WaitForFunds(context.Background(), "alice", model.AssetDOT, []model.Chain{model.ChainPolkadot}, sdkmath.NewInt(100))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFundsWaitExhausted)
}

func TestWaitForFunds_TransientErrorsAreRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	gomock.InOrder(
		client.EXPECT().Balance(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(sdkmath.Int{}, errors.New("connection reset")),
		client.EXPECT().Balance(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(sdkmath.NewInt(200), nil),
	)
	expectReserve(client, model.ChainPolkadot, model.AssetDOT, 0)

	svc := New(client, testLogger(), WithWaitPolicy(instantPolicy(5)))
	_, err := svc.WaitForFunds(context.Background(), "alice", model.AssetDOT, []model.Chain{model.ChainPolkadot}, sdkmath.NewInt(100))
	require.NoError(t, err)
}

func TestWaitForFunds_TerminalErrorFailsFast(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Balance(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(sdkmath.Int{}, model.ErrInvalidParams.Wrap("invalid address checksum")).Times(1)

	svc := New(client, testLogger(), WithWaitPolicy(instantPolicy(50)))
	_, err := svc.WaitForFunds(context.Background(), "alice", model.AssetDOT, []model.Chain{model.ChainPolkadot}, sdkmath.NewInt(100))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidParams)
	assert.NotErrorIs(t, err, model.ErrFundsWaitExhausted)
}

func TestSubscribeBalances_PushFiresOnIncreaseOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	watcher := mocks.NewMockWatcher(ctrl)
	expectReserve(client, model.ChainPolkadot, model.AssetDOT, 10)

	var push func(sdkmath.Int)
	var unsubCalls atomic.Int32
	watcher.EXPECT().WatchBalance(gomock.Any(), model.ChainPolkadot, "alice", model.AssetDOT, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ model.Chain, _ string, _ model.Asset, fn func(sdkmath.Int)) (func(), error) {
			push = fn
			return func() { unsubCalls.Add(1) }, nil
		})

	svc := New(client, testLogger(), WithWatcher(watcher))
	var got []string
	h, err := svc.SubscribeBalances(context.Background(), "alice", model.AssetDOT, []model.Chain{model.ChainPolkadot}, func(b model.Balance) {
		got = append(got, b.Transferable.String())
	})
	require.NoError(t, err)

	for _, v := range []int64{100, 150, 150, 120, 130} {
		push(sdkmath.NewInt(v))
	}
	assert.Equal(t, []string{"140", "120"}, got)

	h.Release()
	h.Release()
	assert.Equal(t, int32(1), unsubCalls.Load())

	push(sdkmath.NewInt(999))
	assert.Len(t, got, 2, "no callbacks after release")
}

func TestSubscribeBalances_PollingFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	expectReserve(client, model.ChainKusama, model.AssetKSM, 0)

	var calls atomic.Int32
	client.EXPECT().Balance(gomock.Any(), model.ChainKusama, "bob", model.AssetKSM).DoAndReturn(
		func(context.Context, model.Chain, string, model.Asset) (sdkmath.Int, error) {
			if calls.Add(1) < 3 {
				return sdkmath.NewInt(10), nil
			}
			return sdkmath.NewInt(25), nil
		}).AnyTimes()

	svc := New(client, testLogger(), WithPollInterval(5*time.Millisecond))
	var mu sync.Mutex
	var fired []string
	h, err := svc.SubscribeBalances(context.Background(), "bob", model.AssetKSM, []model.Chain{model.ChainKusama}, func(b model.Balance) {
		mu.Lock()
		fired = append(fired, b.Amount.String())
		mu.Unlock()
	})
	require.NoError(t, err)
	defer h.Release()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"25"}, fired, "steady balance must not fire again")
}

func TestSubscribeBalances_SetupFailureReleasesEarlierWatchers(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	watcher := mocks.NewMockWatcher(ctrl)

	var released atomic.Bool
	watcher.EXPECT().WatchBalance(gomock.Any(), model.ChainPolkadot, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(func() { released.Store(true) }, nil)
	watcher.EXPECT().WatchBalance(gomock.Any(), model.ChainAssetHubPolkadot, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("subscription rejected"))

	svc := New(client, testLogger(), WithWatcher(watcher))
	_, err := svc.SubscribeBalances(context.Background(), "alice", model.AssetDOT,
		[]model.Chain{model.ChainPolkadot, model.ChainAssetHubPolkadot}, func(model.Balance) {})
	require.Error(t, err)
	assert.True(t, released.Load())
}
