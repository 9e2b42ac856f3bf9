package chain

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/exezbcz/paraport/internal/domain/model"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks . Client,Watcher

// Client abstracts the wire-level chain access the engine depends on so
// balance and bridge logic stay chain-agnostic.
type Client interface {
	// Balance returns the raw free balance of asset held by address.
	Balance(ctx context.Context, chain model.Chain, address string, asset model.Asset) (sdkmath.Int, error)

	// ExistentialDeposit returns the minimum balance an account must keep on chain.
	ExistentialDeposit(ctx context.Context, chain model.Chain, asset model.Asset) (sdkmath.Int, error)

	// AssetInfo resolves asset metadata on chain.
	AssetInfo(ctx context.Context, chain model.Chain, asset model.Asset) (model.AssetInfo, error)
}

// Watcher is implemented by clients able to push balance changes.
// fn receives the raw free balance, starting with the current value.
type Watcher interface {
	WatchBalance(ctx context.Context, chain model.Chain, address string, asset model.Asset, fn func(sdkmath.Int)) (func(), error)
}

// Connector is implemented by clients holding per-chain connections that
// benefit from being opened ahead of the first query.
type Connector interface {
	Connect(ctx context.Context, chain model.Chain) error
}
