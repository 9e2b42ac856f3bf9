// Package bridge defines the per-protocol adapter contract and the registry
// the engine resolves adapters from.
package bridge

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/subscription"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks . Adapter

type QuoteParams struct {
	Address     string
	Asset       model.Asset
	Destination model.Chain
	Amount      sdkmath.Int
	Mode        model.TeleportMode
}

type TransferParams struct {
	Amount  sdkmath.Int
	From    model.Chain
	To      model.Chain
	Address string
	Asset   model.Asset
}

// StatusUpdate reports a transfer lifecycle step in the common vocabulary.
// Error is set when the step failed; Succeeded is set on a finalized outcome.
type StatusUpdate struct {
	Status    model.TransactionStatus
	TxHash    string
	Error     string
	Succeeded *bool
}

type StatusCallback func(StatusUpdate)

// Adapter prices and executes transfers over one bridge protocol.
type Adapter interface {
	Protocol() model.Protocol

	// Initialize performs one-time setup. A second call fails with
	// model.ErrAlreadyInitialized.
	Initialize(ctx context.Context) error

	// Quote prices a transfer towards params.Destination. A nil quote with a
	// nil error means the protocol cannot serve the request.
	Quote(ctx context.Context, params QuoteParams) (*model.Quote, error)

	// Transfer submits the transfer and streams its lifecycle to cb until
	// the returned handle is released.
	Transfer(ctx context.Context, params TransferParams, cb StatusCallback) (*subscription.Handle, error)
}

// Succeeded is a convenience for building StatusUpdate values.
func Succeeded(ok bool) *bool {
	return &ok
}
