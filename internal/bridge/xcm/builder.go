package xcm

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/exezbcz/paraport/internal/bridge"
	"github.com/exezbcz/paraport/internal/domain/model"
)

//go:generate mockgen -destination=mocks/mock_builder.go -package=mocks . RouteBuilder,BalanceReader

// ExtrinsicKind is a lifecycle stage reported by the chain for a submitted extrinsic.
type ExtrinsicKind string

const (
	ExtrinsicReady           ExtrinsicKind = "ready"
	ExtrinsicBroadcast       ExtrinsicKind = "broadcast"
	ExtrinsicInBlock         ExtrinsicKind = "in_block"
	ExtrinsicRetracted       ExtrinsicKind = "retracted"
	ExtrinsicFinalized       ExtrinsicKind = "finalized"
	ExtrinsicFinalityTimeout ExtrinsicKind = "finality_timeout"
	ExtrinsicUsurped         ExtrinsicKind = "usurped"
	ExtrinsicDropped         ExtrinsicKind = "dropped"
	ExtrinsicInvalid         ExtrinsicKind = "invalid"
)

// ExtrinsicEvent is one lifecycle notification. DispatchError is set when
// the extrinsic was included but its execution failed.
type ExtrinsicEvent struct {
	Kind          ExtrinsicKind
	TxHash        string
	DispatchError string
}

// RouteBuilder encodes, prices and submits XCM transfers. It owns signing
// and the wire protocol.
type RouteBuilder interface {
	Connect(ctx context.Context, chain model.Chain) error
	Supports(from, to model.Chain, asset model.Asset) bool
	DryRunFee(ctx context.Context, params bridge.TransferParams) (sdkmath.Int, error)
	Submit(ctx context.Context, params bridge.TransferParams, fn func(ExtrinsicEvent)) (func(), error)
}

// BalanceReader is the balance view quoting needs.
type BalanceReader interface {
	GetBalances(ctx context.Context, address string, asset model.Asset, chains []model.Chain) ([]model.Balance, error)
}

// resolveStatus maps an extrinsic event to the common transaction vocabulary.
func resolveStatus(ev ExtrinsicEvent) bridge.StatusUpdate {
	u := bridge.StatusUpdate{TxHash: ev.TxHash}
	switch ev.Kind {
	case ExtrinsicReady:
		u.Status = model.TransactionStatusCasting
	case ExtrinsicBroadcast, ExtrinsicRetracted:
		u.Status = model.TransactionStatusBroadcast
	case ExtrinsicInBlock:
		u.Status = model.TransactionStatusBlock
		if ev.DispatchError != "" {
			u.Status = model.TransactionStatusCancelled
			u.Error = ev.DispatchError
			u.Succeeded = bridge.Succeeded(false)
		}
	case ExtrinsicFinalized:
		u.Status = model.TransactionStatusFinalized
		u.Succeeded = bridge.Succeeded(ev.DispatchError == "")
		if ev.DispatchError != "" {
			u.Status = model.TransactionStatusCancelled
			u.Error = ev.DispatchError
		}
	case ExtrinsicFinalityTimeout, ExtrinsicUsurped, ExtrinsicDropped, ExtrinsicInvalid:
		u.Status = model.TransactionStatusCancelled
		u.Error = "extrinsic " + string(ev.Kind)
		u.Succeeded = bridge.Succeeded(false)
	default:
		u.Status = model.TransactionStatusUnknown
	}
	return u
}
