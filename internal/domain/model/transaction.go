package model

import (
	sdkmath "cosmossdk.io/math"

	"github.com/exezbcz/paraport/internal/subscription"
)

// TransactionStatus is the chain-agnostic lifecycle of a submitted step.
type TransactionStatus string

const (
	TransactionStatusUnknown   TransactionStatus = ""
	TransactionStatusSign      TransactionStatus = "sign"
	TransactionStatusCasting   TransactionStatus = "casting"
	TransactionStatusBroadcast TransactionStatus = "broadcast"
	TransactionStatusBlock     TransactionStatus = "block"
	TransactionStatusFinalized TransactionStatus = "finalized"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// InFlight reports whether the step was submitted and is not yet settled.
func (s TransactionStatus) InFlight() bool {
	switch s {
	case TransactionStatusSign, TransactionStatusCasting, TransactionStatusBroadcast, TransactionStatusBlock:
		return true
	}
	return false
}

type TransactionType string

const (
	TransactionTypeTeleport TransactionType = "teleport"
	TransactionTypeAction   TransactionType = "action"
)

type TransferDetails struct {
	Amount  sdkmath.Int `json:"amount"`
	From    Chain       `json:"from"`
	To      Chain       `json:"to"`
	Address string      `json:"address"`
	Asset   Asset       `json:"asset"`
}

type Transaction struct {
	Record[TransactionStatus]
	TeleportID string           `json:"teleportId"`
	Chain      Chain            `json:"chain"`
	Type       TransactionType  `json:"type"`
	Order      int              `json:"order"`
	Transfer   *TransferDetails `json:"transfer,omitempty"`
	Action     *Action          `json:"action,omitempty"`
	TxHash     string           `json:"txHash,omitempty"`
	Succeeded  *bool            `json:"succeeded,omitempty"`

	// Attempt counts submissions. Updates carrying an older attempt are stale.
	Attempt   int  `json:"attempt"`
	Submitted bool `json:"-"`

	Unsubscribe *subscription.Handle `json:"-"`
}

// Failed reports whether the step was cancelled or reported an error.
func (t Transaction) Failed() bool {
	return t.Status == TransactionStatusCancelled || t.Error != ""
}
