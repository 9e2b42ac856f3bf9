package model

import (
	sdkmath "cosmossdk.io/math"
)

type TeleportStatus string

const (
	TeleportStatusPending      TeleportStatus = "pending"
	TeleportStatusTransferring TeleportStatus = "transferring"
	TeleportStatusWaiting      TeleportStatus = "waiting"
	TeleportStatusExecuting    TeleportStatus = "executing"
	TeleportStatusCompleted    TeleportStatus = "completed"
	TeleportStatusFailed       TeleportStatus = "failed"
)

// Terminal reports whether no further transition can happen without a retry.
func (s TeleportStatus) Terminal() bool {
	return s == TeleportStatusCompleted || s == TeleportStatusFailed
}

type TeleportDetails struct {
	Address string `json:"address"`
	// Amount is the transferable balance the destination must reach.
	Amount sdkmath.Int  `json:"amount"`
	Asset  Asset        `json:"asset"`
	Route  Route        `json:"route"`
	Mode   TeleportMode `json:"teleportMode"`
	Quote  Quote        `json:"quote"`
}

type Teleport struct {
	Record[TeleportStatus]
	Details TeleportDetails `json:"details"`
	// Checked is set once the destination balance was confirmed.
	Checked bool `json:"checked"`
}
