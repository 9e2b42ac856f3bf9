package model

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// TeleportMode decides how the moved amount relates to the requested amount.
type TeleportMode string

const (
	// TeleportModeExpected tops the destination up to the requested amount.
	TeleportModeExpected TeleportMode = "expected"
	// TeleportModeExact moves the requested amount, the fee is paid out of it.
	TeleportModeExact TeleportMode = "exact"
	// TeleportModeOnly moves at most the requested amount with the fee carved out.
	TeleportModeOnly TeleportMode = "only"
)

func (m TeleportMode) Valid() bool {
	switch m {
	case TeleportModeExpected, TeleportModeExact, TeleportModeOnly:
		return true
	}
	return false
}

func ParseTeleportMode(s string) (TeleportMode, bool) {
	m := TeleportMode(s)
	return m, m.Valid()
}

type Route struct {
	Origin      Chain    `json:"origin"`
	Destination Chain    `json:"destination"`
	Protocol    Protocol `json:"protocol"`
}

type Fees struct {
	Bridge sdkmath.Int `json:"bridge"`
	Total  sdkmath.Int `json:"total"`
}

type Execution struct {
	RequiredSignatureCount int           `json:"requiredSignatureCount"`
	Time                   time.Duration `json:"time"`
}

// Quote is a priced, routed teleport proposal.
// Amount is what the destination receives, Total is what the origin spends.
type Quote struct {
	Route     Route        `json:"route"`
	Fees      Fees         `json:"fees"`
	Amount    sdkmath.Int  `json:"amount"`
	Total     sdkmath.Int  `json:"total"`
	Asset     Asset        `json:"asset"`
	Execution Execution    `json:"execution"`
	Mode      TeleportMode `json:"teleportMode"`
}

// NewQuote builds a quote whose Total is always Amount + Fees.Total.
func NewQuote(route Route, asset Asset, mode TeleportMode, amount sdkmath.Int, fees Fees, exec Execution) Quote {
	return Quote{
		Route:     route,
		Fees:      fees,
		Amount:    amount,
		Total:     amount.Add(fees.Total),
		Asset:     asset,
		Execution: exec,
		Mode:      mode,
	}
}
