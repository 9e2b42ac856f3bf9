package model

import (
	sdkmath "cosmossdk.io/math"
)

// Balance is one account's holding of an asset on a chain.
// Transferable is Amount minus the chain's existential reserve, floored at zero.
type Balance struct {
	Chain        Chain       `json:"chain"`
	Address      string      `json:"address"`
	Asset        Asset       `json:"asset"`
	Amount       sdkmath.Int `json:"amount"`
	Transferable sdkmath.Int `json:"transferable"`
}

// NewBalance derives the transferable amount from the raw amount and reserve.
func NewBalance(chain Chain, address string, asset Asset, amount, reserve sdkmath.Int) Balance {
	transferable := amount.Sub(reserve)
	if transferable.IsNegative() {
		transferable = sdkmath.ZeroInt()
	}
	return Balance{
		Chain:        chain,
		Address:      address,
		Asset:        asset,
		Amount:       amount,
		Transferable: transferable,
	}
}
