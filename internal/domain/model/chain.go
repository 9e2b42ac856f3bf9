package model

import (
	"slices"
	"strings"
)

type Chain string

const (
	ChainPolkadot         Chain = "Polkadot"
	ChainAssetHubPolkadot Chain = "AssetHubPolkadot"
	ChainKusama           Chain = "Kusama"
	ChainAssetHubKusama   Chain = "AssetHubKusama"
)

func (c Chain) String() string {
	return string(c)
}

// AllChains lists every chain the engine knows how to route between.
func AllChains() []Chain {
	return []Chain{ChainPolkadot, ChainAssetHubPolkadot, ChainKusama, ChainAssetHubKusama}
}

// ParseChain resolves a chain name case-insensitively.
func ParseChain(s string) (Chain, bool) {
	s = strings.TrimSpace(s)
	for _, c := range AllChains() {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

type Asset string

const (
	AssetDOT Asset = "DOT"
	AssetKSM Asset = "KSM"
)

func (a Asset) String() string {
	return string(a)
}

type Protocol string

const (
	ProtocolXCM Protocol = "XCM"
)

func (p Protocol) String() string {
	return string(p)
}

// AssetInfo is per-chain asset metadata.
type AssetInfo struct {
	Symbol   Asset  `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
}

// Catalogue maps each asset to the chains that hold it, in routing preference order.
type Catalogue struct {
	assets map[Asset][]Chain
}

func NewCatalogue(assets map[Asset][]Chain) Catalogue {
	cp := make(map[Asset][]Chain, len(assets))
	for a, chains := range assets {
		cp[a] = slices.Clone(chains)
	}
	return Catalogue{assets: cp}
}

// DefaultCatalogue returns the relay chains and their asset hubs.
func DefaultCatalogue() Catalogue {
	return NewCatalogue(map[Asset][]Chain{
		AssetDOT: {ChainPolkadot, ChainAssetHubPolkadot},
		AssetKSM: {ChainKusama, ChainAssetHubKusama},
	})
}

// Chains returns the chains holding asset, optionally restricted to allowed.
func (c Catalogue) Chains(asset Asset, allowed ...Chain) []Chain {
	chains := c.assets[asset]
	if len(allowed) == 0 {
		return slices.Clone(chains)
	}
	out := make([]Chain, 0, len(chains))
	for _, ch := range chains {
		if slices.Contains(allowed, ch) {
			out = append(out, ch)
		}
	}
	return out
}

func (c Catalogue) Supports(chain Chain, asset Asset) bool {
	return slices.Contains(c.assets[asset], chain)
}

func (c Catalogue) Assets() []Asset {
	out := make([]Asset, 0, len(c.assets))
	for a := range c.assets {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}
