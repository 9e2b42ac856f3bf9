package config

import (
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/exezbcz/paraport/internal/domain/model"
)

// CatalogueFile is the YAML description of the routable assets.
//
//	assets:
//	  - symbol: DOT
//	    decimals: 10
//	    chains:
//	      - chain: Polkadot
//	        existentialDeposit: "10000000000"
type CatalogueFile struct {
	Assets []AssetSpec `yaml:"assets"`
}

type AssetSpec struct {
	Symbol   string           `yaml:"symbol"`
	Decimals uint8            `yaml:"decimals"`
	Chains   []ChainAssetSpec `yaml:"chains"`
}

type ChainAssetSpec struct {
	Chain              string `yaml:"chain"`
	ExistentialDeposit string `yaml:"existentialDeposit"`
	ID                 string `yaml:"id,omitempty"`
}

// ChainAsset is the resolved metadata of an asset on one chain.
type ChainAsset struct {
	Chain              model.Chain
	Info               model.AssetInfo
	ExistentialDeposit sdkmath.Int
}

// DefaultCatalogueFile describes DOT and KSM on their relay chains and asset hubs.
func DefaultCatalogueFile() CatalogueFile {
	return CatalogueFile{Assets: []AssetSpec{
		{
			Symbol:   "DOT",
			Decimals: 10,
			Chains: []ChainAssetSpec{
				{Chain: "Polkadot", ExistentialDeposit: "10000000000"},
				{Chain: "AssetHubPolkadot", ExistentialDeposit: "100000000"},
			},
		},
		{
			Symbol:   "KSM",
			Decimals: 12,
			Chains: []ChainAssetSpec{
				{Chain: "Kusama", ExistentialDeposit: "333333333"},
				{Chain: "AssetHubKusama", ExistentialDeposit: "3333333"},
			},
		},
	}}
}

func LoadCatalogueFile(path string) (CatalogueFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CatalogueFile{}, fmt.Errorf("read catalogue file: %w", err)
	}
	var f CatalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return CatalogueFile{}, model.ErrConfigValidation.Wrapf("parse catalogue %s: %v", path, err)
	}
	if err := f.validate(); err != nil {
		return CatalogueFile{}, err
	}
	return f, nil
}

func (f CatalogueFile) validate() error {
	if len(f.Assets) == 0 {
		return model.ErrConfigValidation.Wrap("catalogue lists no assets")
	}
	_, err := f.Resolve()
	return err
}

// Resolve checks every entry and returns the per-chain asset metadata.
func (f CatalogueFile) Resolve() ([]ChainAsset, error) {
	var out []ChainAsset
	seen := make(map[string]bool)
	for _, a := range f.Assets {
		if a.Symbol == "" {
			return nil, model.ErrConfigValidation.Wrap("catalogue asset without symbol")
		}
		if len(a.Chains) == 0 {
			return nil, model.ErrConfigValidation.Wrapf("asset %s lists no chains", a.Symbol)
		}
		for _, c := range a.Chains {
			ch, ok := model.ParseChain(c.Chain)
			if !ok {
				return nil, model.ErrConfigValidation.Wrapf("asset %s: unknown chain %q", a.Symbol, c.Chain)
			}
			key := a.Symbol + "@" + ch.String()
			if seen[key] {
				return nil, model.ErrConfigValidation.Wrapf("asset %s listed twice on %s", a.Symbol, ch)
			}
			seen[key] = true

			ed := sdkmath.ZeroInt()
			if c.ExistentialDeposit != "" {
				v, ok := sdkmath.NewIntFromString(c.ExistentialDeposit)
				if !ok || v.IsNegative() {
					return nil, model.ErrConfigValidation.Wrapf("asset %s on %s: invalid existential deposit %q", a.Symbol, ch, c.ExistentialDeposit)
				}
				ed = v
			}
			out = append(out, ChainAsset{
				Chain:              ch,
				Info:               model.AssetInfo{Symbol: model.Asset(a.Symbol), Decimals: a.Decimals, ID: c.ID},
				ExistentialDeposit: ed,
			})
		}
	}
	return out, nil
}

// Catalogue builds the routing catalogue, keeping the file's chain order.
func (f CatalogueFile) Catalogue() model.Catalogue {
	assets := make(map[model.Asset][]model.Chain)
	for _, a := range f.Assets {
		for _, c := range a.Chains {
			if ch, ok := model.ParseChain(c.Chain); ok {
				assets[model.Asset(a.Symbol)] = append(assets[model.Asset(a.Symbol)], ch)
			}
		}
	}
	return model.NewCatalogue(assets)
}
