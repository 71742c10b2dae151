package asset

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Registry is the immutable asset lookup table. The relayer fee asset (ZRX)
// and the network fee asset (wrapped ether) are designated at load time.
type Registry struct {
	byData    map[string]Asset
	byAddress map[common.Address]Asset
	feeAsset  Asset
	netAsset  Asset
}

type registryFile struct {
	FeeAssetSymbol     string `yaml:"fee_asset"`
	NetworkAssetSymbol string `yaml:"network_fee_asset"`
	Assets             []struct {
		AssetData string `yaml:"asset_data"`
		Address   string `yaml:"address"`
		Symbol    string `yaml:"symbol"`
		Decimals  int32  `yaml:"decimals"`
	} `yaml:"assets"`
}

func NewRegistry(assets []Asset, feeSymbol, networkFeeSymbol string) (*Registry, error) {
	r := &Registry{
		byData:    make(map[string]Asset, len(assets)),
		byAddress: make(map[common.Address]Asset, len(assets)),
	}
	for _, a := range assets {
		if a.AssetData == "" {
			return nil, fmt.Errorf("asset %s has empty assetData", a.Symbol)
		}
		r.byData[a.AssetData] = a
		r.byAddress[a.Address] = a
	}
	var ok bool
	if r.feeAsset, ok = r.findBySymbol(feeSymbol); !ok {
		return nil, fmt.Errorf("fee asset %q not in registry", feeSymbol)
	}
	if r.netAsset, ok = r.findBySymbol(networkFeeSymbol); !ok {
		return nil, fmt.Errorf("network fee asset %q not in registry", networkFeeSymbol)
	}
	return r, nil
}

// LoadRegistry reads the asset registry from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f registryFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse asset registry: %w", err)
	}
	if f.FeeAssetSymbol == "" {
		f.FeeAssetSymbol = "ZRX"
	}
	if f.NetworkAssetSymbol == "" {
		f.NetworkAssetSymbol = "WETH"
	}
	assets := make([]Asset, 0, len(f.Assets))
	for _, a := range f.Assets {
		assets = append(assets, Asset{
			AssetData: a.AssetData,
			Address:   common.HexToAddress(a.Address),
			Symbol:    a.Symbol,
			Decimals:  a.Decimals,
		})
	}
	return NewRegistry(assets, f.FeeAssetSymbol, f.NetworkAssetSymbol)
}

func (r *Registry) FeeAsset() Asset        { return r.feeAsset }
func (r *Registry) NetworkFeeAsset() Asset { return r.netAsset }

func (r *Registry) FindByData(assetData string) (Asset, bool) {
	a, ok := r.byData[assetData]
	return a, ok
}

func (r *Registry) FindByAddress(addr common.Address) (Asset, bool) {
	a, ok := r.byAddress[addr]
	return a, ok
}

func (r *Registry) All() []Asset {
	out := make([]Asset, 0, len(r.byData))
	for _, a := range r.byData {
		out = append(out, a)
	}
	return out
}

func (r *Registry) findBySymbol(symbol string) (Asset, bool) {
	for _, a := range r.byData {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return Asset{}, false
}
