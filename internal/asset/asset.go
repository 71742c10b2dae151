package asset

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Asset is reference data for one tradeable token. Loaded once at startup,
// never mutated afterwards.
type Asset struct {
	AssetData string         `json:"assetData"`
	Address   common.Address `json:"address"`
	Symbol    string         `json:"symbol"`
	Decimals  int32          `json:"decimals"`
}

// UnitAmount converts base units to the human-scale unit amount.
func (a Asset) UnitAmount(baseUnits *big.Int) decimal.Decimal {
	if baseUnits == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(baseUnits, -a.Decimals)
}

// BaseUnitAmount converts a unit amount to base units, truncating any
// fraction below one base unit.
func (a Asset) BaseUnitAmount(unit decimal.Decimal) *big.Int {
	return unit.Shift(a.Decimals).Truncate(0).BigInt()
}
