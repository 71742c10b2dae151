// Package wallet provides point-in-time balance snapshots. The pipeline
// takes one snapshot at start and never re-reads mid-flow, so validation is
// deterministic for a given attempt.
package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/you/zrx-trader/internal/asset"
)

// Ledger is the read-only balance view the pipeline validates against.
type Ledger interface {
	BalanceByAssetData(assetData string) decimal.Decimal
	BalanceByAddress(addr common.Address) decimal.Decimal
}

// Snapshot is an immutable Ledger captured at one instant. Missing assets
// read as zero.
type Snapshot struct {
	byData map[string]decimal.Decimal
	byAddr map[common.Address]decimal.Decimal
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		byData: make(map[string]decimal.Decimal, 8),
		byAddr: make(map[common.Address]decimal.Decimal, 8),
	}
}

// Set records the unit-amount balance for an asset. Only used while building
// the snapshot; callers must not mutate a snapshot already handed to a
// pipeline.
func (s *Snapshot) Set(a asset.Asset, unitAmount decimal.Decimal) *Snapshot {
	s.byData[a.AssetData] = unitAmount
	s.byAddr[a.Address] = unitAmount
	return s
}

func (s *Snapshot) BalanceByAssetData(assetData string) decimal.Decimal {
	return s.byData[assetData]
}

func (s *Snapshot) BalanceByAddress(addr common.Address) decimal.Decimal {
	return s.byAddr[addr]
}

// ConvertGasPriceToEth converts a wei-denominated gas price to ether units.
func ConvertGasPriceToEth(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}
