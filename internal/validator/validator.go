// Package validator applies the balance sufficiency checks to a fill quote:
// quote/base asset spend, then relayer fee, then (after gas estimation)
// network gas cost. Checks short-circuit, so a caller always sees the first
// applicable shortfall only.
package validator

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/you/zrx-trader/internal/asset"
	"github.com/you/zrx-trader/internal/matcher"
	"github.com/you/zrx-trader/internal/orderbook"
	"github.com/you/zrx-trader/internal/wallet"
)

// ShortfallKind identifies which balance came up short.
type ShortfallKind string

const (
	InsufficientQuoteAsset ShortfallKind = "insufficient_quote_asset"
	InsufficientBaseAsset  ShortfallKind = "insufficient_base_asset"
	InsufficientFeeAsset   ShortfallKind = "insufficient_fee_asset"
	InsufficientGasAsset   ShortfallKind = "insufficient_gas_asset"
)

// ShortfallError carries everything needed to render an exact "you have X,
// need Y" message.
type ShortfallError struct {
	Kind      ShortfallKind
	Symbol    string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("not enough %s: have %s, need %s", e.Symbol, e.Available, e.Required)
}

// CheckFunds runs the pre-gas checks in order: the side's spend asset, then
// the relayer fee asset. An exactly-sufficient balance passes.
func CheckFunds(q *matcher.FillQuote, balances wallet.Ledger, base, quote, feeAsset asset.Asset) error {
	if q.Side == orderbook.SideBuy {
		required := quote.UnitAmount(q.AssetSellAmount)
		available := balances.BalanceByAssetData(quote.AssetData)
		if required.GreaterThan(available) {
			return &ShortfallError{
				Kind:      InsufficientQuoteAsset,
				Symbol:    quote.Symbol,
				Available: available,
				Required:  required,
			}
		}
	} else {
		required := base.UnitAmount(q.AssetSellAmount)
		available := balances.BalanceByAssetData(base.AssetData)
		if required.GreaterThan(available) {
			return &ShortfallError{
				Kind:      InsufficientBaseAsset,
				Symbol:    base.Symbol,
				Available: available,
				Required:  required,
			}
		}
	}

	requiredFee := feeAsset.UnitAmount(q.BestCaseQuoteInfo.Fee)
	availableFee := balances.BalanceByAssetData(feeAsset.AssetData)
	if requiredFee.GreaterThan(availableFee) {
		return &ShortfallError{
			Kind:      InsufficientFeeAsset,
			Symbol:    feeAsset.Symbol,
			Available: availableFee,
			Required:  requiredFee,
		}
	}
	return nil
}

// CheckGas compares gasPrice × gasUnits, in the network fee asset's native
// unit, against the snapshot taken before estimation. The snapshot is
// deliberately not re-read here.
func CheckGas(gasPriceWei *big.Int, gasUnits uint64, balances wallet.Ledger, networkFeeAsset asset.Asset) error {
	cost := wallet.ConvertGasPriceToEth(gasPriceWei).Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(gasUnits), 0))
	available := balances.BalanceByAssetData(networkFeeAsset.AssetData)
	if cost.GreaterThan(available) {
		return &ShortfallError{
			Kind:      InsufficientGasAsset,
			Symbol:    networkFeeAsset.Symbol,
			Available: available,
			Required:  cost,
		}
	}
	return nil
}
