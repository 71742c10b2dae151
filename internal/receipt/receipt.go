// Package receipt derives the confirmation view from a validated fill
// quote: the traded amounts, average price, relayer fee, and the projected
// wallet state after settlement. Everything here is display-only and
// recomputed whenever the quote or gas price changes.
package receipt

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/you/zrx-trader/internal/asset"
	"github.com/you/zrx-trader/internal/matcher"
	"github.com/you/zrx-trader/internal/orderbook"
	"github.com/you/zrx-trader/internal/wallet"
)

// Receipt holds the unit amounts shown on the confirmation screen.
type Receipt struct {
	Side         orderbook.Side
	Amount       decimal.Decimal // base asset bought or sold
	Payment      decimal.Decimal // opposite side, at the best-case price
	PriceAverage decimal.Decimal
	RelayerFee   decimal.Decimal // worst case
}

// BalanceLine is one per-asset row of the wallet projection.
type BalanceLine struct {
	Symbol string
	Amount decimal.Decimal
	Profit bool
	Loss   bool
}

// Project computes the receipt for a quote.
func Project(q *matcher.FillQuote, base, feeAsset asset.Asset) Receipt {
	var amount decimal.Decimal
	if q.Side == orderbook.SideBuy {
		amount = base.UnitAmount(q.AssetBuyAmount)
	} else {
		amount = base.UnitAmount(q.AssetSellAmount)
	}
	return Receipt{
		Side:         q.Side,
		Amount:       amount,
		Payment:      amount.Mul(q.BestCaseQuoteInfo.EthPerAssetPrice),
		PriceAverage: q.PriceAverage,
		RelayerFee:   feeAsset.UnitAmount(q.WorstCaseQuoteInfo.Fee),
	}
}

// ProjectWalletDelta returns the pre- and post-trade balances for the
// base, quote, and fee assets. The fee delta is applied on top of the
// side-specific deltas, so a fee asset that coincides with the base or
// quote asset is adjusted twice.
func ProjectWalletDelta(r Receipt, balances wallet.Ledger, base, quote, feeAsset asset.Asset) (before, after []BalanceLine) {
	assets := dedupe(base, quote, feeAsset)

	post := make(map[common.Address]decimal.Decimal, len(assets))
	for _, a := range assets {
		post[a.Address] = balances.BalanceByAddress(a.Address)
	}

	if r.Side == orderbook.SideBuy {
		post[quote.Address] = post[quote.Address].Sub(r.Payment)
		post[base.Address] = post[base.Address].Add(r.Amount)
	} else {
		post[quote.Address] = post[quote.Address].Add(r.Payment)
		post[base.Address] = post[base.Address].Sub(r.Amount)
	}
	post[feeAsset.Address] = post[feeAsset.Address].Sub(r.RelayerFee)

	for _, a := range assets {
		pre := balances.BalanceByAddress(a.Address)
		cur := post[a.Address]
		before = append(before, BalanceLine{Symbol: a.Symbol, Amount: pre})
		after = append(after, BalanceLine{
			Symbol: a.Symbol,
			Amount: cur,
			Profit: cur.GreaterThan(pre),
			Loss:   cur.LessThan(pre),
		})
	}
	return before, after
}

func dedupe(assets ...asset.Asset) []asset.Asset {
	seen := make(map[common.Address]bool, len(assets))
	out := make([]asset.Asset, 0, len(assets))
	for _, a := range assets {
		if seen[a.Address] {
			continue
		}
		seen[a.Address] = true
		out = append(out, a)
	}
	return out
}
