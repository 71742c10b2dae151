// Package matcher walks a book of discrete limit orders and produces the
// fill quote for a market buy or sell: which orders to consume, the total
// cost, the size-weighted average price, and the best/worst-case cost
// envelopes used by the downstream balance checks.
package matcher

import (
	"bytes"
	"errors"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/you/zrx-trader/internal/asset"
	"github.com/you/zrx-trader/internal/orderbook"
)

// ErrInsufficientLiquidity means the live book cannot cover the requested
// amount even when every non-expired order is consumed in full.
var ErrInsufficientLiquidity = errors.New("insufficient liquidity in orderbook")

// Policy fixes the matching knobs for one reconciliation attempt.
type Policy struct {
	// SlippagePercentage inflates the worst-case envelope relative to the
	// best case. It never changes which orders are selected.
	SlippagePercentage decimal.Decimal
	// ExpiryBuffer excludes orders expiring within this window of now, so a
	// fill is not submitted against an order that dies in flight.
	ExpiryBuffer time.Duration
}

// QuoteInfo is one bound of the cost envelope.
type QuoteInfo struct {
	// Fee is the relayer fee total in fee-asset base units.
	Fee *big.Int
	// EthPerAssetPrice is the effective quote-asset units paid or received
	// per unit of base asset.
	EthPerAssetPrice decimal.Decimal
}

// FillQuote is the immutable result of matching one market order against the
// book. Discarded whenever the side, amount, or book changes.
type FillQuote struct {
	Side   orderbook.Side
	Orders []orderbook.SignedOrder // consumption order

	// AssetBuyAmount and AssetSellAmount are base units of the received and
	// spent asset respectively. For a buy the sell side is the quote asset;
	// for a sell it is the base asset.
	AssetBuyAmount  *big.Int
	AssetSellAmount *big.Int

	BestCaseQuoteInfo  QuoteInfo
	WorstCaseQuoteInfo QuoteInfo

	// PriceAverage is the size-weighted mean price across consumed orders,
	// in quote units per base unit.
	PriceAverage decimal.Decimal

	// RelayerFeeTotal sums each consumed order's fee, pro-rated for partial
	// consumption.
	RelayerFeeTotal *big.Int
}

// Match consumes orders best-price-first for the given side until
// baseUnitAmount of the base asset is covered, the last order partially.
//
// A nil, nil return means the filtered book held no orders at all — there is
// nothing to quote, which callers treat as a quiet abort rather than an
// error.
func Match(side orderbook.Side, baseUnitAmount *big.Int, orders []orderbook.SignedOrder, base, quote asset.Asset, p Policy) (*FillQuote, error) {
	if baseUnitAmount == nil || baseUnitAmount.Sign() <= 0 {
		return nil, nil
	}

	now := time.Now()
	live := make([]orderbook.SignedOrder, 0, len(orders))
	for _, o := range orders {
		if o.Expired(now, p.ExpiryBuffer) {
			continue
		}
		if o.BaseAvailable(base.AssetData).Sign() <= 0 {
			continue
		}
		live = append(live, o)
	}
	if len(live) == 0 {
		return nil, nil
	}

	// Cheapest first for a buy, best bid first for a sell. Hash tie-break
	// keeps the consumption order deterministic.
	sort.SliceStable(live, func(i, j int) bool {
		pi := live[i].PriceQuotePerBase(base.AssetData)
		pj := live[j].PriceQuotePerBase(base.AssetData)
		if c := pi.Cmp(pj); c != 0 {
			if side == orderbook.SideBuy {
				return c < 0
			}
			return c > 0
		}
		return bytes.Compare(live[i].OrderHash[:], live[j].OrderHash[:]) < 0
	})

	var (
		consumed   []orderbook.SignedOrder
		remaining  = new(big.Int).Set(baseUnitAmount)
		baseTotal  = new(big.Int)
		quoteTotal = new(big.Int)
		feeTotal   = new(big.Int)
	)
	for _, o := range live {
		if remaining.Sign() == 0 {
			break
		}
		avail := o.BaseAvailable(base.AssetData)
		take := remaining
		if avail.Cmp(remaining) < 0 {
			take = avail
		}
		baseTotal.Add(baseTotal, take)
		quoteTotal.Add(quoteTotal, o.QuoteForBase(base.AssetData, take))
		feeTotal.Add(feeTotal, prorateFee(o.RelayerFee, take, avail))
		remaining = new(big.Int).Sub(remaining, take)
		consumed = append(consumed, o)
	}
	if remaining.Sign() > 0 {
		return nil, ErrInsufficientLiquidity
	}

	avg := decimal.Zero
	unitBase := base.UnitAmount(baseTotal)
	if !unitBase.IsZero() {
		avg = quote.UnitAmount(quoteTotal).Div(unitBase)
	}

	slip := decimal.NewFromInt(1)
	if side == orderbook.SideBuy {
		slip = slip.Add(p.SlippagePercentage)
	} else {
		slip = slip.Sub(p.SlippagePercentage)
	}
	worstFee := decimal.NewFromBigInt(feeTotal, 0).
		Mul(decimal.NewFromInt(1).Add(p.SlippagePercentage)).
		Ceil().BigInt()

	q := &FillQuote{
		Side:            side,
		Orders:          consumed,
		PriceAverage:    avg,
		RelayerFeeTotal: feeTotal,
		BestCaseQuoteInfo: QuoteInfo{
			Fee:              feeTotal,
			EthPerAssetPrice: avg,
		},
		WorstCaseQuoteInfo: QuoteInfo{
			Fee:              worstFee,
			EthPerAssetPrice: avg.Mul(slip),
		},
	}
	if side == orderbook.SideBuy {
		q.AssetBuyAmount = baseTotal
		q.AssetSellAmount = quoteTotal
	} else {
		q.AssetSellAmount = baseTotal
		q.AssetBuyAmount = quoteTotal
	}
	return q, nil
}

// prorateFee scales an order's relayer fee by the consumed fraction,
// rounding down.
func prorateFee(fee, take, avail *big.Int) *big.Int {
	if fee == nil || fee.Sign() == 0 {
		return new(big.Int)
	}
	if take.Cmp(avail) == 0 {
		return new(big.Int).Set(fee)
	}
	out := new(big.Int).Mul(fee, take)
	return out.Div(out, avail)
}
