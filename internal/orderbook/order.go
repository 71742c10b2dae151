package orderbook

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Side of a market order from the taker's point of view: buy acquires the
// base asset, sell disposes of it.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SignedOrder is one resting limit order as served by the relayer. Amounts
// are non-negative integers in base units. The core only reads orders; the
// book cache owns them.
type SignedOrder struct {
	OrderHash             common.Hash `json:"orderHash"`
	MakerAssetData        string      `json:"makerAssetData"`
	TakerAssetData        string      `json:"takerAssetData"`
	MakerAssetAmount      *big.Int    `json:"makerAssetAmount"`
	TakerAssetAmount      *big.Int    `json:"takerAssetAmount"`
	RelayerFee            *big.Int    `json:"relayerFee"`
	ExpirationTimeSeconds int64       `json:"expirationTimeSeconds"`
}

// Expired reports whether the order expires within buffer of now.
func (o *SignedOrder) Expired(now time.Time, buffer time.Duration) bool {
	return o.ExpirationTimeSeconds <= now.Add(buffer).Unix()
}

// PriceQuotePerBase is the order's quote-per-base ratio in base-unit terms.
// For an ask the maker side is the base asset; for a bid it is the quote
// asset.
func (o *SignedOrder) PriceQuotePerBase(baseAssetData string) decimal.Decimal {
	maker := decimal.NewFromBigInt(o.MakerAssetAmount, 0)
	taker := decimal.NewFromBigInt(o.TakerAssetAmount, 0)
	if o.MakerAssetData == baseAssetData {
		if maker.IsZero() {
			return decimal.Zero
		}
		return taker.Div(maker)
	}
	if taker.IsZero() {
		return decimal.Zero
	}
	return maker.Div(taker)
}

// BaseAvailable returns the base-asset base units this order can still fill.
func (o *SignedOrder) BaseAvailable(baseAssetData string) *big.Int {
	if o.MakerAssetData == baseAssetData {
		return o.MakerAssetAmount
	}
	return o.TakerAssetAmount
}

// QuoteForBase returns the quote-asset base units exchanged when baseUnits of
// the base asset are consumed from this order, rounded down.
func (o *SignedOrder) QuoteForBase(baseAssetData string, baseUnits *big.Int) *big.Int {
	var quoteTotal, baseTotal *big.Int
	if o.MakerAssetData == baseAssetData {
		quoteTotal, baseTotal = o.TakerAssetAmount, o.MakerAssetAmount
	} else {
		quoteTotal, baseTotal = o.MakerAssetAmount, o.TakerAssetAmount
	}
	if baseTotal.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(quoteTotal, baseUnits)
	return out.Div(out, baseTotal)
}

// Hash computes the identifying hash over the order's economic fields. Used
// when the relayer omits orderHash from a record.
func (o *SignedOrder) Hash() common.Hash {
	var buf []byte
	buf = append(buf, []byte(o.MakerAssetData)...)
	buf = append(buf, []byte(o.TakerAssetData)...)
	buf = append(buf, o.MakerAssetAmount.Bytes()...)
	buf = append(buf, o.TakerAssetAmount.Bytes()...)
	if o.RelayerFee != nil {
		buf = append(buf, o.RelayerFee.Bytes()...)
	}
	buf = append(buf, big.NewInt(o.ExpirationTimeSeconds).Bytes()...)
	return crypto.Keccak256Hash(buf)
}
