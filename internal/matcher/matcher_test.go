package matcher

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/zrx-trader/internal/asset"
	"github.com/you/zrx-trader/internal/orderbook"
)

var (
	baseAsset  = asset.Asset{AssetData: "0xbase", Symbol: "BASE", Decimals: 0}
	quoteAsset = asset.Asset{AssetData: "0xquote", Symbol: "QUOTE", Decimals: 0}
)

func testPolicy() Policy {
	return Policy{
		SlippagePercentage: decimal.RequireFromString("0.2"),
		ExpiryBuffer:       30 * time.Second,
	}
}

// ask offers baseAmt of BASE for quoteAmt of QUOTE.
func ask(id byte, baseAmt, quoteAmt, fee int64, expiresIn time.Duration) orderbook.SignedOrder {
	return orderbook.SignedOrder{
		OrderHash:             common.BytesToHash([]byte{id}),
		MakerAssetData:        baseAsset.AssetData,
		TakerAssetData:        quoteAsset.AssetData,
		MakerAssetAmount:      big.NewInt(baseAmt),
		TakerAssetAmount:      big.NewInt(quoteAmt),
		RelayerFee:            big.NewInt(fee),
		ExpirationTimeSeconds: time.Now().Add(expiresIn).Unix(),
	}
}

// bid offers quoteAmt of QUOTE for baseAmt of BASE.
func bid(id byte, quoteAmt, baseAmt, fee int64, expiresIn time.Duration) orderbook.SignedOrder {
	return orderbook.SignedOrder{
		OrderHash:             common.BytesToHash([]byte{id}),
		MakerAssetData:        quoteAsset.AssetData,
		TakerAssetData:        baseAsset.AssetData,
		MakerAssetAmount:      big.NewInt(quoteAmt),
		TakerAssetAmount:      big.NewInt(baseAmt),
		RelayerFee:            big.NewInt(fee),
		ExpirationTimeSeconds: time.Now().Add(expiresIn).Unix(),
	}
}

func TestMatchBuyPartialSecondOrder(t *testing.T) {
	// 5 @ 2 and 6 @ 3; buying 10 takes all of the first and 5 of the second.
	book := []orderbook.SignedOrder{
		ask(2, 6, 18, 0, time.Hour),
		ask(1, 5, 10, 0, time.Hour),
	}

	q, err := Match(orderbook.SideBuy, big.NewInt(10), book, baseAsset, quoteAsset, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, q)

	assert.Equal(t, int64(10), q.AssetBuyAmount.Int64())
	assert.Equal(t, int64(25), q.AssetSellAmount.Int64())
	assert.True(t, q.PriceAverage.Equal(decimal.RequireFromString("2.5")), "got %s", q.PriceAverage)
	require.Len(t, q.Orders, 2)
	// Cheapest first.
	assert.Equal(t, int64(5), q.Orders[0].MakerAssetAmount.Int64())
	assert.Equal(t, int64(6), q.Orders[1].MakerAssetAmount.Int64())

	// Best case is the average price; worst case carries 20% headroom.
	assert.True(t, q.BestCaseQuoteInfo.EthPerAssetPrice.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, q.WorstCaseQuoteInfo.EthPerAssetPrice.Equal(decimal.RequireFromString("3")))
}

func TestMatchBuyExactFill(t *testing.T) {
	book := []orderbook.SignedOrder{ask(1, 5, 10, 0, time.Hour)}

	q, err := Match(orderbook.SideBuy, big.NewInt(5), book, baseAsset, quoteAsset, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, int64(5), q.AssetBuyAmount.Int64())
	assert.Equal(t, int64(10), q.AssetSellAmount.Int64())
}

func TestMatchSellConsumesBestBidFirst(t *testing.T) {
	book := []orderbook.SignedOrder{
		bid(1, 10, 5, 0, time.Hour), // 2 QUOTE per BASE
		bid(2, 18, 6, 0, time.Hour), // 3 QUOTE per BASE
	}

	q, err := Match(orderbook.SideSell, big.NewInt(10), book, baseAsset, quoteAsset, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, q)

	assert.Equal(t, int64(10), q.AssetSellAmount.Int64())
	// All of the 3-priced bid, then 4 into the 2-priced one: 18 + 8.
	assert.Equal(t, int64(26), q.AssetBuyAmount.Int64())
	assert.Equal(t, int64(18), q.Orders[0].MakerAssetAmount.Int64())
	// Worst case shrinks the receive price on a sell.
	assert.True(t, q.WorstCaseQuoteInfo.EthPerAssetPrice.LessThan(q.BestCaseQuoteInfo.EthPerAssetPrice))
}

func TestMatchInsufficientLiquidity(t *testing.T) {
	book := []orderbook.SignedOrder{
		ask(1, 5, 10, 0, time.Hour),
		ask(2, 6, 18, 0, time.Hour),
	}

	q, err := Match(orderbook.SideBuy, big.NewInt(12), book, baseAsset, quoteAsset, testPolicy())
	assert.Nil(t, q)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestMatchEmptyBookIsNotAnError(t *testing.T) {
	q, err := Match(orderbook.SideBuy, big.NewInt(10), nil, baseAsset, quoteAsset, testPolicy())
	assert.Nil(t, q)
	assert.NoError(t, err)
}

func TestMatchExpiryBufferExcludesDyingOrders(t *testing.T) {
	book := []orderbook.SignedOrder{
		ask(1, 10, 20, 0, 10*time.Second), // inside the 30s buffer
		ask(2, 10, 30, 0, time.Hour),
	}

	q, err := Match(orderbook.SideBuy, big.NewInt(10), book, baseAsset, quoteAsset, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, q)
	require.Len(t, q.Orders, 1)
	assert.Equal(t, int64(30), q.AssetSellAmount.Int64())
}

func TestMatchOnlyExpiredOrdersMeansNothingToQuote(t *testing.T) {
	book := []orderbook.SignedOrder{ask(1, 10, 20, 0, 5*time.Second)}

	q, err := Match(orderbook.SideBuy, big.NewInt(5), book, baseAsset, quoteAsset, testPolicy())
	assert.Nil(t, q)
	assert.NoError(t, err)
}

func TestMatchProratesRelayerFee(t *testing.T) {
	book := []orderbook.SignedOrder{
		ask(1, 5, 10, 100, time.Hour),
		ask(2, 6, 18, 60, time.Hour),
	}

	q, err := Match(orderbook.SideBuy, big.NewInt(10), book, baseAsset, quoteAsset, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, q)

	// Full fee on the first order, 5/6 of the second: 100 + 50.
	assert.Equal(t, int64(150), q.RelayerFeeTotal.Int64())
	assert.Equal(t, int64(150), q.BestCaseQuoteInfo.Fee.Int64())
	// Worst case rounds the 20% headroom up.
	assert.Equal(t, int64(180), q.WorstCaseQuoteInfo.Fee.Int64())
}

func TestMatchAveragePriceIsBoundedByConsumedPrices(t *testing.T) {
	book := []orderbook.SignedOrder{
		ask(1, 4, 4, 0, time.Hour),  // price 1
		ask(2, 4, 12, 0, time.Hour), // price 3
		ask(3, 4, 28, 0, time.Hour), // price 7
	}

	for _, amt := range []int64{2, 5, 9, 12} {
		q, err := Match(orderbook.SideBuy, big.NewInt(amt), book, baseAsset, quoteAsset, testPolicy())
		require.NoError(t, err)
		require.NotNil(t, q)
		assert.True(t, q.PriceAverage.GreaterThanOrEqual(decimal.NewFromInt(1)), "amt %d avg %s", amt, q.PriceAverage)
		assert.True(t, q.PriceAverage.LessThanOrEqual(decimal.NewFromInt(7)), "amt %d avg %s", amt, q.PriceAverage)
	}
}

func TestMatchSlippageDoesNotChangeSelection(t *testing.T) {
	book := []orderbook.SignedOrder{
		ask(1, 5, 10, 0, time.Hour),
		ask(2, 6, 18, 0, time.Hour),
	}

	loose := testPolicy()
	tight := testPolicy()
	tight.SlippagePercentage = decimal.Zero

	ql, err := Match(orderbook.SideBuy, big.NewInt(10), book, baseAsset, quoteAsset, loose)
	require.NoError(t, err)
	qt, err := Match(orderbook.SideBuy, big.NewInt(10), book, baseAsset, quoteAsset, tight)
	require.NoError(t, err)

	assert.Equal(t, ql.AssetSellAmount.Int64(), qt.AssetSellAmount.Int64())
	assert.Equal(t, len(ql.Orders), len(qt.Orders))
	assert.True(t, qt.WorstCaseQuoteInfo.EthPerAssetPrice.Equal(qt.BestCaseQuoteInfo.EthPerAssetPrice))
}
