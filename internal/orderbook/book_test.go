package orderbook

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	baseData  = "0xbase"
	quoteData = "0xquote"
)

func order(id byte, maker, taker string, makerAmt, takerAmt int64, expiresIn time.Duration) SignedOrder {
	return SignedOrder{
		OrderHash:             common.BytesToHash([]byte{id}),
		MakerAssetData:        maker,
		TakerAssetData:        taker,
		MakerAssetAmount:      big.NewInt(makerAmt),
		TakerAssetAmount:      big.NewInt(takerAmt),
		RelayerFee:            big.NewInt(0),
		ExpirationTimeSeconds: time.Now().Add(expiresIn).Unix(),
	}
}

func TestBookReplaceAndDepth(t *testing.T) {
	b := NewBook()
	b.Replace(baseData, quoteData,
		[]SignedOrder{order(1, baseData, quoteData, 5, 10, time.Hour)},
		[]SignedOrder{order(2, quoteData, baseData, 12, 6, time.Hour)},
	)

	asks, bids := b.Depth(baseData, quoteData)
	assert.Equal(t, 1, asks)
	assert.Equal(t, 1, bids)

	// Replace drops everything previously cached.
	b.Replace(baseData, quoteData, nil, nil)
	asks, bids = b.Depth(baseData, quoteData)
	assert.Equal(t, 0, asks)
	assert.Equal(t, 0, bids)
}

func TestBookUpsertRoutesBySide(t *testing.T) {
	b := NewBook()
	b.Upsert(baseData, quoteData, order(1, baseData, quoteData, 5, 10, time.Hour))
	b.Upsert(baseData, quoteData, order(2, quoteData, baseData, 12, 6, time.Hour))

	require.Len(t, b.Asks(baseData, quoteData), 1)
	require.Len(t, b.Bids(baseData, quoteData), 1)

	// Upserting the same hash replaces, not duplicates.
	b.Upsert(baseData, quoteData, order(1, baseData, quoteData, 7, 14, time.Hour))
	asks := b.Asks(baseData, quoteData)
	require.Len(t, asks, 1)
	assert.Equal(t, int64(7), asks[0].MakerAssetAmount.Int64())
}

func TestBookRemove(t *testing.T) {
	b := NewBook()
	o := order(1, baseData, quoteData, 5, 10, time.Hour)
	b.Upsert(baseData, quoteData, o)
	b.Remove(baseData, quoteData, o.OrderHash)
	assert.Empty(t, b.Asks(baseData, quoteData))
}

func TestBookPrune(t *testing.T) {
	b := NewBook()
	b.Replace(baseData, quoteData,
		[]SignedOrder{
			order(1, baseData, quoteData, 5, 10, time.Hour),
			order(2, baseData, quoteData, 5, 10, 10*time.Second), // dies inside buffer
			order(3, baseData, quoteData, 0, 10, time.Hour),      // zero amount
		},
		[]SignedOrder{
			order(4, quoteData, baseData, 12, 6, -time.Minute), // already expired
		},
	)

	removed := b.Prune(baseData, quoteData, time.Now(), 30*time.Second)
	assert.Equal(t, 3, removed)

	asks, bids := b.Depth(baseData, quoteData)
	assert.Equal(t, 1, asks)
	assert.Equal(t, 0, bids)
}

func TestOrderPriceQuotePerBase(t *testing.T) {
	a := order(1, baseData, quoteData, 5, 10, time.Hour)
	assert.Equal(t, "2", a.PriceQuotePerBase(baseData).String())

	bd := order(2, quoteData, baseData, 18, 6, time.Hour)
	assert.Equal(t, "3", bd.PriceQuotePerBase(baseData).String())
}

func TestOrderQuoteForBaseRoundsDown(t *testing.T) {
	a := order(1, baseData, quoteData, 6, 18, time.Hour)
	assert.Equal(t, int64(15), a.QuoteForBase(baseData, big.NewInt(5)).Int64())

	odd := order(2, baseData, quoteData, 3, 10, time.Hour)
	// 10*2/3 = 6.66 truncates to 6
	assert.Equal(t, int64(6), odd.QuoteForBase(baseData, big.NewInt(2)).Int64())
}

func TestOrderHashIsStable(t *testing.T) {
	a := order(1, baseData, quoteData, 5, 10, time.Hour)
	b := a
	assert.Equal(t, a.Hash(), b.Hash())

	b.MakerAssetAmount = big.NewInt(6)
	assert.NotEqual(t, a.Hash(), b.Hash())
}
