package pipeline

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/zrx-trader/internal/asset"
	"github.com/you/zrx-trader/internal/matcher"
	"github.com/you/zrx-trader/internal/orderbook"
	"github.com/you/zrx-trader/internal/validator"
	"github.com/you/zrx-trader/internal/wallet"
)

var (
	baseAsset  = asset.Asset{AssetData: "0xbase", Address: common.HexToAddress("0x1"), Symbol: "BASE", Decimals: 0}
	quoteAsset = asset.Asset{AssetData: "0xquote", Address: common.HexToAddress("0x2"), Symbol: "QUOTE", Decimals: 0}
	feeAsset   = asset.Asset{AssetData: "0xzrx", Address: common.HexToAddress("0x3"), Symbol: "ZRX", Decimals: 0}
	netAsset   = asset.Asset{AssetData: "0xweth", Address: common.HexToAddress("0x4"), Symbol: "WETH", Decimals: 18}
)

type fakeBook struct {
	orders     []orderbook.SignedOrder
	refreshErr error
	pruneErr   error
	refreshes  atomic.Int32
	prunes     atomic.Int32
	blockFirst chan struct{} // when set, the first Refresh blocks until ctx ends
}

func (f *fakeBook) Refresh(ctx context.Context, base, quote string) error {
	n := f.refreshes.Add(1)
	if f.blockFirst != nil && n == 1 {
		close(f.blockFirst)
		<-ctx.Done()
		return ctx.Err()
	}
	return f.refreshErr
}

func (f *fakeBook) Prune(ctx context.Context, base, quote string) error {
	f.prunes.Add(1)
	return f.pruneErr
}

func (f *fakeBook) OrdersFor(side orderbook.Side, base, quote string) []orderbook.SignedOrder {
	return f.orders
}

type fakeGas struct {
	gas uint64
	err error
}

func (f fakeGas) EstimateFill(ctx context.Context, side orderbook.Side, orders []orderbook.SignedOrder, amount *big.Int) (uint64, error) {
	return f.gas, f.err
}

type fakeGasPrice struct {
	price *big.Int
	err   error
}

func (f fakeGasPrice) RefreshGasPrice(ctx context.Context) (*big.Int, error) {
	return f.price, f.err
}

type fakeRegistry struct{}

func (fakeRegistry) FeeAsset() asset.Asset        { return feeAsset }
func (fakeRegistry) NetworkFeeAsset() asset.Asset { return netAsset }

func ask(id byte, baseAmt, quoteAmt, fee int64) orderbook.SignedOrder {
	return orderbook.SignedOrder{
		OrderHash:             common.BytesToHash([]byte{id}),
		MakerAssetData:        baseAsset.AssetData,
		TakerAssetData:        quoteAsset.AssetData,
		MakerAssetAmount:      big.NewInt(baseAmt),
		TakerAssetAmount:      big.NewInt(quoteAmt),
		RelayerFee:            big.NewInt(fee),
		ExpirationTimeSeconds: time.Now().Add(time.Hour).Unix(),
	}
}

// The book from the canonical scenario: 5 @ 2 and 6 @ 3.
func scenarioBook() *fakeBook {
	return &fakeBook{orders: []orderbook.SignedOrder{
		ask(1, 5, 10, 0),
		ask(2, 6, 18, 0),
	}}
}

func balances(quoteBal, feeBal int64, eth string) *wallet.Snapshot {
	return wallet.NewSnapshot().
		Set(baseAsset, decimal.NewFromInt(0)).
		Set(quoteAsset, decimal.NewFromInt(quoteBal)).
		Set(feeAsset, decimal.NewFromInt(feeBal)).
		Set(netAsset, decimal.RequireFromString(eth))
}

func newPipeline(book BookSource, g GasEstimator, gp GasPriceSource) *Pipeline {
	return New(book, g, gp, fakeRegistry{}, DefaultPolicy(), zap.NewNop())
}

func TestPipelineReachesReady(t *testing.T) {
	book := scenarioBook()
	p := newPipeline(book, fakeGas{gas: 210_000}, fakeGasPrice{price: big.NewInt(1_000_000_000)})

	res := p.Start(context.Background(), orderbook.SideBuy, "10", baseAsset, quoteAsset, balances(30, 10, "1"))

	require.True(t, res.Ready)
	require.NotNil(t, res.Quote)
	assert.Equal(t, int64(25), res.Quote.AssetSellAmount.Int64())
	assert.True(t, res.Receipt.PriceAverage.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, uint64(210_000), res.Gas)
	assert.Equal(t, int32(1), book.refreshes.Load())
	assert.Equal(t, int32(1), book.prunes.Load())
}

func TestPipelineAbortsOnInsufficientQuoteAsset(t *testing.T) {
	p := newPipeline(scenarioBook(), fakeGas{gas: 1}, fakeGasPrice{price: big.NewInt(1)})

	// Needs 25 QUOTE, holds 20.
	res := p.Start(context.Background(), orderbook.SideBuy, "10", baseAsset, quoteAsset, balances(20, 0, "1"))

	require.False(t, res.Ready)
	var shortfall *validator.ShortfallError
	require.ErrorAs(t, res.Reason, &shortfall)
	assert.Equal(t, validator.InsufficientQuoteAsset, shortfall.Kind)
	assert.True(t, shortfall.Required.Equal(decimal.NewFromInt(25)))
	assert.True(t, shortfall.Available.Equal(decimal.NewFromInt(20)))
}

func TestPipelineAbortsOnInsufficientLiquidity(t *testing.T) {
	p := newPipeline(scenarioBook(), fakeGas{gas: 1}, fakeGasPrice{price: big.NewInt(1)})

	res := p.Start(context.Background(), orderbook.SideBuy, "100", baseAsset, quoteAsset, balances(1000, 0, "1"))

	require.False(t, res.Ready)
	assert.ErrorIs(t, res.Reason, matcher.ErrInsufficientLiquidity)
}

func TestPipelineQuietAbortWhenNothingToQuote(t *testing.T) {
	p := newPipeline(&fakeBook{}, fakeGas{gas: 1}, fakeGasPrice{price: big.NewInt(1)})

	res := p.Start(context.Background(), orderbook.SideBuy, "10", baseAsset, quoteAsset, balances(100, 0, "1"))

	assert.False(t, res.Ready)
	assert.NoError(t, res.Reason)
}

func TestPipelineAbortsOnRefreshFailure(t *testing.T) {
	book := scenarioBook()
	book.refreshErr = errors.New("relayer unreachable")
	p := newPipeline(book, fakeGas{gas: 1}, fakeGasPrice{price: big.NewInt(1)})

	res := p.Start(context.Background(), orderbook.SideBuy, "10", baseAsset, quoteAsset, balances(100, 0, "1"))

	require.False(t, res.Ready)
	assert.ErrorIs(t, res.Reason, ErrNetworkRefresh)
	// Short-circuit: prune never ran.
	assert.Equal(t, int32(0), book.prunes.Load())
}

func TestPipelineAbortsOnGasEstimationFailure(t *testing.T) {
	p := newPipeline(scenarioBook(), fakeGas{err: errors.New("node down")}, fakeGasPrice{price: big.NewInt(1)})

	res := p.Start(context.Background(), orderbook.SideBuy, "10", baseAsset, quoteAsset, balances(100, 0, "1"))

	require.False(t, res.Ready)
	assert.ErrorIs(t, res.Reason, ErrGasEstimation)
}

func TestPipelineAbortsOnInsufficientGasAsset(t *testing.T) {
	// 1 gwei * 210k gas = 0.00021 ETH, wallet holds a tenth of that.
	p := newPipeline(scenarioBook(), fakeGas{gas: 210_000}, fakeGasPrice{price: big.NewInt(1_000_000_000)})

	res := p.Start(context.Background(), orderbook.SideBuy, "10", baseAsset, quoteAsset, balances(100, 0, "0.000021"))

	require.False(t, res.Ready)
	var shortfall *validator.ShortfallError
	require.ErrorAs(t, res.Reason, &shortfall)
	assert.Equal(t, validator.InsufficientGasAsset, shortfall.Kind)
}

func TestPipelineNewStartCancelsInFlightAttempt(t *testing.T) {
	book := scenarioBook()
	book.blockFirst = make(chan struct{})
	p := newPipeline(book, fakeGas{gas: 210_000}, fakeGasPrice{price: big.NewInt(1_000_000_000)})

	firstDone := make(chan Result, 1)
	go func() {
		firstDone <- p.Start(context.Background(), orderbook.SideBuy, "10", baseAsset, quoteAsset, balances(30, 0, "1"))
	}()
	<-book.blockFirst

	second := p.Start(context.Background(), orderbook.SideBuy, "5", baseAsset, quoteAsset, balances(30, 0, "1"))
	require.True(t, second.Ready)

	first := <-firstDone
	assert.False(t, first.Ready)
	assert.ErrorIs(t, first.Reason, context.Canceled)
}

func TestPipelineRejectsBadAmount(t *testing.T) {
	p := newPipeline(scenarioBook(), fakeGas{gas: 1}, fakeGasPrice{price: big.NewInt(1)})

	for _, amount := range []string{"", "abc", "-3", "0"} {
		res := p.Start(context.Background(), orderbook.SideBuy, amount, baseAsset, quoteAsset, balances(100, 0, "1"))
		assert.False(t, res.Ready, "amount %q", amount)
		assert.Error(t, res.Reason, "amount %q", amount)
	}
}
