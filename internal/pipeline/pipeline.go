// Package pipeline orchestrates one reconciliation attempt: refresh the
// book, prune stale orders, quote, validate funds, estimate gas, refresh the
// gas price, validate gas, and freeze the result for submission. Every step
// is sequential and any failure aborts the whole attempt; nothing is retried
// here, the caller decides whether to start over.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/you/zrx-trader/internal/asset"
	"github.com/you/zrx-trader/internal/matcher"
	"github.com/you/zrx-trader/internal/metrics"
	"github.com/you/zrx-trader/internal/orderbook"
	"github.com/you/zrx-trader/internal/receipt"
	"github.com/you/zrx-trader/internal/validator"
	"github.com/you/zrx-trader/internal/wallet"
)

// State of a reconciliation attempt.
type State int

const (
	StateIdle State = iota
	StateRefreshingBook
	StatePruning
	StateQuoting
	StateValidatingFunds
	StateEstimatingGas
	StateValidatingGas
	StateReady
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshingBook:
		return "refreshing_book"
	case StatePruning:
		return "pruning"
	case StateQuoting:
		return "quoting"
	case StateValidatingFunds:
		return "validating_funds"
	case StateEstimatingGas:
		return "estimating_gas"
	case StateValidatingGas:
		return "validating_gas"
	case StateReady:
		return "ready"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Step failure wrappers. Shortfall errors pass through untouched so callers
// can render an exact message; everything else is surfaced generically.
var (
	ErrNetworkRefresh = errors.New("orderbook refresh failed")
	ErrPrune          = errors.New("orderbook prune failed")
	ErrGasEstimation  = errors.New("gas estimation failed")
)

// BookSource is the externally-owned orderbook the pipeline refreshes,
// prunes, and reads.
type BookSource interface {
	Refresh(ctx context.Context, baseAssetData, quoteAssetData string) error
	Prune(ctx context.Context, baseAssetData, quoteAssetData string) error
	OrdersFor(side orderbook.Side, baseAssetData, quoteAssetData string) []orderbook.SignedOrder
}

// GasEstimator computes the gas a fill of the matched orders would take.
type GasEstimator interface {
	EstimateFill(ctx context.Context, side orderbook.Side, orders []orderbook.SignedOrder, amount *big.Int) (uint64, error)
}

// GasPriceSource returns the current network gas price in wei.
type GasPriceSource interface {
	RefreshGasPrice(ctx context.Context) (*big.Int, error)
}

// Registry resolves the designated fee assets.
type Registry interface {
	FeeAsset() asset.Asset
	NetworkFeeAsset() asset.Asset
}

// DefaultPolicy matches the production relayer settings: 20% slippage
// headroom and a 30 second expiry buffer.
func DefaultPolicy() matcher.Policy {
	return matcher.Policy{
		SlippagePercentage: decimal.RequireFromString("0.2"),
		ExpiryBuffer:       30 * time.Second,
	}
}

// Result is the terminal output of an attempt. Ready=false with a nil
// Reason is the quiet "nothing to quote" abort; callers must not show an
// error for it.
type Result struct {
	Ready    bool
	Quote    *matcher.FillQuote
	Gas      uint64
	GasPrice *big.Int
	Receipt  receipt.Receipt
	Reason   error
}

// Pipeline runs reconciliation attempts. A new Start cancels whatever
// attempt is still in flight; the superseded attempt's completion is
// discarded.
type Pipeline struct {
	log      *zap.Logger
	book     BookSource
	gas      GasEstimator
	gasPrice GasPriceSource
	registry Registry
	policy   matcher.Policy

	mu      sync.Mutex
	cancel  context.CancelFunc
	attempt uint64
}

func New(book BookSource, gas GasEstimator, gasPrice GasPriceSource, registry Registry, policy matcher.Policy, log *zap.Logger) *Pipeline {
	return &Pipeline{
		log:      log,
		book:     book,
		gas:      gas,
		gasPrice: gasPrice,
		registry: registry,
		policy:   policy,
	}
}

// Start begins a new attempt for the given side and unit amount, cancelling
// any attempt still running. It blocks until the attempt reaches a terminal
// state. balances must be a snapshot taken for this attempt; it is never
// re-read mid-flow.
func (p *Pipeline) Start(ctx context.Context, side orderbook.Side, amount string, base, quote asset.Asset, balances wallet.Ledger) Result {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.attempt++
	id := p.attempt
	p.mu.Unlock()
	defer cancel()

	start := time.Now()
	res := p.run(ctx, side, amount, base, quote, balances)
	metrics.ReconcileLatency.Observe(time.Since(start).Seconds())

	p.mu.Lock()
	stale := id != p.attempt
	p.mu.Unlock()
	if stale || ctx.Err() != nil {
		// A newer attempt owns the state now; drop this completion.
		return Result{Reason: context.Canceled}
	}
	if res.Ready {
		metrics.ReconcileReady.Inc()
	} else if res.Reason != nil {
		metrics.ReconcileAborts.WithLabelValues(abortLabel(res.Reason)).Inc()
	} else {
		metrics.ReconcileAborts.WithLabelValues("quote_unavailable").Inc()
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, side orderbook.Side, amount string, base, quote asset.Asset, balances wallet.Ledger) Result {
	log := p.log.With(
		zap.String("side", string(side)),
		zap.String("amount", amount),
		zap.String("pair", base.Symbol+"-"+quote.Symbol),
	)

	unitAmount, err := decimal.NewFromString(amount)
	if err != nil || unitAmount.Sign() <= 0 {
		return p.abort(log, StateIdle, fmt.Errorf("bad amount %q", amount))
	}
	baseUnitAmount := base.BaseUnitAmount(unitAmount)

	state := StateRefreshingBook
	log.Debug("pipeline state", zap.Stringer("state", state))
	if err := p.book.Refresh(ctx, base.AssetData, quote.AssetData); err != nil {
		return p.abort(log, state, fmt.Errorf("%w: %v", ErrNetworkRefresh, err))
	}

	state = StatePruning
	log.Debug("pipeline state", zap.Stringer("state", state))
	if err := p.book.Prune(ctx, base.AssetData, quote.AssetData); err != nil {
		return p.abort(log, state, fmt.Errorf("%w: %v", ErrPrune, err))
	}

	state = StateQuoting
	log.Debug("pipeline state", zap.Stringer("state", state))
	orders := p.book.OrdersFor(side, base.AssetData, quote.AssetData)
	q, err := matcher.Match(side, baseUnitAmount, orders, base, quote, p.policy)
	if err != nil {
		return p.abort(log, state, err)
	}
	if q == nil {
		// Nothing to quote. Deliberately not an error: the caller dismisses
		// quietly instead of raising a dialog.
		log.Info("no quote available", zap.Int("orders", len(orders)))
		return Result{}
	}

	state = StateValidatingFunds
	log.Debug("pipeline state", zap.Stringer("state", state))
	if err := validator.CheckFunds(q, balances, base, quote, p.registry.FeeAsset()); err != nil {
		return p.abort(log, state, err)
	}

	state = StateEstimatingGas
	log.Debug("pipeline state", zap.Stringer("state", state))
	fillAmount := q.AssetBuyAmount
	if side == orderbook.SideSell {
		fillAmount = q.AssetSellAmount
	}
	gas, err := p.gas.EstimateFill(ctx, side, q.Orders, fillAmount)
	if err != nil {
		return p.abort(log, state, fmt.Errorf("%w: %v", ErrGasEstimation, err))
	}

	state = StateValidatingGas
	log.Debug("pipeline state", zap.Stringer("state", state))
	gasPrice, err := p.gasPrice.RefreshGasPrice(ctx)
	if err != nil {
		return p.abort(log, state, fmt.Errorf("%w: %v", ErrGasEstimation, err))
	}
	metrics.GasPriceGwei.Set(wallet.ConvertGasPriceToEth(gasPrice).Shift(9).InexactFloat64())
	// Gas is checked against the snapshot taken before estimation, not a
	// fresh read.
	if err := validator.CheckGas(gasPrice, gas, balances, p.registry.NetworkFeeAsset()); err != nil {
		return p.abort(log, state, err)
	}

	rec := receipt.Project(q, base, p.registry.FeeAsset())
	log.Info("pipeline ready",
		zap.Uint64("gas", gas),
		zap.String("gas_price_wei", gasPrice.String()),
		zap.String("price_average", rec.PriceAverage.String()),
		zap.Int("orders", len(q.Orders)),
	)
	return Result{
		Ready:    true,
		Quote:    q,
		Gas:      gas,
		GasPrice: gasPrice,
		Receipt:  rec,
	}
}

func (p *Pipeline) abort(log *zap.Logger, from State, reason error) Result {
	log.Warn("pipeline aborted", zap.Stringer("from", from), zap.Error(reason))
	return Result{Reason: reason}
}

func abortLabel(err error) string {
	var shortfall *validator.ShortfallError
	switch {
	case errors.As(err, &shortfall):
		return string(shortfall.Kind)
	case errors.Is(err, matcher.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrNetworkRefresh):
		return "network_refresh"
	case errors.Is(err, ErrPrune):
		return "prune"
	case errors.Is(err, ErrGasEstimation):
		return "gas_estimation"
	}
	return "other"
}
