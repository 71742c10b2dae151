// Package gas supplies the two gas capabilities the pipeline needs: an
// estimate for filling a matched order set and the current network price.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/you/zrx-trader/internal/orderbook"
)

// Fill cost grows linearly with the number of orders consumed; the
// per-order figure covers signature validation plus the two token
// transfers.
const (
	fillBaseGas     = 90_000
	fillPerOrderGas = 120_000
)

// ScheduleEstimator prices a fill from the consumed order count. The
// exchange contract's fill cost is order-data independent, so a schedule is
// as accurate as a node-side estimate and never fails mid-pipeline for
// transport reasons.
type ScheduleEstimator struct{}

func (ScheduleEstimator) EstimateFill(ctx context.Context, side orderbook.Side, orders []orderbook.SignedOrder, amount *big.Int) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(orders) == 0 {
		return 0, fmt.Errorf("no orders to estimate")
	}
	return uint64(fillBaseGas + fillPerOrderGas*len(orders)), nil
}

// PriceSource fetches the suggested gas price from the node on every
// refresh and remembers the last good value for display.
type PriceSource struct {
	log *zap.Logger
	ec  *ethclient.Client

	mu   sync.Mutex
	last *big.Int
}

func NewPriceSource(rpcURL string, log *zap.Logger) (*PriceSource, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &PriceSource{log: log, ec: ec}, nil
}

func (p *PriceSource) RefreshGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := p.ec.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	p.mu.Lock()
	p.last = price
	p.mu.Unlock()
	return price, nil
}

// Last returns the most recently refreshed price, or nil before the first
// refresh.
func (p *PriceSource) Last() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	return new(big.Int).Set(p.last)
}
