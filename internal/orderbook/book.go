package orderbook

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Book caches resting orders for trading pairs. Writers are the relayer
// refresh path and the websocket feed; the matcher only reads copies.
type Book struct {
	mu    sync.RWMutex
	pairs map[pairKey]*pairOrders
}

type pairKey struct {
	base  string
	quote string
}

type pairOrders struct {
	asks map[common.Hash]SignedOrder // maker sells base
	bids map[common.Hash]SignedOrder // maker buys base
}

func NewBook() *Book {
	return &Book{pairs: make(map[pairKey]*pairOrders, 8)}
}

func (b *Book) pair(base, quote string) *pairOrders {
	k := pairKey{base: base, quote: quote}
	p := b.pairs[k]
	if p == nil {
		p = &pairOrders{
			asks: make(map[common.Hash]SignedOrder, 64),
			bids: make(map[common.Hash]SignedOrder, 64),
		}
		b.pairs[k] = p
	}
	return p
}

// Replace swaps in a full snapshot for the pair, dropping anything cached.
func (b *Book) Replace(base, quote string, asks, bids []SignedOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pair(base, quote)
	p.asks = make(map[common.Hash]SignedOrder, len(asks))
	p.bids = make(map[common.Hash]SignedOrder, len(bids))
	for _, o := range asks {
		p.asks[o.OrderHash] = o
	}
	for _, o := range bids {
		p.bids[o.OrderHash] = o
	}
}

// Upsert inserts or updates a single order on the side implied by its asset
// data. Orders for unknown pairs are filed under their own pair key.
func (b *Book) Upsert(base, quote string, o SignedOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pair(base, quote)
	if o.MakerAssetData == base {
		p.asks[o.OrderHash] = o
	} else {
		p.bids[o.OrderHash] = o
	}
}

func (b *Book) Remove(base, quote string, hash common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pair(base, quote)
	delete(p.asks, hash)
	delete(p.bids, hash)
}

// Prune drops orders that are expired (or expire within buffer) or carry a
// zero amount on either side. Returns how many were removed.
func (b *Book) Prune(base, quote string, now time.Time, buffer time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pair(base, quote)
	n := 0
	for _, side := range []map[common.Hash]SignedOrder{p.asks, p.bids} {
		for h, o := range side {
			if o.Expired(now, buffer) || o.MakerAssetAmount.Sign() <= 0 || o.TakerAssetAmount.Sign() <= 0 {
				delete(side, h)
				n++
			}
		}
	}
	return n
}

// Asks returns a copy of the resting asks for the pair (maker sells base).
func (b *Book) Asks(base, quote string) []SignedOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p := b.pairs[pairKey{base: base, quote: quote}]
	if p == nil {
		return nil
	}
	out := make([]SignedOrder, 0, len(p.asks))
	for _, o := range p.asks {
		out = append(out, o)
	}
	return out
}

// Bids returns a copy of the resting bids for the pair (maker buys base).
func (b *Book) Bids(base, quote string) []SignedOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p := b.pairs[pairKey{base: base, quote: quote}]
	if p == nil {
		return nil
	}
	out := make([]SignedOrder, 0, len(p.bids))
	for _, o := range p.bids {
		out = append(out, o)
	}
	return out
}

// Depth reports the order counts for the pair.
func (b *Book) Depth(base, quote string) (asks, bids int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p := b.pairs[pairKey{base: base, quote: quote}]
	if p == nil {
		return 0, 0
	}
	return len(p.asks), len(p.bids)
}
