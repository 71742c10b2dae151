package relayer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/you/zrx-trader/internal/metrics"
	"github.com/you/zrx-trader/internal/orderbook"
)

// BookService pairs the relayer client with the local book cache. It is the
// BookSource the reconciliation pipeline runs against.
type BookService struct {
	log          *zap.Logger
	client       *Client
	book         *orderbook.Book
	pruneBuffer  time.Duration
	symbolByData func(assetData string) string
}

func NewBookService(client *Client, book *orderbook.Book, pruneBuffer time.Duration, symbolByData func(string) string, log *zap.Logger) *BookService {
	if symbolByData == nil {
		symbolByData = func(s string) string { return s }
	}
	return &BookService{
		log:          log,
		client:       client,
		book:         book,
		pruneBuffer:  pruneBuffer,
		symbolByData: symbolByData,
	}
}

func (s *BookService) Book() *orderbook.Book { return s.book }

// Refresh replaces the cached book for the pair with a fresh snapshot.
func (s *BookService) Refresh(ctx context.Context, baseAssetData, quoteAssetData string) error {
	asks, bids, err := s.client.GetOrderbook(ctx, baseAssetData, quoteAssetData)
	if err != nil {
		return err
	}
	s.book.Replace(baseAssetData, quoteAssetData, asks, bids)
	s.observeDepth(baseAssetData, quoteAssetData)
	s.log.Debug("orderbook refreshed",
		zap.Int("asks", len(asks)),
		zap.Int("bids", len(bids)),
	)
	return nil
}

// Prune drops expired and zero-amount orders from the cached pair.
func (s *BookService) Prune(ctx context.Context, baseAssetData, quoteAssetData string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := s.book.Prune(baseAssetData, quoteAssetData, time.Now(), s.pruneBuffer)
	if n > 0 {
		s.log.Debug("orderbook pruned", zap.Int("removed", n))
	}
	s.observeDepth(baseAssetData, quoteAssetData)
	return nil
}

// OrdersFor returns the side of the book a market order consumes: asks for a
// buy, bids for a sell.
func (s *BookService) OrdersFor(side orderbook.Side, baseAssetData, quoteAssetData string) []orderbook.SignedOrder {
	if side == orderbook.SideBuy {
		return s.book.Asks(baseAssetData, quoteAssetData)
	}
	return s.book.Bids(baseAssetData, quoteAssetData)
}

func (s *BookService) observeDepth(baseAssetData, quoteAssetData string) {
	asks, bids := s.book.Depth(baseAssetData, quoteAssetData)
	pair := s.symbolByData(baseAssetData) + "-" + s.symbolByData(quoteAssetData)
	metrics.BookDepth.WithLabelValues(pair, "asks").Set(float64(asks))
	metrics.BookDepth.WithLabelValues(pair, "bids").Set(float64(bids))
}
