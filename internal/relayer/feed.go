package relayer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/you/zrx-trader/internal/metrics"
	"github.com/you/zrx-trader/internal/orderbook"
)

// Feed keeps the book cache current from the relayer's websocket orders
// channel. The feed runs alongside the pipeline; a dropped connection is
// redialed with backoff until the context ends.
type Feed struct {
	log    *zap.Logger
	url    string
	dialer *websocket.Dialer
	book   *orderbook.Book
}

type Subscription struct {
	Base  string
	Quote string
}

func NewFeed(wsURL string, book *orderbook.Book, log *zap.Logger) *Feed {
	return &Feed{
		log:  log,
		url:  wsURL,
		book: book,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
		},
	}
}

type subscribeMsg struct {
	Type      string           `json:"type"`
	Channel   string           `json:"channel"`
	RequestID string           `json:"requestId"`
	Payload   subscribePayload `json:"payload"`
}

type subscribePayload struct {
	BaseAssetData  string `json:"baseAssetData"`
	QuoteAssetData string `json:"quoteAssetData"`
}

type updateMsg struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Payload []struct {
		Order    wireOrder `json:"order"`
		MetaData struct {
			RemainingFillableTakerAssetAmount string `json:"remainingFillableTakerAssetAmount"`
		} `json:"metaData"`
	} `json:"payload"`
}

// Run blocks, maintaining subscriptions for all pairs until ctx is done.
func (f *Feed) Run(ctx context.Context, pairs []Subscription) {
	backoff := time.Second
	for {
		if err := f.session(ctx, pairs); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.FeedReconnects.Inc()
			f.log.Warn("orders feed dropped, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// Pairs builds the subscription list for Run.
func Pairs(pairs ...[2]string) []Subscription {
	out := make([]Subscription, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Subscription{Base: p[0], Quote: p[1]})
	}
	return out
}

func (f *Feed) session(ctx context.Context, pairs []Subscription) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for i, p := range pairs {
		msg := subscribeMsg{
			Type:      "subscribe",
			Channel:   "orders",
			RequestID: strconv.Itoa(i + 1),
			Payload:   subscribePayload{BaseAssetData: p.Base, QuoteAssetData: p.Quote},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	f.log.Info("orders feed subscribed", zap.Int("pairs", len(pairs)))

	byMaker := make(map[string]Subscription, len(pairs)*2)
	for _, p := range pairs {
		byMaker[p.Base] = p
		byMaker[p.Quote] = p
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var upd updateMsg
		if err := json.Unmarshal(raw, &upd); err != nil || upd.Channel != "orders" {
			continue
		}
		for _, rec := range upd.Payload {
			o, err := rec.Order.toSignedOrder()
			if err != nil {
				f.log.Debug("skipping malformed order update", zap.Error(err))
				continue
			}
			pair, ok := byMaker[o.MakerAssetData]
			if !ok {
				continue
			}
			if rec.MetaData.RemainingFillableTakerAssetAmount == "0" {
				f.book.Remove(pair.Base, pair.Quote, o.OrderHash)
				continue
			}
			f.book.Upsert(pair.Base, pair.Quote, o)
		}
	}
}
