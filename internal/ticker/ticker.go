// Package ticker maintains live token and forex prices from the ticker
// service websocket. The cache runs concurrently with the reconciliation
// pipeline and is read only for display; nothing in the validation path
// depends on it.
package ticker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/you/zrx-trader/internal/metrics"
)

// Entry is the latest price for one product, e.g. "WETH-DAI" or "ETH-USD".
type Entry struct {
	Product string          `json:"product"`
	Price   decimal.Decimal `json:"price"`
	Updated time.Time       `json:"updated"`
}

// Cache is a concurrency-safe view of the latest tickers.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry, 32)}
}

func (c *Cache) Set(e Entry) {
	c.mu.Lock()
	c.entries[e.Product] = e
	c.mu.Unlock()
}

func (c *Cache) Get(product string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[product]
	return e, ok
}

// Snapshot copies the whole cache, for persistence.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// Client subscribes to the token-ticker and forex-ticker channels and keeps
// a Cache current, redialing with backoff when the connection drops.
type Client struct {
	log    *zap.Logger
	url    string
	dialer *websocket.Dialer
	cache  *Cache
}

func NewClient(wsURL string, cache *Cache, log *zap.Logger) *Client {
	return &Client{
		log:   log,
		url:   wsURL,
		cache: cache,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
		},
	}
}

type tickerSub struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Payload struct {
		Products []string `json:"products"`
	} `json:"payload"`
}

type tickerUpdate struct {
	Channel string `json:"channel"`
	Payload []struct {
		Product string `json:"product"`
		Price   string `json:"price"`
	} `json:"payload"`
}

// Run blocks until ctx is done, keeping the given products subscribed.
func (c *Client) Run(ctx context.Context, tokenProducts, forexProducts []string) {
	backoff := time.Second
	for {
		if err := c.session(ctx, tokenProducts, forexProducts); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.FeedReconnects.Inc()
			c.log.Warn("ticker feed dropped, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
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

func (c *Client) session(ctx context.Context, tokenProducts, forexProducts []string) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for channel, products := range map[string][]string{
		"token-ticker": tokenProducts,
		"forex-ticker": forexProducts,
	} {
		if len(products) == 0 {
			continue
		}
		sub := tickerSub{Type: "subscribe", Channel: channel}
		sub.Payload.Products = products
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}
	c.log.Info("ticker feed subscribed",
		zap.Int("token_products", len(tokenProducts)),
		zap.Int("forex_products", len(forexProducts)),
	)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var upd tickerUpdate
		if err := json.Unmarshal(raw, &upd); err != nil {
			continue
		}
		if upd.Channel != "token-ticker" && upd.Channel != "forex-ticker" {
			continue
		}
		now := time.Now()
		for _, t := range upd.Payload {
			price, err := decimal.NewFromString(t.Price)
			if err != nil {
				continue
			}
			c.cache.Set(Entry{Product: t.Product, Price: price, Updated: now})
		}
	}
}
