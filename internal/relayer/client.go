// Package relayer talks to the standard relayer API: REST for orderbook
// snapshots and a websocket orders channel for live updates.
package relayer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/you/zrx-trader/internal/orderbook"
)

// Client is the REST half of the relayer API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

type orderRecord struct {
	Order wireOrder `json:"order"`
}

type orderSide struct {
	Records []orderRecord `json:"records"`
}

type orderbookResponse struct {
	Asks orderSide `json:"asks"`
	Bids orderSide `json:"bids"`
}

// wireOrder carries base-unit amounts as decimal strings, the way the
// relayer serializes them.
type wireOrder struct {
	OrderHash             string `json:"orderHash"`
	MakerAssetData        string `json:"makerAssetData"`
	TakerAssetData        string `json:"takerAssetData"`
	MakerAssetAmount      string `json:"makerAssetAmount"`
	TakerAssetAmount      string `json:"takerAssetAmount"`
	TakerFee              string `json:"takerFee"`
	ExpirationTimeSeconds string `json:"expirationTimeSeconds"`
}

func (w wireOrder) toSignedOrder() (orderbook.SignedOrder, error) {
	maker, ok := new(big.Int).SetString(w.MakerAssetAmount, 10)
	if !ok || maker.Sign() < 0 {
		return orderbook.SignedOrder{}, fmt.Errorf("bad makerAssetAmount %q", w.MakerAssetAmount)
	}
	taker, ok := new(big.Int).SetString(w.TakerAssetAmount, 10)
	if !ok || taker.Sign() < 0 {
		return orderbook.SignedOrder{}, fmt.Errorf("bad takerAssetAmount %q", w.TakerAssetAmount)
	}
	fee := new(big.Int)
	if w.TakerFee != "" {
		if fee, ok = new(big.Int).SetString(w.TakerFee, 10); !ok || fee.Sign() < 0 {
			return orderbook.SignedOrder{}, fmt.Errorf("bad takerFee %q", w.TakerFee)
		}
	}
	exp := new(big.Int)
	if w.ExpirationTimeSeconds != "" {
		if exp, ok = new(big.Int).SetString(w.ExpirationTimeSeconds, 10); !ok {
			return orderbook.SignedOrder{}, fmt.Errorf("bad expirationTimeSeconds %q", w.ExpirationTimeSeconds)
		}
	}
	o := orderbook.SignedOrder{
		MakerAssetData:        w.MakerAssetData,
		TakerAssetData:        w.TakerAssetData,
		MakerAssetAmount:      maker,
		TakerAssetAmount:      taker,
		RelayerFee:            fee,
		ExpirationTimeSeconds: exp.Int64(),
	}
	if w.OrderHash != "" {
		o.OrderHash = common.HexToHash(w.OrderHash)
	} else {
		o.OrderHash = o.Hash()
	}
	return o, nil
}

// GetOrderbook fetches the full resting book for a pair. Records that fail
// to parse are skipped rather than failing the whole snapshot.
func (c *Client) GetOrderbook(ctx context.Context, baseAssetData, quoteAssetData string) (asks, bids []orderbook.SignedOrder, err error) {
	u := fmt.Sprintf("%s/v3/orderbook?baseAssetData=%s&quoteAssetData=%s",
		c.baseURL, url.QueryEscape(baseAssetData), url.QueryEscape(quoteAssetData))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("orderbook request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("orderbook request: status %d", resp.StatusCode)
	}

	var body orderbookResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil, fmt.Errorf("decode orderbook: %w", err)
	}
	for _, rec := range body.Asks.Records {
		if o, err := rec.Order.toSignedOrder(); err == nil {
			asks = append(asks, o)
		}
	}
	for _, rec := range body.Bids.Records {
		if o, err := rec.Order.toSignedOrder(); err == nil {
			bids = append(bids, o)
		}
	}
	return asks, bids, nil
}
