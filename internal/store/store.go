// Package store persists orderbook and ticker snapshots in redis so a
// restarted client has a warm book before the first relayer round trip.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/you/zrx-trader/internal/orderbook"
	"github.com/you/zrx-trader/internal/ticker"
)

const (
	bookNS     = "book:snap:"
	tickerKey  = "ticker:snap"
	activeKey  = "book:active"
	defaultTTL = 10 * time.Minute
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

type Options struct {
	Addr     string
	DB       int
	Username string
	Password string
	TTL      time.Duration
}

func New(opts Options) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Username: opts.Username,
		Password: opts.Password,
	})
	ttl := opts.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// NewWithClient is for tests running against miniredis.
func NewWithClient(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

type bookSnapshot struct {
	Asks []orderbook.SignedOrder `json:"asks"`
	Bids []orderbook.SignedOrder `json:"bids"`
	TsMs int64                   `json:"ts_ms"`
}

func bookKey(base, quote string) string { return bookNS + base + "|" + quote }

// SaveBook writes the pair's snapshot and marks the pair active.
func (s *Store) SaveBook(ctx context.Context, base, quote string, asks, bids []orderbook.SignedOrder) error {
	snap := bookSnapshot{Asks: asks, Bids: bids, TsMs: time.Now().UnixMilli()}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, bookKey(base, quote), b, s.ttl).Err(); err != nil {
		return err
	}
	return s.rdb.ZAdd(ctx, activeKey, redis.Z{
		Score:  float64(snap.TsMs),
		Member: base + "|" + quote,
	}).Err()
}

// LoadBook returns the cached snapshot for the pair, or ok=false when none
// is stored.
func (s *Store) LoadBook(ctx context.Context, base, quote string) (asks, bids []orderbook.SignedOrder, ok bool, err error) {
	b, err := s.rdb.Get(ctx, bookKey(base, quote)).Bytes()
	if err == redis.Nil {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	var snap bookSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, nil, false, err
	}
	return snap.Asks, snap.Bids, true, nil
}

// SaveTickers persists the whole ticker cache.
func (s *Store) SaveTickers(ctx context.Context, entries []ticker.Entry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, tickerKey, b, s.ttl).Err()
}

func (s *Store) LoadTickers(ctx context.Context) ([]ticker.Entry, error) {
	b, err := s.rdb.Get(ctx, tickerKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []ticker.Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) Close() error { return s.rdb.Close() }
