package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/you/zrx-trader/internal/asset"
	"github.com/you/zrx-trader/internal/config"
	"github.com/you/zrx-trader/internal/gas"
	"github.com/you/zrx-trader/internal/metrics"
	"github.com/you/zrx-trader/internal/orderbook"
	"github.com/you/zrx-trader/internal/pipeline"
	"github.com/you/zrx-trader/internal/receipt"
	"github.com/you/zrx-trader/internal/relayer"
	"github.com/you/zrx-trader/internal/store"
	"github.com/you/zrx-trader/internal/ticker"
	"github.com/you/zrx-trader/internal/validator"
	"github.com/you/zrx-trader/internal/wallet"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	side := flag.String("side", "buy", "buy or sell")
	amount := flag.String("amount", "", "unit amount of the base asset")
	baseSym := flag.String("base", "", "base asset symbol")
	quoteSym := flag.String("quote", "WETH", "quote asset symbol")
	flag.Parse()

	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if *side != string(orderbook.SideBuy) && *side != string(orderbook.SideSell) {
		logger.Fatal("side must be buy or sell", zap.String("side", *side))
	}
	if *amount == "" {
		logger.Fatal("amount is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("received signal, shutting down...")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, logger)

	registry, err := asset.LoadRegistry(cfg.Assets.RegistryPath)
	if err != nil {
		logger.Fatal("failed to load asset registry", zap.Error(err))
	}
	base, ok := findBySymbol(registry, *baseSym)
	if !ok {
		logger.Fatal("unknown base asset", zap.String("symbol", *baseSym))
	}
	quote, ok := findBySymbol(registry, *quoteSym)
	if !ok {
		logger.Fatal("unknown quote asset", zap.String("symbol", *quoteSym))
	}

	book := orderbook.NewBook()

	// Warm start: seed the book from the last persisted snapshot so the
	// first quote does not wait on the relayer.
	var snaps *store.Store
	if cfg.Redis.Addr != "" {
		snaps = store.New(store.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
		})
		defer snaps.Close()
		if asks, bids, ok, err := snaps.LoadBook(ctx, base.AssetData, quote.AssetData); err != nil {
			logger.Warn("book warm start failed", zap.Error(err))
		} else if ok {
			book.Replace(base.AssetData, quote.AssetData, asks, bids)
			logger.Info("book warm started", zap.Int("asks", len(asks)), zap.Int("bids", len(bids)))
		}
	}

	symbolFor := func(assetData string) string {
		if a, ok := registry.FindByData(assetData); ok {
			return a.Symbol
		}
		return assetData
	}
	books := relayer.NewBookService(
		relayer.NewClient(cfg.Relayer.RestURL),
		book,
		cfg.ExpiryBuffer(),
		symbolFor,
		logger,
	)

	if cfg.Relayer.WsURL != "" {
		feed := relayer.NewFeed(cfg.Relayer.WsURL, book, logger)
		go feed.Run(ctx, relayer.Pairs([2]string{base.AssetData, quote.AssetData}))
	}

	tickers := ticker.NewCache()
	if cfg.Ticker.WsURL != "" {
		tc := ticker.NewClient(cfg.Ticker.WsURL, tickers, logger)
		products := []string{base.Symbol + "-" + quote.Symbol}
		forex := []string{
			base.Symbol + "-" + cfg.Ticker.ForexCurrency,
			quote.Symbol + "-" + cfg.Ticker.ForexCurrency,
		}
		go tc.Run(ctx, products, forex)
	}

	reader, err := wallet.NewChainReader(
		cfg.Chain.RPCHTTP,
		common.HexToAddress(cfg.Chain.WalletAddress),
		common.HexToAddress(cfg.Chain.Multicall),
		logger,
	)
	if err != nil {
		logger.Fatal("failed to initialize chain reader", zap.Error(err))
	}
	balances, err := reader.Snapshot(ctx, registry)
	if err != nil {
		logger.Fatal("failed to read wallet balances", zap.Error(err))
	}

	prices, err := gas.NewPriceSource(cfg.Chain.RPCHTTP, logger)
	if err != nil {
		logger.Fatal("failed to initialize gas price source", zap.Error(err))
	}

	p := pipeline.New(books, gas.ScheduleEstimator{}, prices, registry, pipeline.DefaultPolicy(), logger)
	res := p.Start(ctx, orderbook.Side(*side), *amount, base, quote, balances)

	switch {
	case res.Ready:
		before, after := receiptDelta(res, balances, base, quote, registry)
		logger.Info("ready to submit",
			zap.String("amount", res.Receipt.Amount.String()),
			zap.String("payment", res.Receipt.Payment.String()),
			zap.String("price_average", res.Receipt.PriceAverage.String()),
			zap.String("relayer_fee", res.Receipt.RelayerFee.String()),
			zap.Uint64("gas", res.Gas),
			zap.String("gas_price_wei", res.GasPrice.String()),
			zap.Any("wallet_before", before),
			zap.Any("wallet_after", after),
		)
		if snaps != nil {
			asks := book.Asks(base.AssetData, quote.AssetData)
			bids := book.Bids(base.AssetData, quote.AssetData)
			if err := snaps.SaveBook(ctx, base.AssetData, quote.AssetData, asks, bids); err != nil {
				logger.Warn("book snapshot save failed", zap.Error(err))
			}
		}
	case res.Reason == nil:
		// Nothing to quote: dismiss without an error dialog.
		logger.Info("no quote available for requested amount")
	default:
		var shortfall *validator.ShortfallError
		if errors.As(res.Reason, &shortfall) {
			logger.Error("trade blocked",
				zap.String("asset", shortfall.Symbol),
				zap.String("available", shortfall.Available.String()),
				zap.String("required", shortfall.Required.String()),
			)
		} else {
			logger.Error("reconciliation failed", zap.Error(res.Reason))
		}
		os.Exit(1)
	}
}

func receiptDelta(res pipeline.Result, balances wallet.Ledger, base, quote asset.Asset, reg *asset.Registry) (before, after []receipt.BalanceLine) {
	return receipt.ProjectWalletDelta(res.Receipt, balances, base, quote, reg.FeeAsset())
}

func findBySymbol(reg *asset.Registry, symbol string) (asset.Asset, bool) {
	for _, a := range reg.All() {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return asset.Asset{}, false
}
