// Command marginbook keeps a live view of a Binance spot, cross margin and isolated margin
// account and serves it, together with the position sizing and margin calculators, over HTTP.
//
// Usage:
//
//	marginbook --config config.yaml
//	marginbook --isolated ADAEUR,DOTEUR --create-missing (uses CLI arguments)
//
// Required environment variables (a .env file in the working directory is read too):
//
//	BINANCE_API_KEY, BINANCE_API_SECRET
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/vadiminshakov/marginbook/config"
	"github.com/vadiminshakov/marginbook/internal/account"
	"github.com/vadiminshakov/marginbook/internal/clients"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"github.com/vadiminshakov/marginbook/internal/events"
	"github.com/vadiminshakov/marginbook/internal/exchange"
	"github.com/vadiminshakov/marginbook/internal/market"
	"github.com/vadiminshakov/marginbook/internal/metrics"
	"github.com/vadiminshakov/marginbook/internal/risk"
	"github.com/vadiminshakov/marginbook/internal/services/pricer"
	"github.com/vadiminshakov/marginbook/internal/storage/orders"
	"github.com/vadiminshakov/marginbook/internal/web"
	"go.uber.org/zap"
)

const broadcastBuffer = 256

func main() {
	cfg, err := config.Get(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("marginbook failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	client := clients.NewBinanceClient(cfg.APIKey, cfg.APISecret, cfg.Testnet)
	rest := exchange.NewBinance(client, cfg.CrossMarginRatio, logger.Named("binance"))

	instruments, err := market.Load(ctx, rest)
	if err != nil {
		return err
	}
	pairs, err := rest.IsolatedMarginSymbols(ctx)
	if err != nil {
		return errors.Wrap(err, "load isolated margin pairs")
	}
	for _, p := range pairs {
		instruments.MarkIsolatedEligible(p.Symbol)
	}
	logger.Info("instruments loaded", zap.Int("symbols", instruments.Len()), zap.Int("isolated", len(pairs)))

	chain := pricer.NewConversionChain(pricer.NewBinancePriceSource(client), instruments, cfg.ConversionBridges, logger.Named("pricer"))

	streamURL := cfg.StreamURL
	if streamURL == "" && cfg.Testnet {
		streamURL = exchange.TestnetStreamURL
	}
	streams := exchange.NewStreamFactory(exchange.NewBinanceListenKeys(client), exchange.StreamOptions{
		BaseURL:           streamURL,
		KeepaliveInterval: cfg.KeepaliveInterval,
	}, logger.Named("stream"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store, err := openOrderStore(cfg)
	if err != nil {
		return err
	}
	opts := account.Options{
		Seed: account.SeedOptions{
			Workers:         cfg.SeedWorkers,
			IsolatedSymbols: cfg.IsolatedSymbols,
			CreateMissing:   cfg.CreateMissing,
		},
		Isolated: account.IsolatedOptions{
			SettleInterval: cfg.SettleInterval,
			SettleMaxWait:  cfg.SettleMaxWait,
			OnAccountCreated: func(symbol domain.Symbol) {
				instruments.MarkIsolatedEligible(symbol)
			},
			OnPairListed: func(symbol domain.Symbol) {
				instruments.MarkIsolatedEligible(symbol)
			},
		},
		CrossMarginRatio: cfg.CrossMarginRatio,
		Metrics:          m,
	}
	if store != nil {
		defer store.Close()
		opts.Recorder = store
	}

	engine, err := account.NewEngine(ctx, rest, streams, opts, logger.Named("engine"))
	if err != nil {
		return err
	}

	orderEvents := events.NewBroadcaster[domain.Order](broadcastBuffer)
	balanceEvents := events.NewBroadcaster[domain.BalanceChange](broadcastBuffer)
	defer orderEvents.Close()
	defer balanceEvents.Close()
	engine.OnOrder(orderEvents.Publish)
	engine.OnBalance(balanceEvents.Publish)

	if err := engine.Start(ctx); err != nil {
		_ = engine.Stop()
		return errors.Wrap(err, "start account engine")
	}
	defer func() {
		if err := engine.Stop(); err != nil {
			logger.Warn("stop account engine", zap.Error(err))
		}
	}()

	go func() {
		for err := range engine.Errors() {
			logger.Error("account scope stopped", zap.Error(err))
		}
	}()

	if cfg.HTTPAddr == "" {
		<-ctx.Done()
		return nil
	}

	deps := web.Deps{
		Account:       engine.Store(),
		Subscriptions: engine,
		Instruments:   instruments,
		Calculator:    risk.NewCalculator(chain, engine.Store(), cfg.TargetMarginLevel, logger.Named("risk")),
		Chain:         chain,
		Orders:        orderEvents,
		Balances:      balanceEvents,
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	if store != nil {
		deps.History = store
	} else {
		deps.History = account.NewExchangeHistory(rest, engine.Store())
	}

	return web.NewServer(cfg.HTTPAddr, deps, logger.Named("web")).Start(ctx)
}

// openOrderStore returns nil when persistence is disabled.
func openOrderStore(cfg config.Config) (orders.Store, error) {
	switch cfg.OrderStore {
	case config.OrderStoreWAL:
		return orders.NewWALStore(cfg.OrderDir)
	case config.OrderStoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return orders.NewRedisStore(client, cfg.RedisPrefix), nil
	default:
		return nil, nil
	}
}
