// Command bot runs the signal evaluation and position lifecycle engine.
// Signals arrive over the HTTP webhook; open positions are re-evaluated on a
// polling schedule until an exit trigger closes them.
//
// Usage:
//
//	bot --config config.yaml
//
// Required environment variables (may come from a .env file):
//
//	For Binance-compatible APIs (incl. coins.ph): BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//
// Optional: BINANCE_BASE_URL overrides the REST endpoint for
// Binance-compatible exchanges.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ccc1236/coinsph-trading-bot/config"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/account"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/engine"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/market"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/market/collector"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/pricer"
	"github.com/ccc1236/coinsph-trading-bot/internal/storage/decisions"
	"github.com/ccc1236/coinsph-trading-bot/internal/storage/trades"
	"github.com/ccc1236/coinsph-trading-bot/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	marketProvider, accountReader, err := buildPlatform(cfg)
	if err != nil {
		logger.Fatal("failed to build exchange clients", zap.Error(err))
	}

	decisionStore, err := decisions.NewWALStore(cfg.WALDir)
	if err != nil {
		logger.Fatal("failed to open decision store", zap.Error(err))
	}
	defer decisionStore.Close()

	tradeRepo, err := trades.NewRepository(cfg.TradesDB)
	if err != nil {
		logger.Fatal("failed to open trade history", zap.Error(err))
	}
	defer tradeRepo.Close()

	eng, err := engine.New(cfg, logger, marketProvider, accountReader, decisionStore, tradeRepo)
	if err != nil {
		logger.Fatal("failed to create engine", zap.Error(err))
	}

	server := web.NewServer(cfg.ListenAddr, eng, decisionStore, tradeRepo, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("web server listening", zap.String("addr", cfg.ListenAddr))
		return server.Start(ctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				events := eng.Tick(ctx, now)
				for _, event := range events {
					logger.Info("position exited",
						zap.String("position_id", event.PositionID),
						zap.String("reason", string(event.Reason)),
						zap.String("pnl", event.PnL.String()))
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutting down with error", zap.Error(err))
	}

	// flush open positions as shutdown closes so the history stays complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, event := range eng.Close(shutdownCtx) {
		logger.Info("position closed on shutdown",
			zap.String("position_id", event.PositionID),
			zap.String("pnl", event.PnL.String()))
	}
}

func buildPlatform(cfg config.Config) (engine.MarketData, engine.Account, error) {
	switch cfg.Platform {
	case "binance", "coinsph":
		apiKey := os.Getenv("BINANCE_API_KEY")
		apiSecret := os.Getenv("BINANCE_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			return nil, nil, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
		client := binance.NewClient(apiKey, apiSecret)
		if baseURL := os.Getenv("BINANCE_BASE_URL"); baseURL != "" {
			client.BaseURL = baseURL
		}
		provider := market.NewProvider(pricer.NewBinancePricer(client), collector.NewBinanceKlineProvider(client))
		return provider, account.NewBinanceAccount(client), nil
	case "bybit":
		apiKey := os.Getenv("BYBIT_API_KEY")
		apiSecret := os.Getenv("BYBIT_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			return nil, nil, errors.New("BYBIT_API_KEY and BYBIT_API_SECRET environment variables must be set")
		}
		client := bybit.NewClient().WithAuth(apiKey, apiSecret)
		provider := market.NewProvider(pricer.NewBybitPricer(client), collector.NewBybitKlineProvider(client))
		return provider, account.NewBybitAccount(client), nil
	default:
		return nil, nil, errors.Errorf("unsupported platform %q", cfg.Platform)
	}
}
