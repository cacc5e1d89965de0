// Package market assembles pricer and kline data into the inputs the engine
// consumes: current price, recent volatility and trend. Network fetches are
// retried with backoff here, outside the engine core.
package market

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/market/collector"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/market/indicators"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/pricer"
	"github.com/ccc1236/coinsph-trading-bot/pkg/retrier"
)

const (
	volatilityInterval = "1h"
	// volatilityDepth covers the ATR warmup plus one full day of candles.
	volatilityDepth = indicators.ATRPeriod + 24
	trendInterval   = "1h"
)

// Provider implements the engine's MarketData contract.
type Provider struct {
	pricer  pricer.Pricer
	klines  collector.KlineProvider
	retrier *retrier.Retrier
}

// NewProvider creates a market data provider.
func NewProvider(p pricer.Pricer, k collector.KlineProvider) *Provider {
	return &Provider{
		pricer:  p,
		klines:  k,
		retrier: retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(200*time.Millisecond)),
	}
}

// Price returns the latest market price for the pair.
func (p *Provider) Price(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	return retrier.DoWithData(p.retrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return p.pricer.GetPrice(ctx, pair)
	})
}

// Volatility returns the ATR of hourly candles as a percentage of the last
// close price.
func (p *Provider) Volatility(ctx context.Context, pair domain.Pair) (float64, error) {
	candles, err := p.fetchKlines(ctx, pair, volatilityInterval, volatilityDepth)
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch candles for volatility")
	}

	return indicators.VolatilityPercent(candles, indicators.ATRPeriod)
}

// Trend returns the fractional price change over the lookback window.
func (p *Provider) Trend(ctx context.Context, pair domain.Pair, lookback time.Duration) (float64, error) {
	hours := int(lookback / time.Hour)
	if hours < 4 {
		hours = 4
	}

	candles, err := p.fetchKlines(ctx, pair, trendInterval, hours)
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch candles for trend")
	}

	return indicators.Trend(candles)
}

func (p *Provider) fetchKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	return retrier.DoWithData(p.retrier, ctx, func(ctx context.Context) ([]domain.MarketCandle, error) {
		return p.klines.GetKlines(ctx, pair, interval, limit)
	})
}
