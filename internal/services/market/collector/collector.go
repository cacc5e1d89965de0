// Package collector fetches kline (candlestick) data from exchanges.
package collector

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

// KlineProvider defines the interface for fetching kline data.
type KlineProvider interface {
	// GetKlines fetches up to limit historical klines for a trading pair.
	// interval uses the standard notation ("1m", "1h", "4h", ...).
	GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error)
}

// BinanceKlineProvider implements KlineProvider against any exchange with a
// Binance-compatible REST API.
type BinanceKlineProvider struct {
	client *binance.Client
}

// NewBinanceKlineProvider creates a new Binance kline provider.
func NewBinanceKlineProvider(client *binance.Client) *BinanceKlineProvider {
	return &BinanceKlineProvider{client: client}
}

// GetKlines fetches kline data.
func (p *BinanceKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines for %s", pair.String())
	}

	result := make([]domain.MarketCandle, len(klines))
	for i, k := range klines {
		candle, err := convertBinanceKline(k)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse kline at index %d", i)
		}
		result[i] = candle
	}

	return result, nil
}

func convertBinanceKline(k *binance.Kline) (domain.MarketCandle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "open price")
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "high price")
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "low price")
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "close price")
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "volume")
	}

	return domain.MarketCandle{
		OpenTime:  time.Unix(0, k.OpenTime*int64(time.Millisecond)),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		CloseTime: time.Unix(0, k.CloseTime*int64(time.Millisecond)),
	}, nil
}
