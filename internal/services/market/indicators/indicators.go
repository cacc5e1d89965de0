// Package indicators derives the market inputs the engine consumes from raw
// candle data. ATR comes from the cinar/indicator library; trend is a plain
// percentage change between the halves of the lookback window.
package indicators

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

// ATRPeriod is the default period for the volatility calculation.
const ATRPeriod = 14

// CalculateATR calculates the Average True Range for the given period.
func CalculateATR(candles []domain.MarketCandle, period int) ([]float64, error) {
	if len(candles) < period+1 {
		return nil, errors.Errorf("not enough data points for ATR: need %d, got %d", period+1, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], _ = c.High.Float64()
		lows[i], _ = c.Low.Float64()
		closes[i], _ = c.Close.Float64()
	}

	atr := volatility.NewAtrWithPeriod[float64](period)

	out := atr.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	)

	return helper.ChanToSlice(out), nil
}

// VolatilityPercent expresses the latest ATR as a percentage of the last
// close, the form the quality scorer's volatility banding expects.
func VolatilityPercent(candles []domain.MarketCandle, period int) (float64, error) {
	atr, err := CalculateATR(candles, period)
	if err != nil {
		return 0, err
	}
	if len(atr) == 0 {
		return 0, errors.New("ATR produced no values")
	}

	lastClose, _ := candles[len(candles)-1].Close.Float64()
	if lastClose <= 0 {
		return 0, errors.New("last close must be positive")
	}

	return atr[len(atr)-1] / lastClose * 100, nil
}

// Trend returns the fractional price change between the average closes of
// the first and second halves of the window. Positive means the market rose
// across the window.
func Trend(candles []domain.MarketCandle) (float64, error) {
	if len(candles) < 4 {
		return 0, errors.Errorf("not enough data points for trend: need 4, got %d", len(candles))
	}

	mid := len(candles) / 2
	firstHalf := averageClose(candles[:mid])
	secondHalf := averageClose(candles[mid:])
	if firstHalf.IsZero() {
		return 0, errors.New("first half average close is zero")
	}

	trend, _ := secondHalf.Sub(firstHalf).Div(firstHalf).Float64()
	return trend, nil
}

func averageClose(candles []domain.MarketCandle) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}
