package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketCandle candlestick data point with OHLCV values.
type MarketCandle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}
