// Package pricer fetches current market prices from exchanges.
package pricer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

// Pricer returns the latest market price for a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}
