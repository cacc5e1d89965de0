// Package account exposes exchange balances to the engine.
package account

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BinanceAccount reads spot balances from a Binance-compatible API.
type BinanceAccount struct {
	client *binance.Client
}

// NewBinanceAccount creates a new account reader.
func NewBinanceAccount(client *binance.Client) *BinanceAccount {
	return &BinanceAccount{client: client}
}

// Balance returns the free balance of the given currency.
func (a *BinanceAccount) Balance(ctx context.Context, currency string) (decimal.Decimal, error) {
	acc, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get account balance")
	}

	for _, b := range acc.Balances {
		if b.Asset == currency {
			free, err := decimal.NewFromString(b.Free)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return free, nil
		}
	}

	return decimal.Zero, nil
}
