package account

import (
	"context"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BybitAccount reads unified wallet balances from Bybit.
type BybitAccount struct {
	client *bybit.Client
}

// NewBybitAccount creates a new account reader.
func NewBybitAccount(client *bybit.Client) *BybitAccount {
	return &BybitAccount{client: client}
}

// Balance returns the wallet balance of the given currency.
func (a *BybitAccount) Balance(_ context.Context, currency string) (decimal.Decimal, error) {
	res, err := a.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get account balance")
	}

	if len(res.Result.List) == 0 {
		return decimal.Zero, nil
	}

	for _, coin := range res.Result.List[0].Coin {
		if string(coin.Coin) == currency {
			balance, err := decimal.NewFromString(coin.WalletBalance)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return balance, nil
		}
	}

	return decimal.Zero, nil
}
