package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Direction represents the side of a proposed trade.
type Direction int

const (
	// DirectionLong profits from a rising price.
	DirectionLong Direction = iota
	// DirectionShort profits from a falling price.
	DirectionShort
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	if d == DirectionShort {
		return "short"
	}
	return "long"
}

// Signal is an immutable trade proposal from a momentum detector or an
// external AI provider. Prices are already converted to the quote currency
// by the ingestion layer.
type Signal struct {
	Direction         Direction
	Pair              Pair
	EntryPrice        decimal.Decimal
	TargetPrice       decimal.Decimal
	StopPrice         decimal.Decimal
	Risk              int
	ExpectedChangePct float64
	ReceivedAt        time.Time
}

// Validate fails fast on malformed signals. A malformed signal is a contract
// violation by the ingestion layer, not a trading condition, so it is the one
// input that produces an error instead of a score or a rejection.
func (s Signal) Validate() error {
	if s.Pair.From == "" || s.Pair.To == "" {
		return errors.New("signal pair is required")
	}
	if s.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return errors.New("signal entry price must be greater than zero")
	}
	if s.TargetPrice.LessThanOrEqual(decimal.Zero) {
		return errors.New("signal target price must be greater than zero")
	}
	if s.StopPrice.LessThanOrEqual(decimal.Zero) {
		return errors.New("signal stop price must be greater than zero")
	}
	if s.Risk < 1 || s.Risk > 10 {
		return errors.Errorf("signal risk must be in [1,10], got %d", s.Risk)
	}

	// target must be favorable and stop unfavorable relative to entry
	switch s.Direction {
	case DirectionLong:
		if s.TargetPrice.LessThanOrEqual(s.EntryPrice) {
			return errors.New("long signal target must be above entry")
		}
		if s.StopPrice.GreaterThanOrEqual(s.EntryPrice) {
			return errors.New("long signal stop must be below entry")
		}
	case DirectionShort:
		if s.TargetPrice.GreaterThanOrEqual(s.EntryPrice) {
			return errors.New("short signal target must be below entry")
		}
		if s.StopPrice.LessThanOrEqual(s.EntryPrice) {
			return errors.New("short signal stop must be above entry")
		}
	default:
		return errors.Errorf("unknown signal direction: %d", s.Direction)
	}

	return nil
}
