package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus int

const (
	// PositionOpen is the only non-terminal state.
	PositionOpen PositionStatus = iota
	// PositionClosed is terminal.
	PositionClosed
)

// CloseReason explains which exit trigger closed a position.
type CloseReason string

const (
	CloseReasonTarget          CloseReason = "target"
	CloseReasonStop            CloseReason = "stop"
	CloseReasonQualityDegraded CloseReason = "quality-degraded"
	CloseReasonTimeExpired     CloseReason = "time-expired"
	CloseReasonEmergencyTrend  CloseReason = "emergency-trend"
	CloseReasonShutdown        CloseReason = "shutdown"
)

// Position is an open trade monitored for exit conditions. It is owned and
// mutated exclusively by the lifecycle engine.
type Position struct {
	ID          string
	Signal      Signal
	EntryPrice  decimal.Decimal
	Amount      decimal.Decimal
	TargetPrice decimal.Decimal
	StopPrice   decimal.Decimal
	EntryTime   time.Time
	// EntryQuality is the composite score at admission time.
	EntryQuality float64
	// LastQuality is the most recent re-assessment, EntryQuality until re-scored.
	LastQuality float64
	Status      PositionStatus
	// SizedBy names the strategy that sized this position.
	SizedBy string
}

// NewPosition constructs an open position from an accepted signal.
func NewPosition(id string, sig Signal, amount decimal.Decimal, entryTime time.Time, entryQuality float64, sizedBy string) (*Position, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position amount must be greater than zero")
	}
	if sig.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}

	return &Position{
		ID:           id,
		Signal:       sig,
		EntryPrice:   sig.EntryPrice,
		Amount:       amount,
		TargetPrice:  sig.TargetPrice,
		StopPrice:    sig.StopPrice,
		EntryTime:    entryTime,
		EntryQuality: entryQuality,
		LastQuality:  entryQuality,
		Status:       PositionOpen,
		SizedBy:      sizedBy,
	}, nil
}

// TightenStop moves the stop closer to the market. Loosening is rejected:
// for longs the stop may only rise, for shorts it may only fall.
func (p *Position) TightenStop(stop decimal.Decimal) error {
	if stop.LessThanOrEqual(decimal.Zero) {
		return errors.New("stop price must be greater than zero")
	}
	switch p.Signal.Direction {
	case DirectionLong:
		if stop.LessThan(p.StopPrice) {
			return errors.Errorf("cannot loosen stop from %s to %s", p.StopPrice, stop)
		}
	case DirectionShort:
		if stop.GreaterThan(p.StopPrice) {
			return errors.Errorf("cannot loosen stop from %s to %s", p.StopPrice, stop)
		}
	}
	p.StopPrice = stop
	return nil
}

// TightenTarget moves the target closer to the market, never further away.
func (p *Position) TightenTarget(target decimal.Decimal) error {
	if target.LessThanOrEqual(decimal.Zero) {
		return errors.New("target price must be greater than zero")
	}
	switch p.Signal.Direction {
	case DirectionLong:
		if target.GreaterThan(p.TargetPrice) {
			return errors.Errorf("cannot loosen target from %s to %s", p.TargetPrice, target)
		}
	case DirectionShort:
		if target.LessThan(p.TargetPrice) {
			return errors.Errorf("cannot loosen target from %s to %s", p.TargetPrice, target)
		}
	}
	p.TargetPrice = target
	return nil
}

// PnL calculates profit and loss for the given market price.
func (p *Position) PnL(currentPrice decimal.Decimal) decimal.Decimal {
	if p == nil || p.EntryPrice.IsZero() {
		return decimal.Zero
	}

	qty := p.Amount.Div(p.EntryPrice)
	if p.Signal.Direction == DirectionShort {
		return p.EntryPrice.Sub(currentPrice).Mul(qty)
	}
	return currentPrice.Sub(p.EntryPrice).Mul(qty)
}

// ClosedPositionEvent is emitted once per position on the cycle it closes.
type ClosedPositionEvent struct {
	PositionID   string          `json:"position_id"`
	Pair         string          `json:"pair"`
	Direction    string          `json:"direction"`
	Reason       CloseReason     `json:"reason"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	ExitPrice    decimal.Decimal `json:"exit_price"`
	Amount       decimal.Decimal `json:"amount"`
	PnL          decimal.Decimal `json:"pnl"`
	EntryQuality float64         `json:"entry_quality"`
	FinalQuality float64         `json:"final_quality"`
	SizedBy      string          `json:"sized_by"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     time.Time       `json:"closed_at"`
}
