// Package gate implements the admission filter for incoming signals.
package gate

import (
	"github.com/shopspring/decimal"

	"github.com/ccc1236/coinsph-trading-bot/config"
	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

// Result is the gate's verdict. A rejection carries a machine-readable
// reason; it is a normal negative decision, not an error.
type Result struct {
	Accepted bool
	Reason   domain.RejectReason
}

// Gate filters signals on risk, quality, price alignment and the daily
// trade limit. It holds only configuration and has no side effects.
type Gate struct {
	maxRiskLevel     int
	minSignalQuality float64
	priceTolerance   float64
	maxTradesPerDay  int
}

// New builds a gate from configuration.
func New(cfg config.Config) *Gate {
	return &Gate{
		maxRiskLevel:     cfg.MaxRiskLevel,
		minSignalQuality: cfg.MinSignalQuality,
		priceTolerance:   cfg.PriceTolerance,
		maxTradesPerDay:  cfg.MaxTradesPerDay,
	}
}

// Admit evaluates the rejection rules in priority order and short-circuits
// on the first match. The order is part of the contract: a signal that is
// both too risky and too low quality rejects as risk-too-high.
func (g *Gate) Admit(sig domain.Signal, assessment domain.QualityAssessment, dailyCount int, currentPrice decimal.Decimal) Result {
	if sig.Risk > g.maxRiskLevel {
		return Result{Reason: domain.RejectRiskTooHigh}
	}

	if assessment.Composite < g.minSignalQuality {
		return Result{Reason: domain.RejectQualityTooLow}
	}

	if g.priceMisaligned(sig, currentPrice) {
		return Result{Reason: domain.RejectPriceMisaligned}
	}

	if dailyCount >= g.maxTradesPerDay {
		return Result{Reason: domain.RejectDailyLimitReached}
	}

	return Result{Accepted: true}
}

func (g *Gate) priceMisaligned(sig domain.Signal, currentPrice decimal.Decimal) bool {
	if sig.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return true
	}
	deviation := currentPrice.Sub(sig.EntryPrice).Abs().Div(sig.EntryPrice)
	return deviation.GreaterThan(decimal.NewFromFloat(g.priceTolerance))
}
