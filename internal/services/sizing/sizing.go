// Package sizing converts a quality assessment into a bounded monetary
// position size. Five interchangeable strategies share one interface and are
// selected once at construction time; every strategy's output is clamped to
// [minMultiplier, maxMultiplier] x baseAmount, never rejected.
package sizing

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ccc1236/coinsph-trading-bot/config"
	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

// Strategy names accepted in configuration.
const (
	StrategyFixed      = "fixed"
	StrategyPercentage = "percentage"
	StrategyMomentum   = "momentum"
	StrategyRiskReward = "riskreward"
	StrategyAdaptive   = "adaptive"
)

// Inputs carries everything a strategy may consult. Strategies are pure:
// the same inputs always produce the same size.
type Inputs struct {
	Signal     domain.Signal
	Assessment domain.QualityAssessment
	// Balance is the available quote-currency balance.
	Balance decimal.Decimal
	// TradesToday is the number of positions opened in the current daily window.
	TradesToday int
	// Trend is the fractional price change over the trend lookback window.
	Trend float64
}

// Strategy sizes an accepted signal.
type Strategy interface {
	Name() string
	Size(in Inputs) domain.SizingDecision
}

// New returns the strategy selected by cfg.SizingStrategy.
func New(cfg config.Config) (Strategy, error) {
	b := bounds{
		base: cfg.BaseAmount,
		min:  decimal.NewFromFloat(cfg.MinPositionMultiplier).Mul(cfg.BaseAmount),
		max:  decimal.NewFromFloat(cfg.MaxPositionMultiplier).Mul(cfg.BaseAmount),
	}

	switch cfg.SizingStrategy {
	case StrategyFixed:
		return &fixed{b}, nil
	case StrategyPercentage:
		return &percentage{b}, nil
	case StrategyMomentum:
		return &momentum{b}, nil
	case StrategyRiskReward:
		return &riskReward{b}, nil
	case StrategyAdaptive:
		return &adaptive{b}, nil
	default:
		return nil, errors.Errorf("unsupported sizing strategy: %s", cfg.SizingStrategy)
	}
}

type bounds struct {
	base, min, max decimal.Decimal
}

// decide clamps the raw amount into bounds and packages the decision.
func (b bounds) decide(name string, raw decimal.Decimal) domain.SizingDecision {
	amount := raw
	if amount.LessThan(b.min) {
		amount = b.min
	}
	if amount.GreaterThan(b.max) {
		amount = b.max
	}

	multiplier := 0.0
	if b.base.IsPositive() {
		multiplier, _ = amount.Div(b.base).Float64()
	}

	return domain.SizingDecision{
		Amount:     amount,
		Strategy:   name,
		Multiplier: multiplier,
	}
}

// fixed always returns the base amount.
type fixed struct {
	bounds
}

func (s *fixed) Name() string { return StrategyFixed }

func (s *fixed) Size(Inputs) domain.SizingDecision {
	return s.decide(StrategyFixed, s.base)
}

// percentage returns a fixed fraction of the available balance.
type percentage struct {
	bounds
}

const balanceFraction = 0.10

func (s *percentage) Name() string { return StrategyPercentage }

func (s *percentage) Size(in Inputs) domain.SizingDecision {
	raw := in.Balance.Mul(decimal.NewFromFloat(balanceFraction))
	return s.decide(StrategyPercentage, raw)
}

// momentum scales the base amount by the magnitude of the expected move.
type momentum struct {
	bounds
}

func (s *momentum) Name() string { return StrategyMomentum }

func (s *momentum) Size(in Inputs) domain.SizingDecision {
	change := in.Signal.ExpectedChangePct
	if change < 0 {
		change = -change
	}

	// monotonic step mapping of expected-move magnitude to a multiplier
	var multiplier float64
	switch {
	case change > 8:
		multiplier = 1.4
	case change > 5:
		multiplier = 1.2
	case change > 2:
		multiplier = 1.0
	default:
		multiplier = 0.8
	}

	raw := s.base.Mul(decimal.NewFromFloat(multiplier))
	return s.decide(StrategyMomentum, raw)
}

// riskReward rewards better target/stop geometry with larger size.
type riskReward struct {
	bounds
}

func (s *riskReward) Name() string { return StrategyRiskReward }

func (s *riskReward) Size(in Inputs) domain.SizingDecision {
	rr := in.Assessment.RiskReward

	var multiplier float64
	switch {
	case rr >= 0.9:
		multiplier = 1.4
	case rr >= 0.7:
		multiplier = 1.2
	case rr >= 0.5:
		multiplier = 1.0
	case rr >= 0.3:
		multiplier = 0.8
	default:
		multiplier = 0.5
	}

	raw := s.base.Mul(decimal.NewFromFloat(multiplier))
	return s.decide(StrategyRiskReward, raw)
}

// adaptive combines balance scaling, composite quality, trend strength and an
// overtrading penalty. The default and most involved strategy.
type adaptive struct {
	bounds
}

func (s *adaptive) Name() string { return StrategyAdaptive }

func (s *adaptive) Size(in Inputs) domain.SizingDecision {
	// balance scaling: full weight at 5x base, growth capped at 2x; an
	// (almost) empty account forces the size toward the minimum bound
	balanceFloor := s.base.Mul(decimal.NewFromFloat(5))
	balanceFactor := 0.0
	if balanceFloor.IsPositive() {
		balanceFactor, _ = in.Balance.Div(balanceFloor).Float64()
	}
	if balanceFactor > 2.0 {
		balanceFactor = 2.0
	}
	if balanceFactor < 0 {
		balanceFactor = 0
	}

	qualityFactor := in.Assessment.Composite

	trendFactor := 1.0
	switch {
	case in.Trend > 0.02:
		trendFactor = 1.1
	case in.Trend < -0.03:
		trendFactor = 0.8
	}

	// overtrading penalty: no trades today means no penalty
	tradeFactor := 1.0
	switch {
	case in.TradesToday >= 7:
		tradeFactor = 0.7
	case in.TradesToday >= 5:
		tradeFactor = 0.9
	}

	total := balanceFactor * qualityFactor * trendFactor * tradeFactor
	raw := s.base.Mul(decimal.NewFromFloat(total))
	return s.decide(StrategyAdaptive, raw)
}
