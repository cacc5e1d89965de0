// Package scorer computes signal quality assessments.
//
// Scoring is a pure computation: the same signal with the same market inputs
// always yields the same assessment. Degenerate inputs (stop at entry, missing
// volatility) score 0 in the affected sub-score instead of raising an error,
// so every well-formed signal gets some quality score.
package scorer

import (
	"github.com/shopspring/decimal"

	"github.com/ccc1236/coinsph-trading-bot/config"
	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

const (
	// maxExpectedChangePct caps the contribution of the expected move.
	maxExpectedChangePct = 10.0
	// alignmentBandPct is the entry-price deviation at which alignment hits 0.
	alignmentBandPct = 5.0

	riskWeight   = 0.7
	changeWeight = 0.3
)

// Scorer derives QualityAssessment values from signals and market inputs.
type Scorer struct {
	weights config.QualityWeights
	idealRR float64
}

// New creates a scorer with the configured sub-score weights and ideal
// risk-reward ratio.
func New(weights config.QualityWeights, idealRiskReward float64) *Scorer {
	return &Scorer{weights: weights, idealRR: idealRiskReward}
}

// Score computes the four sub-scores and their weighted composite.
// currentPrice is the latest market price for the signal's pair and
// volatilityPct is the recent market volatility as a percentage.
func (s *Scorer) Score(sig domain.Signal, currentPrice decimal.Decimal, volatilityPct float64) domain.QualityAssessment {
	confidence := s.confidenceScore(sig)
	riskReward := s.riskRewardScore(sig)
	alignment := s.alignmentScore(sig, currentPrice)
	volatility := volatilityFactor(volatilityPct)

	composite := confidence*s.weights.Confidence +
		riskReward*s.weights.RiskReward +
		alignment*s.weights.Alignment +
		volatility*s.weights.Volatility

	return domain.QualityAssessment{
		Confidence: confidence,
		RiskReward: riskReward,
		Alignment:  alignment,
		Volatility: volatility,
		Composite:  clamp01(composite),
	}
}

// confidenceScore decreases with the signal's risk level and grows with the
// magnitude of the expected move, capped at maxExpectedChangePct.
func (s *Scorer) confidenceScore(sig domain.Signal) float64 {
	riskConfidence := float64(10-sig.Risk) / 10
	change := sig.ExpectedChangePct
	if change < 0 {
		change = -change
	}
	changeConfidence := change / maxExpectedChangePct
	if changeConfidence > 1 {
		changeConfidence = 1
	}
	return clamp01(riskWeight*riskConfidence + changeWeight*changeConfidence)
}

// riskRewardScore normalizes the direction-adjusted target/stop distance
// ratio against the ideal ratio. A stop at the entry price makes the ratio
// undefined and scores 0.
func (s *Scorer) riskRewardScore(sig domain.Signal) float64 {
	profit := sig.TargetPrice.Sub(sig.EntryPrice).Abs()
	loss := sig.EntryPrice.Sub(sig.StopPrice).Abs()
	if loss.IsZero() {
		return 0
	}

	ratio, _ := profit.Div(loss).Float64()
	return clamp01(ratio / s.idealRR)
}

// alignmentScore is 1 at a perfect entry match and falls linearly to 0 at
// alignmentBandPct deviation.
func (s *Scorer) alignmentScore(sig domain.Signal, currentPrice decimal.Decimal) float64 {
	if sig.EntryPrice.IsZero() || currentPrice.LessThanOrEqual(decimal.Zero) {
		return 0
	}

	deviation := currentPrice.Sub(sig.EntryPrice).Abs().Div(sig.EntryPrice)
	deviationPct, _ := deviation.Mul(decimal.NewFromInt(100)).Float64()
	return clamp01(1 - deviationPct/alignmentBandPct)
}

// volatilityFactor bands recent volatility into a stability score: calm
// markets make a static entry/stop/target triple more reliable.
func volatilityFactor(volatilityPct float64) float64 {
	switch {
	case volatilityPct < 0:
		return 0
	case volatilityPct <= 2:
		return 1.0
	case volatilityPct <= 5:
		return 0.8
	case volatilityPct <= 10:
		return 0.6
	default:
		return 0.4
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
