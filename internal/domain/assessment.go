package domain

// QualityAssessment is a derived, immutable snapshot of signal quality.
// Each sub-score and the composite are in [0,1]. A re-check produces a new
// value; assessments are never mutated in place.
type QualityAssessment struct {
	// Confidence reflects the signal's own risk level and expected move.
	Confidence float64 `json:"confidence"`
	// RiskReward reflects the target/stop distance ratio against the ideal.
	RiskReward float64 `json:"risk_reward"`
	// Alignment reflects how close the market price is to the signal entry.
	Alignment float64 `json:"alignment"`
	// Volatility reflects how stable the market is around the signal.
	Volatility float64 `json:"volatility"`
	// Composite is the weighted sum of the four sub-scores.
	Composite float64 `json:"composite"`
}
