package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RejectReason is a machine-readable reason for declining a signal.
type RejectReason string

const (
	RejectRiskTooHigh       RejectReason = "risk-too-high"
	RejectQualityTooLow     RejectReason = "quality-too-low"
	RejectPriceMisaligned   RejectReason = "price-misaligned"
	RejectDailyLimitReached RejectReason = "daily-limit-reached"
)

// SizingDecision is the monetary size chosen for an accepted signal.
type SizingDecision struct {
	// Amount in quote currency, always within the configured bounds.
	Amount decimal.Decimal `json:"amount"`
	// Strategy that produced the amount.
	Strategy string `json:"strategy"`
	// Multiplier applied to the base amount after clamping.
	Multiplier float64 `json:"multiplier"`
}

// TradeDecision is the outcome of evaluating one signal. A rejection is a
// normal negative decision, not an error.
type TradeDecision struct {
	Accepted   bool              `json:"accepted"`
	Reason     RejectReason      `json:"reason,omitempty"`
	Assessment QualityAssessment `json:"assessment"`
	Sizing     SizingDecision    `json:"sizing"`
	PositionID string            `json:"position_id,omitempty"`
	Pair       string            `json:"pair"`
	DecidedAt  time.Time         `json:"decided_at"`
}
