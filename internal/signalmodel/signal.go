// Package signalmodel defines the internal strategy signal representation
// and the wire signal contract consumed by the downstream execution
// service, plus the SignalAdapter that is the sole boundary between them.
package signalmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// InternalAction is the categorical action a strategy produces, before
// adaptation to the wire contract.
type InternalAction string

const (
	ActionOpenLong   InternalAction = "OPEN_LONG"
	ActionOpenShort  InternalAction = "OPEN_SHORT"
	ActionCloseLong  InternalAction = "CLOSE_LONG"
	ActionCloseShort InternalAction = "CLOSE_SHORT"
	ActionHold       InternalAction = "HOLD"
)

// Confidence is the categorical confidence band a strategy may attach to a
// signal. It is intentionally a distinct type from ConfidenceScore so the
// two cannot be compared directly; the adapter is the only place a
// Confidence is ever turned into a number.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceScore is the numeric confidence a strategy may attach directly,
// in [0, 1]. It has no conversion to/from Confidence.
type ConfidenceScore float64

// ConfigProvenance records which configuration record produced the
// parameters a strategy used to generate this signal.
type ConfigProvenance struct {
	Source     string
	Version    int
	IsOverride bool
}

// InternalSignal is what a strategy emits. SignalAdapter.Adapt is the only
// function allowed to turn it into the wire Signal.
type InternalSignal struct {
	StrategyName    string
	Symbol          string
	Action          InternalAction
	Confidence      Confidence // optional categorical band
	HasConfidence   bool
	ConfidenceScore ConfidenceScore // optional numeric score
	HasScore        bool
	Price           decimal.Decimal
	CurrentPrice    decimal.Decimal
	StopLoss        *decimal.Decimal
	TakeProfit      *decimal.Decimal
	StopLossPct     *float64
	TakeProfitPct   *float64
	Timeframe       string
	OrderType       string
	TimeInForce     string
	Indicators      map[string]float64
	Metadata        map[string]interface{}
	Config          ConfigProvenance
	GeneratedAt     time.Time
}

// Signal is the fixed wire contract consumed by the downstream executor.
type Signal struct {
	ID              string                 `json:"id"`
	SignalID        string                 `json:"signal_id"`
	CorrelationID   string                 `json:"correlation_id"`
	StrategyID      string                 `json:"strategy_id"`
	Symbol          string                 `json:"symbol"`
	Action          string                 `json:"action"`
	SignalType      string                 `json:"signal_type"`
	Confidence      float64                `json:"confidence"`
	Strength        string                 `json:"strength"`
	Price           decimal.Decimal        `json:"price"`
	Quantity        decimal.Decimal        `json:"quantity"`
	CurrentPrice    decimal.Decimal        `json:"current_price"`
	StopLoss        *decimal.Decimal       `json:"stop_loss"`
	TakeProfit      *decimal.Decimal       `json:"take_profit"`
	StopLossPct     float64                `json:"stop_loss_pct"`
	TakeProfitPct   float64                `json:"take_profit_pct"`
	Timeframe       string                 `json:"timeframe"`
	OrderType       string                 `json:"order_type"`
	TimeInForce     string                 `json:"time_in_force"`
	Source          string                 `json:"source"`
	Strategy        string                 `json:"strategy"`
	Indicators      map[string]float64     `json:"indicators"`
	Metadata        map[string]interface{} `json:"metadata"`
	Timestamp       time.Time              `json:"timestamp"`
}

// StrengthFor returns the qualitative confidence band for a numeric score, per
// the fixed band thresholds: >=0.9 extreme, >=0.7 strong, >=0.5 medium,
// otherwise weak.
func StrengthFor(score float64) string {
	switch {
	case score >= 0.9:
		return "extreme"
	case score >= 0.7:
		return "strong"
	case score >= 0.5:
		return "medium"
	default:
		return "weak"
	}
}
