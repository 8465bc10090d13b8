package signalmodel

import (
	"fmt"
	"time"

	"github.com/atlas-desktop/signal-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// categoricalDefaults maps a Confidence band to its numeric default, used
// only when a strategy did not attach a ConfidenceScore.
var categoricalDefaults = map[Confidence]float64{
	ConfidenceHigh:   0.85,
	ConfidenceMedium: 0.65,
	ConfidenceLow:    0.35,
}

// riskBand is a (confidence lower bound, SL pct, TP pct) default tier, used
// only when a strategy did not supply its own SL/TP percentages.
type riskBand struct {
	minConfidence float64
	stopLossPct   float64
	takeProfitPct float64
}

var riskBands = []riskBand{
	{0.8, 0.02, 0.05},
	{0.6, 0.03, 0.04},
	{0.0, 0.05, 0.03},
}

// Adapter is a pure transformation from InternalSignal to the wire Signal
// contract. It holds no state; NewAdapter only captures the sizing base
// quantity used to size positions from confidence.
type Adapter struct {
	baseQuantity decimal.Decimal
	source       string
	now          func() time.Time
}

// NewAdapter creates a SignalAdapter. baseQuantity is the unit quantity
// scaled by confidence to size emitted signals.
func NewAdapter(baseQuantity decimal.Decimal) *Adapter {
	return &Adapter{
		baseQuantity: baseQuantity,
		source:       "realtime-strategies",
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Adapt transforms an internal signal into the wire contract. It is a pure
// function of its input plus the adapter's fixed configuration: applying it
// twice to equivalent inputs (see ReAdaptFromWire) produces an equivalent
// wire object, modulo freshly generated identifiers/timestamps.
func (a *Adapter) Adapt(in *InternalSignal) (*Signal, error) {
	if in == nil {
		return nil, fmt.Errorf("signalmodel: nil internal signal")
	}
	if in.Price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("signalmodel: price must be positive, got %s", in.Price)
	}

	action, signalType := mapAction(in.Action)
	confidence := a.numericConfidence(in)
	strength := StrengthFor(confidence)

	strategyID := fmt.Sprintf("%s_%s", in.StrategyName, in.Symbol)

	quantity := a.baseQuantity.Mul(decimal.NewFromFloat(confidence))

	slPct, tpPct := a.riskPercentages(in, confidence)
	stopLoss, takeProfit := computeRiskLevels(in.Price, action, slPct, tpPct)
	// A strategy that computed absolute risk levels itself (the iceberg
	// detector's ATR-proxy brackets) wins over the percentage-derived ones.
	if in.StopLoss != nil && in.TakeProfit != nil && (action == "buy" || action == "sell") {
		stopLoss, takeProfit = in.StopLoss, in.TakeProfit
	}

	indicators := in.Indicators
	if indicators == nil {
		indicators = map[string]float64{}
	}

	metadata := map[string]interface{}{}
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	metadata["original_signal_type"] = string(in.Action)
	metadata["original_signal_action"] = string(in.Action)
	if in.HasConfidence {
		metadata["original_confidence"] = string(in.Confidence)
	} else {
		metadata["original_confidence"] = nil
	}
	metadata["config_source"] = in.Config.Source
	metadata["config_version"] = in.Config.Version
	metadata["config_is_override"] = in.Config.IsOverride

	timeframe := in.Timeframe
	if timeframe == "" {
		timeframe = "tick"
	}
	orderType := in.OrderType
	if orderType == "" {
		orderType = "market"
	}
	tif := in.TimeInForce
	if tif == "" {
		tif = "GTC"
	}

	generatedAt := in.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = a.now()
	}

	id := utils.GenerateSignalID()

	return &Signal{
		ID:            id,
		SignalID:      id,
		CorrelationID: utils.GenerateCorrelationID(),
		StrategyID:    strategyID,
		Symbol:        in.Symbol,
		Action:        action,
		SignalType:    signalType,
		Confidence:    confidence,
		Strength:      strength,
		Price:         in.Price,
		Quantity:      quantity,
		CurrentPrice:  in.CurrentPrice,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		StopLossPct:   slPct,
		TakeProfitPct: tpPct,
		Timeframe:     timeframe,
		OrderType:     orderType,
		TimeInForce:   tif,
		Source:        a.source,
		Strategy:      in.StrategyName,
		Indicators:    indicators,
		Metadata:      metadata,
		Timestamp:     generatedAt,
	}, nil
}

// numericConfidence resolves the numeric confidence to use: the strategy's
// ConfidenceScore if present, else the categorical default.
func (a *Adapter) numericConfidence(in *InternalSignal) float64 {
	if in.HasScore {
		return utils.ClampFloat(float64(in.ConfidenceScore), 0, 1)
	}
	if in.HasConfidence {
		if v, ok := categoricalDefaults[in.Confidence]; ok {
			return v
		}
	}
	return 0.5
}

// riskPercentages resolves SL/TP percentages: the strategy's own if
// supplied, else the confidence-banded defaults.
func (a *Adapter) riskPercentages(in *InternalSignal, confidence float64) (sl, tp float64) {
	if in.StopLossPct != nil && in.TakeProfitPct != nil {
		return *in.StopLossPct, *in.TakeProfitPct
	}
	for _, band := range riskBands {
		if confidence >= band.minConfidence {
			return band.stopLossPct, band.takeProfitPct
		}
	}
	return riskBands[len(riskBands)-1].stopLossPct, riskBands[len(riskBands)-1].takeProfitPct
}

func mapAction(action InternalAction) (wireAction, signalType string) {
	switch action {
	case ActionOpenLong:
		return "buy", "buy"
	case ActionOpenShort:
		return "sell", "sell"
	case ActionCloseLong, ActionCloseShort:
		return "close", "close"
	default:
		return "hold", "hold"
	}
}

// computeRiskLevels converts SL/TP percentages into absolute price levels.
// For hold/close actions there is no position to bracket, so both are nil.
func computeRiskLevels(price decimal.Decimal, action string, slPct, tpPct float64) (*decimal.Decimal, *decimal.Decimal) {
	if action != "buy" && action != "sell" {
		return nil, nil
	}

	slFactor := decimal.NewFromFloat(slPct)
	tpFactor := decimal.NewFromFloat(tpPct)
	one := decimal.NewFromInt(1)

	var sl, tp decimal.Decimal
	if action == "buy" {
		sl = price.Mul(one.Sub(slFactor))
		tp = price.Mul(one.Add(tpFactor))
	} else {
		sl = price.Mul(one.Add(slFactor))
		tp = price.Mul(one.Sub(tpFactor))
	}
	return &sl, &tp
}

// ReAdaptFromWire rebuilds an InternalSignal from an already-adapted wire
// Signal's provenance metadata and re-runs Adapt. Used to test the
// adapter's idempotence: adapting a wire signal a second time must produce
// an equivalent result modulo identifiers and timestamp.
func (a *Adapter) ReAdaptFromWire(s *Signal) (*Signal, error) {
	action := InternalAction(ActionHold)
	switch s.Action {
	case "buy":
		action = ActionOpenLong
	case "sell":
		action = ActionOpenShort
	case "close":
		action = ActionCloseLong
	}
	if orig, ok := s.Metadata["original_signal_action"].(string); ok && orig != "" {
		action = InternalAction(orig)
	}

	slPct := s.StopLossPct
	tpPct := s.TakeProfitPct

	in := &InternalSignal{
		StrategyName:    s.Strategy,
		Symbol:          s.Symbol,
		Action:          action,
		ConfidenceScore: ConfidenceScore(s.Confidence),
		HasScore:        true,
		Price:           s.Price,
		CurrentPrice:    s.CurrentPrice,
		StopLoss:        s.StopLoss,
		TakeProfit:      s.TakeProfit,
		StopLossPct:     &slPct,
		TakeProfitPct:   &tpPct,
		Timeframe:       s.Timeframe,
		OrderType:       s.OrderType,
		TimeInForce:     s.TimeInForce,
		Indicators:      s.Indicators,
		Metadata:        s.Metadata,
		GeneratedAt:     s.Timestamp,
	}
	if c, ok := s.Metadata["original_confidence"].(string); ok {
		in.Confidence = Confidence(c)
		in.HasConfidence = true
	}
	if src, ok := s.Metadata["config_source"].(string); ok {
		in.Config.Source = src
	}
	if v, ok := s.Metadata["config_version"].(int); ok {
		in.Config.Version = v
	}
	if o, ok := s.Metadata["config_is_override"].(bool); ok {
		in.Config.IsOverride = o
	}
	return a.Adapt(in)
}
