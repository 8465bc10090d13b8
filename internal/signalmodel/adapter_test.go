// Package signalmodel_test provides tests for the signal adapter.
package signalmodel_test

import (
	"testing"

	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/shopspring/decimal"
)

func TestAdaptHighConfidenceLong(t *testing.T) {
	adapter := signalmodel.NewAdapter(decimal.NewFromInt(1))

	in := &signalmodel.InternalSignal{
		StrategyName:    "orderbook_skew",
		Symbol:          "BTCUSDT",
		Action:          signalmodel.ActionOpenLong,
		Confidence:      signalmodel.ConfidenceHigh,
		HasConfidence:   true,
		ConfidenceScore: 0.82,
		HasScore:        true,
		Price:           decimal.NewFromInt(50000),
		CurrentPrice:    decimal.NewFromInt(50000),
	}

	out, err := adapter.Adapt(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Action != "buy" || out.SignalType != "buy" {
		t.Errorf("action = %q/%q, want buy/buy", out.Action, out.SignalType)
	}
	if out.Confidence != 0.82 {
		t.Errorf("confidence = %v, want 0.82", out.Confidence)
	}
	if out.Strength != "strong" {
		t.Errorf("strength = %q, want strong", out.Strength)
	}
	if out.StopLossPct != 0.02 || out.TakeProfitPct != 0.05 {
		t.Errorf("risk pct = %v/%v, want 0.02/0.05", out.StopLossPct, out.TakeProfitPct)
	}
	if out.StopLoss == nil || out.TakeProfit == nil {
		t.Fatalf("expected non-nil SL/TP for buy")
	}
	if !out.StopLoss.LessThan(out.Price) || !out.Price.LessThan(*out.TakeProfit) {
		t.Errorf("expected SL < price < TP for buy, got SL=%v price=%v TP=%v", out.StopLoss, out.Price, out.TakeProfit)
	}
}

func TestAdaptIsIdempotent(t *testing.T) {
	adapter := signalmodel.NewAdapter(decimal.NewFromInt(1))

	in := &signalmodel.InternalSignal{
		StrategyName:    "orderbook_skew",
		Symbol:          "BTCUSDT",
		Action:          signalmodel.ActionOpenLong,
		Confidence:      signalmodel.ConfidenceHigh,
		HasConfidence:   true,
		ConfidenceScore: 0.82,
		HasScore:        true,
		Price:           decimal.NewFromInt(50000),
		CurrentPrice:    decimal.NewFromInt(50000),
	}

	first, err := adapter.Adapt(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := adapter.ReAdaptFromWire(first)
	if err != nil {
		t.Fatalf("unexpected error on re-adapt: %v", err)
	}

	if first.Action != second.Action || first.SignalType != second.SignalType {
		t.Errorf("action mismatch across re-adapt: %v vs %v", first.Action, second.Action)
	}
	if first.Confidence != second.Confidence {
		t.Errorf("confidence mismatch across re-adapt: %v vs %v", first.Confidence, second.Confidence)
	}
	if first.Strength != second.Strength {
		t.Errorf("strength mismatch across re-adapt: %v vs %v", first.Strength, second.Strength)
	}
	if !first.Price.Equal(second.Price) || !first.Quantity.Equal(second.Quantity) {
		t.Errorf("price/quantity mismatch across re-adapt")
	}
	if !first.StopLoss.Equal(*second.StopLoss) || !first.TakeProfit.Equal(*second.TakeProfit) {
		t.Errorf("SL/TP mismatch across re-adapt")
	}
}

func TestAdaptKeepsStrategyRiskLevels(t *testing.T) {
	adapter := signalmodel.NewAdapter(decimal.NewFromInt(1))

	sl := decimal.NewFromFloat(0.4975)
	tp := decimal.NewFromFloat(0.5065)
	slPct := 0.005
	tpPct := 0.012

	in := &signalmodel.InternalSignal{
		StrategyName:    "iceberg_detector",
		Symbol:          "XRPUSDT",
		Action:          signalmodel.ActionOpenLong,
		ConfidenceScore: 0.65,
		HasScore:        true,
		Price:           decimal.NewFromFloat(0.5000),
		CurrentPrice:    decimal.NewFromFloat(0.5002),
		StopLoss:        &sl,
		TakeProfit:      &tp,
		StopLossPct:     &slPct,
		TakeProfitPct:   &tpPct,
	}

	out, err := adapter.Adapt(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.StopLoss.Equal(sl) || !out.TakeProfit.Equal(tp) {
		t.Errorf("expected the strategy's absolute SL/TP to pass through, got %v/%v", out.StopLoss, out.TakeProfit)
	}
	if out.StopLossPct != slPct || out.TakeProfitPct != tpPct {
		t.Errorf("risk pct = %v/%v, want %v/%v", out.StopLossPct, out.TakeProfitPct, slPct, tpPct)
	}
}

func TestAdaptHoldHasNoRiskLevels(t *testing.T) {
	adapter := signalmodel.NewAdapter(decimal.NewFromInt(1))

	in := &signalmodel.InternalSignal{
		StrategyName:    "ticker_velocity",
		Symbol:          "ETHUSDT",
		Action:          signalmodel.ActionHold,
		ConfidenceScore: 0.4,
		HasScore:        true,
		Price:           decimal.NewFromInt(3000),
		CurrentPrice:    decimal.NewFromInt(3000),
	}

	out, err := adapter.Adapt(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StopLoss != nil || out.TakeProfit != nil {
		t.Errorf("expected nil SL/TP for hold action")
	}
}

func TestAdaptRejectsNonPositivePrice(t *testing.T) {
	adapter := signalmodel.NewAdapter(decimal.NewFromInt(1))
	in := &signalmodel.InternalSignal{
		StrategyName: "trade_momentum",
		Symbol:       "BTCUSDT",
		Action:       signalmodel.ActionOpenLong,
		Price:        decimal.Zero,
	}
	if _, err := adapter.Adapt(in); err == nil {
		t.Fatalf("expected error for zero price")
	}
}
