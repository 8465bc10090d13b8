// Package strategy_test provides tests for the microstructure strategies.
package strategy_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/internal/strategy"
	"github.com/atlas-desktop/signal-engine/pkg/types"
	"github.com/shopspring/decimal"
)

func level(price, qty string) types.OrderBookLevel {
	p, _ := decimal.NewFromString(price)
	q, _ := decimal.NewFromString(qty)
	return types.OrderBookLevel{Price: p, Quantity: q}
}

// TestOrderBookSkewBuySignal: heavy bid-side depth with a tight spread
// should emit a long signal.
func TestOrderBookSkewBuySignal(t *testing.T) {
	s := strategy.NewOrderBookSkewStrategy()
	params := strategy.Parameters{
		"top_levels":         5,
		"buy_threshold":      1.2,
		"sell_threshold":     0.8,
		"min_spread_percent": 0.1,
		"base_confidence":    0.70,
	}

	ev := &eventmodel.DepthSnapshot{
		Symbol: "BTCUSDT",
		Bids: []types.OrderBookLevel{
			level("50000", "10"),
			level("49999", "8"),
			level("49998", "6"),
		},
		Asks: []types.OrderBookLevel{
			level("50001", "4"),
			level("50002", "3"),
			level("50003", "2"),
		},
		Timestamp: time.Now(),
	}

	out, err := s.OnDepth(params, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatalf("expected a signal, got nil")
	}
	if out.Action != signalmodel.ActionOpenLong {
		t.Errorf("action = %q, want open_long", out.Action)
	}
	if !out.HasScore || out.ConfidenceScore <= 0 {
		t.Errorf("expected positive confidence score, got %v", out.ConfidenceScore)
	}
}

// TestOrderBookSkewSpreadGuardSuppression: the same bid-heavy skew is
// suppressed once the spread widens past the threshold.
func TestOrderBookSkewSpreadGuardSuppression(t *testing.T) {
	s := strategy.NewOrderBookSkewStrategy()
	params := strategy.Parameters{
		"top_levels":         5,
		"buy_threshold":      1.2,
		"sell_threshold":     0.8,
		"min_spread_percent": 0.1,
		"base_confidence":    0.70,
	}

	ev := &eventmodel.DepthSnapshot{
		Symbol: "BTCUSDT",
		Bids: []types.OrderBookLevel{
			level("50000", "10"),
			level("49990", "8"),
		},
		Asks: []types.OrderBookLevel{
			level("50100", "4"),
			level("50110", "3"),
		},
		Timestamp: time.Now(),
	}

	out, err := s.OnDepth(params, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Errorf("expected no signal under wide spread, got %+v", out)
	}
}

func TestOrderBookSkewNoOppositeSignalWhenAskSumZero(t *testing.T) {
	s := strategy.NewOrderBookSkewStrategy()
	params := strategy.Parameters{}

	ev := &eventmodel.DepthSnapshot{
		Symbol: "BTCUSDT",
		Bids:   []types.OrderBookLevel{level("50000", "10")},
		Asks:   []types.OrderBookLevel{},
	}

	out, err := s.OnDepth(params, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil signal with empty ask side, got %+v", out)
	}
}
