package strategy_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/internal/strategy"
	"github.com/shopspring/decimal"
)

func ticker(symbol, price string) *eventmodel.TickerUpdate {
	p, _ := decimal.NewFromString(price)
	return &eventmodel.TickerUpdate{Symbol: symbol, LastPrice: p}
}

// TestTickerVelocityBuyAfterJump: three ticks within the window produce a
// below-threshold velocity, then a larger jump crosses the buy threshold.
func TestTickerVelocityBuyAfterJump(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	s := strategy.NewTickerVelocityStrategy()
	strategy.SetTickerVelocityClock(s, func() time.Time { return clock })

	params := strategy.Parameters{"buy_threshold": 0.5, "sell_threshold": -0.5, "time_window": 60.0}

	if _, err := s.OnTicker(params, ticker("ETHUSDT", "3000")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock = base.Add(30 * time.Second)
	if _, err := s.OnTicker(params, ticker("ETHUSDT", "3003")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock = base.Add(60 * time.Second)
	out, err := s.OnTicker(params, ticker("ETHUSDT", "3006"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Errorf("expected no signal below threshold, got %+v", out)
	}

	out, err = s.OnTicker(params, ticker("ETHUSDT", "3020"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatalf("expected a BUY signal after the price jump")
	}
	if out.Action != signalmodel.ActionOpenLong {
		t.Errorf("action = %q, want open_long", out.Action)
	}
}

func TestTickerVelocityRequiresTwoSamples(t *testing.T) {
	s := strategy.NewTickerVelocityStrategy()
	params := strategy.Parameters{}

	out, err := s.OnTicker(params, ticker("ETHUSDT", "3000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Errorf("expected no signal on the first sample, got %+v", out)
	}
}
