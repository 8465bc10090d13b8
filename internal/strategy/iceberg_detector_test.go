package strategy_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/internal/strategy"
	"github.com/atlas-desktop/signal-engine/pkg/types"
)

// icebergSnapshot builds a depth event with a single tracked bid level at
// 0.5000 plus a best ask whose quantity varies sample to sample, so only
// the bid side can form a pattern.
func icebergSnapshot(bidQty, askQty string) *eventmodel.DepthSnapshot {
	return &eventmodel.DepthSnapshot{
		Symbol: "XRPUSDT",
		Bids:   []types.OrderBookLevel{level("0.5000", bidQty)},
		Asks:   []types.OrderBookLevel{level("0.5004", askQty)},
	}
}

// TestIcebergDetectorRefillBuy: a bid level repeatedly drained and refilled
// within the refill-speed window should surface a refill-pattern BUY once
// the refill count crosses the minimum.
func TestIcebergDetectorRefillBuy(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	s := strategy.NewIcebergDetectorStrategy()
	strategy.SetIcebergDetectorClock(s, func() time.Time { return clock })

	params := strategy.Parameters{
		"min_refill_count":               3,
		"refill_speed_threshold_seconds": 5.0,
		"level_proximity_pct":            1.0,
		"min_signal_interval_seconds":    0.0,
	}

	quantities := []struct {
		offset time.Duration
		bidQty string
		askQty string
	}{
		{0, "2.0", "100"},
		{1 * time.Second, "0.2", "40"},
		{2 * time.Second, "2.0", "70"},
		{3 * time.Second, "0.3", "120"},
		{4 * time.Second, "2.0", "55"},
		{5 * time.Second, "0.1", "90"},
		{6 * time.Second, "2.0", "30"},
	}

	var out *signalmodel.InternalSignal
	var err error
	for _, step := range quantities {
		clock = start.Add(step.offset)
		out, err = s.OnDepth(params, icebergSnapshot(step.bidQty, step.askQty))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if out == nil {
		t.Fatalf("expected a refill signal on the final sample")
	}
	if out.Action != signalmodel.ActionOpenLong {
		t.Errorf("action = %q, want open_long", out.Action)
	}
	if pattern, _ := out.Metadata["pattern"].(string); pattern != "refill" {
		t.Errorf("pattern = %q, want refill", pattern)
	}
}

func TestIcebergDetectorSuppressesFarFromProximity(t *testing.T) {
	s := strategy.NewIcebergDetectorStrategy()
	params := strategy.Parameters{"level_proximity_pct": 0.01, "min_refill_count": 100, "persistence_threshold_seconds": 0.0}

	ev := &eventmodel.DepthSnapshot{
		Symbol: "XRPUSDT",
		Bids:   []types.OrderBookLevel{level("0.4000", "2.0")},
		Asks:   []types.OrderBookLevel{level("0.5004", "100")},
	}

	out, err := s.OnDepth(params, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Errorf("expected no signal far from proximity threshold, got %+v", out)
	}
}
