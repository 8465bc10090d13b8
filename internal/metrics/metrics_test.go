package metrics_test

import (
	"testing"

	"github.com/atlas-desktop/signal-engine/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestRecordStrategyResultIncrementsCounter(t *testing.T) {
	e := metrics.NewEmitter(zap.NewNop())
	e.RecordStrategyResult("orderbook_skew", "success")
	e.RecordStrategyResult("orderbook_skew", "success")

	got := testutil.ToFloat64(e.StrategyExecutions.WithLabelValues("orderbook_skew", "success"))
	if got != 2 {
		t.Errorf("count = %v, want 2", got)
	}
}

func TestRecordSignalLabelsByStrategyAndAction(t *testing.T) {
	e := metrics.NewEmitter(zap.NewNop())
	e.RecordSignal("trade_momentum", "buy")

	got := testutil.ToFloat64(e.SignalsEmitted.WithLabelValues("trade_momentum", "buy"))
	if got != 1 {
		t.Errorf("count = %v, want 1", got)
	}
}

func TestSetBreakerStateReportsGauge(t *testing.T) {
	e := metrics.NewEmitter(zap.NewNop())
	e.SetBreakerState("orderbook_skew", 2)

	got := testutil.ToFloat64(e.BreakerState.WithLabelValues("orderbook_skew"))
	if got != 2 {
		t.Errorf("gauge = %v, want 2", got)
	}
}
