package strategy

import (
	"sync"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// spreadSnapshot is one rolling-buffer sample for spread-liquidity.
type spreadSnapshot struct {
	ts        time.Time
	spreadBps float64
	mid       decimal.Decimal
	topBidQty decimal.Decimal
	topAskQty decimal.Decimal
}

// spreadSymbolState is the per-symbol bounded state spread-liquidity keeps:
// a fixed-length ring of recent spread snapshots, the start of the current
// widened regime (if any), and the last signal time for rate-limiting.
type spreadSymbolState struct {
	buffer        []spreadSnapshot
	widenedSince  time.Time
	isWidened     bool
	lastSignal    time.Time
	hasLastSignal bool
}

// SpreadLiquidityStrategy detects liquidity events from changes in the
// rolling bid-ask spread: sudden widening (bearish) and the subsequent
// collapse back to normal (bullish).
type SpreadLiquidityStrategy struct {
	mu    sync.Mutex
	state map[string]*spreadSymbolState
	now   func() time.Time
}

// NewSpreadLiquidityStrategy creates the spread-liquidity strategy.
func NewSpreadLiquidityStrategy() *SpreadLiquidityStrategy {
	return &SpreadLiquidityStrategy{
		state: make(map[string]*spreadSymbolState),
		now:   time.Now,
	}
}

func (s *SpreadLiquidityStrategy) Name() string { return "spread_liquidity" }

// SetSpreadLiquidityClock overrides the strategy's clock for tests.
func SetSpreadLiquidityClock(s *SpreadLiquidityStrategy, now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnDepth updates the symbol's spread ring and detects the two liquidity
// events: sudden widening with thinned depth (sell) and a persistent wide
// regime collapsing back (buy).
func (s *SpreadLiquidityStrategy) OnDepth(params Parameters, ev *eventmodel.DepthSnapshot) (*signalmodel.InternalSignal, error) {
	lookbackTicks := params.Int("lookback_ticks", 20)
	spreadThresholdBps := params.Float("spread_threshold_bps", 10)
	spreadRatioThreshold := params.Float("spread_ratio_threshold", 2.5)
	velocityThreshold := params.Float("velocity_threshold", 0.5)
	persistenceThresholdSeconds := params.Float("persistence_threshold_seconds", 30)
	minSignalIntervalSeconds := params.Float("min_signal_interval_seconds", 30)
	baseConfidence := params.Float("base_confidence", 0.70)

	bestBid := ev.BestBid().Price
	bestAsk := ev.BestAsk().Price
	mid := ev.Mid()
	if bestBid.IsZero() || bestAsk.IsZero() || mid.IsZero() {
		return nil, nil
	}

	spreadBpsDec := bestAsk.Sub(bestBid).Div(mid).Mul(decimal.NewFromInt(10000))
	spreadBps, _ := spreadBpsDec.Float64()

	now := s.now()

	s.mu.Lock()
	st, ok := s.state[ev.Symbol]
	if !ok {
		st = &spreadSymbolState{}
		s.state[ev.Symbol] = st
	}

	var prevSpreadBps float64
	hasPrev := len(st.buffer) > 0
	if hasPrev {
		prevSpreadBps = st.buffer[len(st.buffer)-1].spreadBps
	}

	snap := spreadSnapshot{
		ts:        now,
		spreadBps: spreadBps,
		mid:       mid,
		topBidQty: sumQuantity(ev.Bids, 5),
		topAskQty: sumQuantity(ev.Asks, 5),
	}
	st.buffer = append(st.buffer, snap)
	if len(st.buffer) > lookbackTicks {
		st.buffer = st.buffer[len(st.buffer)-lookbackTicks:]
	}

	avgSpreadBps := 0.0
	avgBidQty := decimal.Zero
	avgAskQty := decimal.Zero
	for _, sample := range st.buffer {
		avgSpreadBps += sample.spreadBps
		avgBidQty = avgBidQty.Add(sample.topBidQty)
		avgAskQty = avgAskQty.Add(sample.topAskQty)
	}
	n := decimal.NewFromInt(int64(len(st.buffer)))
	avgSpreadBps /= float64(len(st.buffer))
	avgBidQty = avgBidQty.Div(n)
	avgAskQty = avgAskQty.Div(n)

	spreadRatio := 0.0
	if avgSpreadBps > 0 {
		spreadRatio = spreadBps / avgSpreadBps
	}

	spreadVelocity := 0.0
	if hasPrev && prevSpreadBps > 0 {
		spreadVelocity = (spreadBps - prevSpreadBps) / prevSpreadBps
	}

	wasTight := !hasPrev || prevSpreadBps < spreadThresholdBps
	bidDepthReduced := avgBidQty.IsPositive() && snap.topBidQty.LessThan(avgBidQty.Mul(decimal.NewFromFloat(0.5)))
	askDepthReduced := avgAskQty.IsPositive() && snap.topAskQty.LessThan(avgAskQty.Mul(decimal.NewFromFloat(0.5)))
	depthReduced := bidDepthReduced || askDepthReduced

	// The widened regime is a property of the spread itself, not of whether
	// a widening signal actually fired: it begins the first time the ratio
	// crosses the threshold and ends when a narrowing signal consumes it.
	if spreadRatio > spreadRatioThreshold && !st.isWidened {
		st.isWidened = true
		st.widenedSince = now
	}

	var action signalmodel.InternalAction
	var confidence float64
	var depthReductionMagnitude float64

	switch {
	case wasTight && spreadRatio > spreadRatioThreshold && spreadVelocity > velocityThreshold && depthReduced:
		action = signalmodel.ActionOpenShort
		if avgBidQty.IsPositive() {
			reduction := decimal.NewFromInt(1).Sub(snap.topBidQty.Div(avgBidQty))
			f, _ := reduction.Float64()
			depthReductionMagnitude = f
		}
		confidence = utils.ClampFloat(baseConfidence+absFloat(spreadVelocity)*0.10+depthReductionMagnitude*0.15, 0, 0.95)

	case st.isWidened && spreadRatio > spreadRatioThreshold && spreadVelocity < -velocityThreshold &&
		now.Sub(st.widenedSince).Seconds() >= persistenceThresholdSeconds:
		action = signalmodel.ActionOpenLong
		persistence := now.Sub(st.widenedSince).Seconds()
		confidence = utils.ClampFloat(baseConfidence+(spreadRatio-spreadRatioThreshold)*0.05+minFloat(0.10, persistence/300*0.10), 0, 0.95)
		st.isWidened = false

	default:
		s.mu.Unlock()
		return nil, nil
	}

	if st.hasLastSignal && now.Sub(st.lastSignal).Seconds() < minSignalIntervalSeconds {
		s.mu.Unlock()
		return nil, nil
	}
	st.lastSignal = now
	st.hasLastSignal = true
	s.mu.Unlock()

	slPct := 0.005
	tpPct := 0.010

	return &signalmodel.InternalSignal{
		StrategyName:    s.Name(),
		Symbol:          ev.Symbol,
		Action:          action,
		ConfidenceScore: signalmodel.ConfidenceScore(confidence),
		HasScore:        true,
		Price:           mid,
		CurrentPrice:    mid,
		StopLossPct:     &slPct,
		TakeProfitPct:   &tpPct,
		Indicators: map[string]float64{
			"spread_bps":      spreadBps,
			"avg_spread_bps":  avgSpreadBps,
			"spread_ratio":    spreadRatio,
			"spread_velocity": spreadVelocity,
		},
	}, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
