package strategy

import (
	"sync"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// icebergSample is one (timestamp, quantity) observation of a price level.
type icebergSample struct {
	ts  time.Time
	qty decimal.Decimal
}

// icebergLevelState is the sliding history kept for a single tracked price
// level, plus the bookkeeping needed to detect a refill pattern.
type icebergLevelState struct {
	side      string // "bid" or "ask"
	samples   []icebergSample
	firstSeen time.Time
	refills   int
}

// icebergSymbolState is the bounded per-symbol state: a map from price
// level key to level history, plus the last-signal time for rate limiting.
type icebergSymbolState struct {
	levels        map[string]*icebergLevelState
	lastSeen      time.Time
	lastSignal    time.Time
	hasLastSignal bool
}

// icebergCandidate is the strongest pattern match found across the tracked
// levels for one depth event.
type icebergCandidate struct {
	price      decimal.Decimal
	pattern    string
	confidence float64
	side       string
}

// IcebergDetectorStrategy watches individual order-book price levels for
// refill, consistent-size, and anchoring patterns that suggest a hidden
// (iceberg) order.
type IcebergDetectorStrategy struct {
	mu    sync.Mutex
	bySym map[string]*icebergSymbolState
	order []string // insertion order of symbols, for max-symbols eviction
	now   func() time.Time
}

// NewIcebergDetectorStrategy creates the iceberg-detector strategy.
func NewIcebergDetectorStrategy() *IcebergDetectorStrategy {
	return &IcebergDetectorStrategy{
		bySym: make(map[string]*icebergSymbolState),
		now:   time.Now,
	}
}

func (s *IcebergDetectorStrategy) Name() string { return "iceberg_detector" }

// SetIcebergDetectorClock overrides the strategy's clock for tests.
func SetIcebergDetectorClock(s *IcebergDetectorStrategy, now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnDepth samples every tracked price level from the current top-N and
// checks each for refill, consistent-size, and anchoring patterns.
func (s *IcebergDetectorStrategy) OnDepth(params Parameters, ev *eventmodel.DepthSnapshot) (*signalmodel.InternalSignal, error) {
	topN := params.Int("top_levels", 10)
	maxSymbols := params.Int("max_symbols", 100)
	historyWindowSeconds := params.Float("history_window_seconds", 300)
	refillSpeedThresholdSeconds := params.Float("refill_speed_threshold_seconds", 5)
	minRefillCount := params.Int("min_refill_count", 3)
	consistencyThreshold := params.Float("consistency_threshold", 0.15)
	persistenceThresholdSeconds := params.Float("persistence_threshold_seconds", 120)
	levelProximityPct := params.Float("level_proximity_pct", 1)
	minSignalIntervalSeconds := params.Float("min_signal_interval_seconds", 30)
	baseConfidence := params.Float("base_confidence", 0.70)

	mid := ev.Mid()
	if mid.IsZero() {
		return nil, nil
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sym, ok := s.bySym[ev.Symbol]
	if !ok {
		if len(s.order) >= maxSymbols {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.bySym, oldest)
		}
		sym = &icebergSymbolState{levels: make(map[string]*icebergLevelState)}
		s.bySym[ev.Symbol] = sym
		s.order = append(s.order, ev.Symbol)
	}
	sym.lastSeen = now

	var best *icebergCandidate
	consider := func(c icebergCandidate) {
		if best == nil || c.confidence > best.confidence {
			cc := c
			best = &cc
		}
	}

	observe := func(side string, price decimal.Decimal, qty decimal.Decimal) {
		key := side + ":" + price.String()
		st, exists := sym.levels[key]
		if !exists {
			st = &icebergLevelState{side: side, firstSeen: now}
			sym.levels[key] = st
		}
		st.samples = append(st.samples, icebergSample{ts: now, qty: qty})
		cutoff := now.Add(-time.Duration(historyWindowSeconds * float64(time.Second)))
		pruned := st.samples[:0]
		for _, sample := range st.samples {
			if sample.ts.After(cutoff) {
				pruned = append(pruned, sample)
			}
		}
		st.samples = pruned

		if len(st.samples) >= 3 {
			n := len(st.samples)
			v0, v1, v2 := st.samples[n-3], st.samples[n-2], st.samples[n-1]
			if v1.qty.LessThan(v0.qty.Mul(decimal.NewFromFloat(0.5))) &&
				v2.qty.GreaterThan(v0.qty.Mul(decimal.NewFromFloat(0.8))) &&
				v2.ts.Sub(v0.ts).Seconds() < refillSpeedThresholdSeconds {
				st.refills++
			}
		}

		if st.refills >= minRefillCount {
			confidence := utils.ClampFloat(0.65+float64(st.refills-3)*0.05, 0, 0.85)
			consider(icebergCandidate{price: price, pattern: "refill", confidence: confidence, side: side})
		}

		if len(st.samples) >= minRefillCount {
			qtys := make([]decimal.Decimal, len(st.samples))
			for i, sample := range st.samples {
				qtys[i] = sample.qty
			}
			mean := utils.CalculateMean(qtys)
			std := utils.CalculateStdDev(qtys)
			if !mean.IsZero() {
				cv, _ := std.Div(mean).Float64()
				if cv < consistencyThreshold {
					confidence := utils.ClampFloat(baseConfidence*(1-cv), 0, 0.95)
					consider(icebergCandidate{price: price, pattern: "consistent_size", confidence: confidence, side: side})
				}
			}
		}

		persistence := now.Sub(st.firstSeen).Seconds()
		if persistence >= persistenceThresholdSeconds {
			confidence := utils.ClampFloat(0.75+persistence/600*0.10, 0, 0.85)
			consider(icebergCandidate{price: price, pattern: "anchor", confidence: confidence, side: side})
		}
	}

	for i, lvl := range ev.Bids {
		if i >= topN {
			break
		}
		observe("bid", lvl.Price, lvl.Quantity)
	}
	for i, lvl := range ev.Asks {
		if i >= topN {
			break
		}
		observe("ask", lvl.Price, lvl.Quantity)
	}

	if best == nil {
		return nil, nil
	}

	if sym.hasLastSignal && now.Sub(sym.lastSignal).Seconds() < minSignalIntervalSeconds {
		return nil, nil
	}

	proximity := best.price.Sub(mid).Abs().Div(mid).Mul(decimal.NewFromInt(100))
	proximityF, _ := proximity.Float64()
	if proximityF > levelProximityPct {
		return nil, nil
	}

	var action signalmodel.InternalAction
	switch best.side {
	case "bid":
		action = signalmodel.ActionOpenLong
	case "ask":
		action = signalmodel.ActionOpenShort
	default:
		return nil, nil
	}

	sym.lastSignal = now
	sym.hasLastSignal = true

	diff := mid.Sub(best.price).Abs()
	atr := utils.MaxDecimal(diff, mid.Mul(decimal.NewFromFloat(0.005)))

	var sl, tp decimal.Decimal
	if action == signalmodel.ActionOpenLong {
		sl = best.price.Sub(atr)
		tp = mid.Add(atr.Mul(decimal.NewFromFloat(2.5)))
	} else {
		sl = best.price.Add(atr)
		tp = mid.Sub(atr.Mul(decimal.NewFromFloat(2.5)))
	}
	slPct, _ := sl.Sub(mid).Abs().Div(mid).Float64()
	tpPct, _ := tp.Sub(mid).Abs().Div(mid).Float64()

	return &signalmodel.InternalSignal{
		StrategyName:    s.Name(),
		Symbol:          ev.Symbol,
		Action:          action,
		ConfidenceScore: signalmodel.ConfidenceScore(best.confidence),
		HasScore:        true,
		Price:           best.price,
		CurrentPrice:    mid,
		StopLoss:        &sl,
		TakeProfit:      &tp,
		StopLossPct:     &slPct,
		TakeProfitPct:   &tpPct,
		Indicators: map[string]float64{
			"proximity_pct": proximityF,
		},
		Metadata: map[string]interface{}{
			"pattern": best.pattern,
			"level":   best.price.String(),
		},
	}, nil
}
