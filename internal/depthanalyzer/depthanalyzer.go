// Package depthanalyzer computes per-symbol order-book microstructure
// metrics on every depth event and keeps a rolling pressure history for
// trend queries.
package depthanalyzer

import (
	"sync"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/pkg/types"
	"github.com/shopspring/decimal"
)

const (
	maxPressureSamples = 900
	defaultTTL         = 5 * time.Minute
)

// Metrics is the current snapshot of computed microstructure metrics for
// one symbol.
type Metrics struct {
	Symbol         string               `json:"symbol"`
	ImbalanceRatio float64              `json:"imbalance_ratio"`
	BidVolume      decimal.Decimal      `json:"bid_volume"`
	AskVolume      decimal.Decimal      `json:"ask_volume"`
	BuyPressure    float64              `json:"buy_pressure"`
	SellPressure   float64              `json:"sell_pressure"`
	NetPressure    float64              `json:"net_pressure"`
	DepthTop5Bid   decimal.Decimal      `json:"depth_top5_bid"`
	DepthTop5Ask   decimal.Decimal      `json:"depth_top5_ask"`
	DepthTop10Bid  decimal.Decimal      `json:"depth_top10_bid"`
	DepthTop10Ask  decimal.Decimal      `json:"depth_top10_ask"`
	BestBid        decimal.Decimal      `json:"best_bid"`
	BestAsk        decimal.Decimal      `json:"best_ask"`
	Spread         decimal.Decimal      `json:"spread"`
	SpreadBps      float64              `json:"spread_bps"`
	Mid            decimal.Decimal      `json:"mid"`
	VWAPBid        decimal.Decimal      `json:"vwap_bid"`
	VWAPAsk        decimal.Decimal      `json:"vwap_ask"`
	StrongestBid   types.OrderBookLevel `json:"strongest_bid"`
	StrongestAsk   types.OrderBookLevel `json:"strongest_ask"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// PressureSample is one (timestamp, net-pressure) observation kept in the
// rolling pressure ring.
type PressureSample struct {
	Timestamp   time.Time `json:"timestamp"`
	NetPressure float64   `json:"net_pressure"`
}

// Summary aggregates the analyzer's state across all tracked symbols.
type Summary struct {
	TrackedSymbols int       `json:"tracked_symbols"`
	OldestUpdate   time.Time `json:"oldest_update"`
	NewestUpdate   time.Time `json:"newest_update"`
}

// Trend is the classification of recent pressure history.
type Trend struct {
	Direction string  `json:"direction"` // "bullish", "bearish", "neutral"
	Strength  float64 `json:"strength"`
}

type symbolState struct {
	metrics  Metrics
	pressure []PressureSample // ring, oldest first, bounded to maxPressureSamples
}

// Analyzer is the depth-metrics sidecar. It keeps all state process-local,
// guarded by a single mutex; reads and writes both take the lock because
// metrics are mutated in place per symbol, not replaced wholesale.
type Analyzer struct {
	mu    sync.RWMutex
	byKey map[string]*symbolState
	ttl   time.Duration
	now   func() time.Time
}

// NewAnalyzer creates a depth analyzer with the default 5-minute symbol TTL.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		byKey: make(map[string]*symbolState),
		ttl:   defaultTTL,
		now:   time.Now,
	}
}

// SetClock overrides the analyzer's clock. Exported for tests.
func SetClock(a *Analyzer, now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// OnDepth computes metrics for one depth event and appends to the pressure
// ring. It never returns an error: malformed input (empty book) is simply
// skipped, matching the Consumer's own zero-levels rejection at intake.
func (a *Analyzer) OnDepth(ev *eventmodel.DepthSnapshot) {
	bestBid := ev.BestBid()
	bestAsk := ev.BestAsk()
	if bestBid.Price.IsZero() || bestAsk.Price.IsZero() {
		return
	}

	bidVolume := sumAll(ev.Bids)
	askVolume := sumAll(ev.Asks)
	total := bidVolume.Add(askVolume)

	var imbalance float64
	if !total.IsZero() {
		imb := bidVolume.Sub(askVolume).Div(total)
		imbalance, _ = imb.Float64()
	}

	var buyPressure, sellPressure float64
	if !total.IsZero() {
		bp := bidVolume.Div(total).Mul(decimal.NewFromInt(100))
		sp := askVolume.Div(total).Mul(decimal.NewFromInt(100))
		buyPressure, _ = bp.Float64()
		sellPressure, _ = sp.Float64()
	}
	netPressure := buyPressure - sellPressure

	mid := ev.Mid()
	spread := bestAsk.Price.Sub(bestBid.Price)
	var spreadBps float64
	if !mid.IsZero() {
		sb := spread.Div(mid).Mul(decimal.NewFromInt(10000))
		spreadBps, _ = sb.Float64()
	}

	now := a.now()

	metrics := Metrics{
		Symbol:         ev.Symbol,
		ImbalanceRatio: imbalance,
		BidVolume:      bidVolume,
		AskVolume:      askVolume,
		BuyPressure:    buyPressure,
		SellPressure:   sellPressure,
		NetPressure:    netPressure,
		DepthTop5Bid:   sumQuantityN(ev.Bids, 5),
		DepthTop5Ask:   sumQuantityN(ev.Asks, 5),
		DepthTop10Bid:  sumQuantityN(ev.Bids, 10),
		DepthTop10Ask:  sumQuantityN(ev.Asks, 10),
		BestBid:        bestBid.Price,
		BestAsk:        bestAsk.Price,
		Spread:         spread,
		SpreadBps:      spreadBps,
		Mid:            mid,
		VWAPBid:        vwap(ev.Bids),
		VWAPAsk:        vwap(ev.Asks),
		StrongestBid:   strongestLevel(ev.Bids),
		StrongestAsk:   strongestLevel(ev.Asks),
		UpdatedAt:      now,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.byKey[ev.Symbol]
	if !ok {
		st = &symbolState{}
		a.byKey[ev.Symbol] = st
	}
	st.metrics = metrics
	st.pressure = append(st.pressure, PressureSample{Timestamp: now, NetPressure: netPressure})
	if len(st.pressure) > maxPressureSamples {
		st.pressure = st.pressure[len(st.pressure)-maxPressureSamples:]
	}
}

// Current returns the latest metrics for a symbol, or false if unseen/expired.
func (a *Analyzer) Current(symbol string) (Metrics, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.byKey[symbol]
	if !ok {
		return Metrics{}, false
	}
	if a.now().Sub(st.metrics.UpdatedAt) > a.ttl {
		return Metrics{}, false
	}
	return st.metrics, true
}

// PressureHistory returns the pressure samples within the given lookback
// window for a symbol.
func (a *Analyzer) PressureHistory(symbol string, window types.PressureWindow) ([]PressureSample, bool) {
	seconds, ok := window.Duration()
	if !ok {
		return nil, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, exists := a.byKey[symbol]
	if !exists {
		return nil, false
	}
	cutoff := a.now().Add(-time.Duration(seconds) * time.Second)
	var out []PressureSample
	for _, sample := range st.pressure {
		if sample.Timestamp.After(cutoff) {
			out = append(out, sample)
		}
	}
	return out, true
}

// All returns a copy of every tracked symbol's current metrics.
func (a *Analyzer) All() map[string]Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Metrics, len(a.byKey))
	for symbol, st := range a.byKey {
		out[symbol] = st.metrics
	}
	return out
}

// Summary reports aggregate analyzer state.
func (a *Analyzer) Summary() Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	summary := Summary{TrackedSymbols: len(a.byKey)}
	for _, st := range a.byKey {
		if summary.OldestUpdate.IsZero() || st.metrics.UpdatedAt.Before(summary.OldestUpdate) {
			summary.OldestUpdate = st.metrics.UpdatedAt
		}
		if st.metrics.UpdatedAt.After(summary.NewestUpdate) {
			summary.NewestUpdate = st.metrics.UpdatedAt
		}
	}
	return summary
}

// Trend classifies the last 10 pressure samples for a symbol.
func (a *Analyzer) Trend(symbol string) (Trend, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.byKey[symbol]
	if !ok || len(st.pressure) == 0 {
		return Trend{}, false
	}
	n := len(st.pressure)
	start := 0
	if n > 10 {
		start = n - 10
	}
	window := st.pressure[start:]
	sum := 0.0
	for _, sample := range window {
		sum += sample.NetPressure
	}
	mean := sum / float64(len(window))

	var direction string
	switch {
	case mean > 20:
		direction = "bullish"
	case mean < -20:
		direction = "bearish"
	default:
		direction = "neutral"
	}
	strength := absF(mean) / 50
	if strength > 1 {
		strength = 1
	}
	return Trend{Direction: direction, Strength: strength}, true
}

// Sweep evicts symbols whose last update is older than the TTL. Intended to
// be invoked by a periodic timer task.
func (a *Analyzer) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	cutoff := a.now().Add(-a.ttl)
	evicted := 0
	for symbol, st := range a.byKey {
		if st.metrics.UpdatedAt.Before(cutoff) {
			delete(a.byKey, symbol)
			evicted++
		}
	}
	return evicted
}

func sumAll(levels []types.OrderBookLevel) decimal.Decimal {
	sum := decimal.Zero
	for _, level := range levels {
		sum = sum.Add(level.Quantity)
	}
	return sum
}

func sumQuantityN(levels []types.OrderBookLevel, n int) decimal.Decimal {
	sum := decimal.Zero
	for i, level := range levels {
		if i >= n {
			break
		}
		sum = sum.Add(level.Quantity)
	}
	return sum
}

func vwap(levels []types.OrderBookLevel) decimal.Decimal {
	notional := decimal.Zero
	qty := decimal.Zero
	for _, level := range levels {
		notional = notional.Add(level.Price.Mul(level.Quantity))
		qty = qty.Add(level.Quantity)
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return notional.Div(qty)
}

func strongestLevel(levels []types.OrderBookLevel) types.OrderBookLevel {
	var strongest types.OrderBookLevel
	for _, level := range levels {
		if level.Quantity.GreaterThan(strongest.Quantity) {
			strongest = level
		}
	}
	return strongest
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
