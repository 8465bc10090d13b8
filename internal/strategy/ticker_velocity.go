package strategy

import (
	"sync"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// tickerSample is one (timestamp, price) pair in a symbol's velocity window.
type tickerSample struct {
	ts    time.Time
	price decimal.Decimal
}

// TickerVelocityStrategy tracks recent price history per symbol in a
// sliding time window and scores the rate of change. It is bounded state:
// each symbol's window is pruned by age, never by count.
type TickerVelocityStrategy struct {
	mu      sync.Mutex
	history map[string][]tickerSample
	now     func() time.Time
}

// NewTickerVelocityStrategy creates the ticker-velocity strategy.
func NewTickerVelocityStrategy() *TickerVelocityStrategy {
	return &TickerVelocityStrategy{
		history: make(map[string][]tickerSample),
		now:     time.Now,
	}
}

func (s *TickerVelocityStrategy) Name() string { return "ticker_velocity" }

// SetTickerVelocityClock overrides the strategy's clock. Exported for tests
// that need deterministic timestamps; production callers never need it.
func SetTickerVelocityClock(s *TickerVelocityStrategy, now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnTicker appends the tick to the symbol's window, prunes by age, and
// scores price velocity in percent per minute.
func (s *TickerVelocityStrategy) OnTicker(params Parameters, ev *eventmodel.TickerUpdate) (*signalmodel.InternalSignal, error) {
	timeWindow := time.Duration(params.Float("time_window", 60)) * time.Second
	buyThreshold := params.Float("buy_threshold", 0.5)
	sellThreshold := params.Float("sell_threshold", -0.5)

	now := s.now()

	s.mu.Lock()
	samples := append(s.history[ev.Symbol], tickerSample{ts: now, price: ev.LastPrice})
	cutoff := now.Add(-timeWindow)
	pruned := samples[:0]
	for _, sample := range samples {
		if !sample.ts.Before(cutoff) {
			pruned = append(pruned, sample)
		}
	}
	s.history[ev.Symbol] = pruned
	window := make([]tickerSample, len(pruned))
	copy(window, pruned)
	s.mu.Unlock()

	if len(window) < 2 {
		return nil, nil
	}

	oldest := window[0]
	elapsedMinutes := now.Sub(oldest.ts).Minutes()
	if elapsedMinutes <= 0 || oldest.price.IsZero() {
		return nil, nil
	}

	changePercent := ev.LastPrice.Sub(oldest.price).Div(oldest.price).Mul(decimal.NewFromInt(100))
	changePercentF, _ := changePercent.Float64()
	velocity := changePercentF / elapsedMinutes

	var action signalmodel.InternalAction
	switch {
	case velocity > buyThreshold:
		action = signalmodel.ActionOpenLong
	case velocity < sellThreshold:
		action = signalmodel.ActionOpenShort
	default:
		return nil, nil
	}

	confidence := utils.ClampFloat(0.6+absFloat(velocity)/10, 0, 0.95)

	return &signalmodel.InternalSignal{
		StrategyName:    s.Name(),
		Symbol:          ev.Symbol,
		Action:          action,
		ConfidenceScore: signalmodel.ConfidenceScore(confidence),
		HasScore:        true,
		Price:           ev.LastPrice,
		CurrentPrice:    ev.LastPrice,
		Indicators: map[string]float64{
			"elapsed_minutes": elapsedMinutes,
			"change_percent":  changePercentF,
			"velocity":        velocity,
		},
	}, nil
}
