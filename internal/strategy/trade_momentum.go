package strategy

import (
	"sync"

	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// tradeMomentumState is the tiny per-symbol trailing cache trade-momentum
// keeps to fill in previous-price and average-quantity, so the upstream
// feed does not have to carry either field.
type tradeMomentumState struct {
	lastPrice decimal.Decimal
	avgQty    decimal.Decimal
	seen      bool
}

// TradeMomentumStrategy scores trades on price momentum, size, and
// aggressor side. It keeps no history beyond the last price and a running
// average quantity per symbol.
type TradeMomentumStrategy struct {
	mu    sync.Mutex
	state map[string]*tradeMomentumState
}

// NewTradeMomentumStrategy creates the trade-momentum strategy.
func NewTradeMomentumStrategy() *TradeMomentumStrategy {
	return &TradeMomentumStrategy{
		state: make(map[string]*tradeMomentumState),
	}
}

func (s *TradeMomentumStrategy) Name() string { return "trade_momentum" }

// OnTrade scores one trade as 0.4·price-momentum + 0.3·quantity-score +
// 0.3·maker-score and signals past the configured thresholds.
func (s *TradeMomentumStrategy) OnTrade(params Parameters, ev *eventmodel.Trade) (*signalmodel.InternalSignal, error) {
	buyThreshold := params.Float("buy_threshold", 0.5)
	sellThreshold := params.Float("sell_threshold", -0.5)

	s.mu.Lock()
	st, ok := s.state[ev.Symbol]
	if !ok {
		st = &tradeMomentumState{avgQty: ev.Quantity}
		s.state[ev.Symbol] = st
	}
	prevPrice := st.lastPrice
	avgQty := st.avgQty
	hadPrev := st.seen

	// Update trailing cache for next event: exponential running average of
	// quantity (alpha = 0.1), last observed price.
	alpha := decimal.NewFromFloat(0.1)
	st.avgQty = st.avgQty.Mul(decimal.NewFromInt(1).Sub(alpha)).Add(ev.Quantity.Mul(alpha))
	st.lastPrice = ev.Price
	st.seen = true
	s.mu.Unlock()

	priceMomentum := 0.0
	if hadPrev && !prevPrice.IsZero() {
		pm := ev.Price.Sub(prevPrice).Div(prevPrice)
		priceMomentum, _ = pm.Float64()
	}

	quantityScore := 1.0
	if !avgQty.IsZero() {
		qs := ev.Quantity.Div(avgQty)
		qsF, _ := qs.Float64()
		quantityScore = utils.ClampFloat(qsF, 0, 1)
	}

	makerScore := 1.0
	if ev.IsBuyerMaker {
		makerScore = -1.0
	}

	momentum := 0.4*priceMomentum + 0.3*quantityScore + 0.3*makerScore

	var action signalmodel.InternalAction
	switch {
	case momentum > buyThreshold:
		action = signalmodel.ActionOpenLong
	case momentum < sellThreshold:
		action = signalmodel.ActionOpenShort
	default:
		return nil, nil
	}

	confidence := utils.ClampFloat(0.65+absFloat(momentum)*0.2, 0, 0.95)

	return &signalmodel.InternalSignal{
		StrategyName:    s.Name(),
		Symbol:          ev.Symbol,
		Action:          action,
		ConfidenceScore: signalmodel.ConfidenceScore(confidence),
		HasScore:        true,
		Price:           ev.Price,
		CurrentPrice:    ev.Price,
		Indicators: map[string]float64{
			"price_momentum": priceMomentum,
			"quantity_score": quantityScore,
			"maker_score":    makerScore,
			"momentum":       momentum,
		},
	}, nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
