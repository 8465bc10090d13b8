package strategy

import (
	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/pkg/types"
	"github.com/atlas-desktop/signal-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// OrderBookSkewStrategy trades the imbalance between top-of-book bid and
// ask depth. It holds no per-event state: every depth snapshot is judged on
// its own.
type OrderBookSkewStrategy struct{}

// NewOrderBookSkewStrategy creates the order-book-skew strategy.
func NewOrderBookSkewStrategy() *OrderBookSkewStrategy {
	return &OrderBookSkewStrategy{}
}

func (s *OrderBookSkewStrategy) Name() string { return "orderbook_skew" }

// OnDepth sums the top-k quantities per side, guards on spread width, and
// signals when the bid/ask ratio crosses a threshold.
func (s *OrderBookSkewStrategy) OnDepth(params Parameters, ev *eventmodel.DepthSnapshot) (*signalmodel.InternalSignal, error) {
	topLevels := params.Int("top_levels", 5)
	buyThreshold := params.Float("buy_threshold", 1.2)
	sellThreshold := params.Float("sell_threshold", 0.8)
	minSpreadPercent := params.Float("min_spread_percent", 0.1)
	baseConfidence := params.Float("base_confidence", 0.70)

	bidSum := sumQuantity(ev.Bids, topLevels)
	askSum := sumQuantity(ev.Asks, topLevels)
	if askSum.IsZero() {
		return nil, nil
	}

	bestBid := ev.BestBid().Price
	bestAsk := ev.BestAsk().Price
	if bestBid.IsZero() {
		return nil, nil
	}

	spreadPercent := bestAsk.Sub(bestBid).Div(bestBid).Mul(decimal.NewFromInt(100))
	if spreadPercent.GreaterThan(decimal.NewFromFloat(minSpreadPercent)) {
		return nil, nil
	}

	ratio := bidSum.Div(askSum)
	ratioF, _ := ratio.Float64()

	var action signalmodel.InternalAction
	var price decimal.Decimal
	var thresholdDist float64

	switch {
	case ratioF > buyThreshold:
		action = signalmodel.ActionOpenLong
		price = bestBid
		thresholdDist = ratioF - buyThreshold
	case ratioF < sellThreshold:
		action = signalmodel.ActionOpenShort
		price = bestAsk
		thresholdDist = sellThreshold - ratioF
	default:
		return nil, nil
	}

	confidence := utils.ClampFloat(baseConfidence+thresholdDist*0.5, 0, 0.95)

	bidVolF, _ := bidSum.Float64()
	askVolF, _ := askSum.Float64()
	spreadPctF, _ := spreadPercent.Float64()

	return &signalmodel.InternalSignal{
		StrategyName:    s.Name(),
		Symbol:          ev.Symbol,
		Action:          action,
		ConfidenceScore: signalmodel.ConfidenceScore(confidence),
		HasScore:        true,
		Price:           price,
		CurrentPrice:    ev.Mid(),
		Indicators: map[string]float64{
			"bid_volume":     bidVolF,
			"ask_volume":     askVolF,
			"ratio":          ratioF,
			"spread_percent": spreadPctF,
		},
	}, nil
}

func sumQuantity(levels []types.OrderBookLevel, n int) decimal.Decimal {
	sum := decimal.Zero
	for i, level := range levels {
		if i >= n {
			break
		}
		sum = sum.Add(level.Quantity)
	}
	return sum
}
