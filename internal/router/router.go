// Package router is the Consumer's dispatch target: for every raw bus
// message it classifies the stream tag, parses the typed event, and fans
// it out to the strategies (and the depth analyzer) registered for that
// stream kind, in a fixed order. Dispatch is single-threaded and
// cooperative: one message is fully handled, strategy by strategy, before
// Router.Dispatch returns and the Consumer reads the next message off the
// bus.
package router

import (
	"context"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/breaker"
	"github.com/atlas-desktop/signal-engine/internal/config"
	"github.com/atlas-desktop/signal-engine/internal/depthanalyzer"
	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/metrics"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/internal/strategy"
	"go.uber.org/zap"
)

// Publisher is the outbound publish dependency the router needs; satisfied
// by *bus.Publisher in production and a fake in tests.
type Publisher interface {
	Publish(v interface{}) error
}

// Router owns the registered strategies plus everything a single dispatch
// needs to turn a signal into a published, metered, breaker-isolated
// outbound message.
type Router struct {
	depthStrategies  []strategy.DepthStrategy
	tradeStrategies  []strategy.TradeStrategy
	tickerStrategies []strategy.TickerStrategy

	analyzer  *depthanalyzer.Analyzer
	configMgr *config.Manager
	adapter   *signalmodel.Adapter
	publisher Publisher
	metrics   *metrics.Emitter
	logger    *zap.Logger

	breakers         map[string]*breaker.Breaker
	publisherBreaker *breaker.Breaker
}

// New builds a Router. Strategy slices are dispatched in the order given;
// the depth analyzer is driven separately, ahead of the depth strategy
// slice.
func New(
	depthStrategies []strategy.DepthStrategy,
	tradeStrategies []strategy.TradeStrategy,
	tickerStrategies []strategy.TickerStrategy,
	analyzer *depthanalyzer.Analyzer,
	configMgr *config.Manager,
	adapter *signalmodel.Adapter,
	publisher Publisher,
	emitter *metrics.Emitter,
	logger *zap.Logger,
) *Router {
	r := &Router{
		depthStrategies:  depthStrategies,
		tradeStrategies:  tradeStrategies,
		tickerStrategies: tickerStrategies,
		analyzer:         analyzer,
		configMgr:        configMgr,
		adapter:          adapter,
		publisher:        publisher,
		metrics:          emitter,
		logger:           logger.Named("router"),
		breakers:         make(map[string]*breaker.Breaker),
	}

	for _, s := range depthStrategies {
		r.breakers[s.Name()] = breaker.New(breaker.DefaultConfig(s.Name()), nil)
	}
	for _, s := range tradeStrategies {
		r.breakers[s.Name()] = breaker.New(breaker.DefaultConfig(s.Name()), nil)
	}
	for _, s := range tickerStrategies {
		r.breakers[s.Name()] = breaker.New(breaker.DefaultConfig(s.Name()), nil)
	}
	r.publisherBreaker = breaker.New(breaker.DefaultConfig("publisher"), nil)

	return r
}

// Dispatch implements bus.Handler. It never panics past its own boundary
// (the Consumer additionally recovers at the dispatch boundary as a last
// resort) and never blocks past a single event's worth of strategy work.
func (r *Router) Dispatch(subject string, data []byte) {
	r.metrics.MessagesProcessed.Inc()
	r.metrics.LastMessageTime.Set(float64(time.Now().Unix()))

	stream, payload := eventmodel.Unwrap(subject, data)

	switch eventmodel.ClassifyStream(stream) {
	case eventmodel.StreamDepth:
		r.dispatchDepth(stream, payload)
	case eventmodel.StreamTrade:
		r.dispatchTrade(stream, payload)
	case eventmodel.StreamTicker:
		r.dispatchTicker(stream, payload)
	default:
		r.metrics.UnknownStreamCount.Inc()
	}
}

func (r *Router) dispatchDepth(subject string, data []byte) {
	ev, err := eventmodel.ParseDepth(subject, data)
	if err != nil {
		r.metrics.ParseErrors.Inc()
		r.logger.Debug("dropping malformed depth event", zap.String("subject", subject), zap.Error(err))
		return
	}

	// depth-analyzer runs first and unconditionally, ahead of the depth
	// strategies.
	r.runAnalyzer(ev)

	for _, s := range r.depthStrategies {
		r.runDepthStrategy(s, ev)
	}
}

func (r *Router) dispatchTrade(subject string, data []byte) {
	ev, err := eventmodel.ParseTrade(subject, data)
	if err != nil {
		r.metrics.ParseErrors.Inc()
		r.logger.Debug("dropping malformed trade event", zap.String("subject", subject), zap.Error(err))
		return
	}
	for _, s := range r.tradeStrategies {
		r.runTradeStrategy(s, ev)
	}
}

func (r *Router) dispatchTicker(subject string, data []byte) {
	ev, err := eventmodel.ParseTicker(subject, data)
	if err != nil {
		r.metrics.ParseErrors.Inc()
		r.logger.Debug("dropping malformed ticker event", zap.String("subject", subject), zap.Error(err))
		return
	}
	for _, s := range r.tickerStrategies {
		r.runTickerStrategy(s, ev)
	}
}

func (r *Router) runAnalyzer(ev *eventmodel.DepthSnapshot) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("depth analyzer panicked, metrics stale until next good event",
				zap.Any("panic", rec), zap.String("symbol", ev.Symbol))
			r.metrics.RecordStrategyResult("depth_analyzer", "error")
		}
	}()
	r.analyzer.OnDepth(ev)
	r.metrics.ObserveStrategyLatency("depth_analyzer", time.Since(start))
	r.metrics.RecordStrategyResult("depth_analyzer", "ok")
}

func (r *Router) runDepthStrategy(s strategy.DepthStrategy, ev *eventmodel.DepthSnapshot) {
	params := r.resolve(s.Name(), ev.Symbol)
	r.run(s.Name(), func() (*signalmodel.InternalSignal, error) {
		return s.OnDepth(strategy.Parameters(params.Parameters), ev)
	}, params)
}

func (r *Router) runTradeStrategy(s strategy.TradeStrategy, ev *eventmodel.Trade) {
	params := r.resolve(s.Name(), ev.Symbol)
	r.run(s.Name(), func() (*signalmodel.InternalSignal, error) {
		return s.OnTrade(strategy.Parameters(params.Parameters), ev)
	}, params)
}

func (r *Router) runTickerStrategy(s strategy.TickerStrategy, ev *eventmodel.TickerUpdate) {
	params := r.resolve(s.Name(), ev.Symbol)
	r.run(s.Name(), func() (*signalmodel.InternalSignal, error) {
		return s.OnTicker(strategy.Parameters(params.Parameters), ev)
	}, params)
}

// resolve captures the strategy's parameters once at the start of
// dispatch: mid-dispatch reconfiguration is never observed because the
// snapshot is read exactly once here.
func (r *Router) resolve(strategyName, symbol string) config.Resolved {
	return r.configMgr.Get(context.Background(), strategyName, symbol)
}

// run executes one strategy through its breaker, records latency and
// result metrics, and publishes any signal the strategy produced. If the
// strategy's breaker is open, the strategy is skipped and dispatch
// continues with the next one.
func (r *Router) run(name string, fn func() (*signalmodel.InternalSignal, error), params config.Resolved) {
	br := r.breakers[name]
	start := time.Now()

	var signal *signalmodel.InternalSignal
	err := br.Execute(func() error {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("strategy panicked, skipping this event", zap.String("strategy", name), zap.Any("panic", rec))
			}
		}()
		s, execErr := fn()
		signal = s
		return execErr
	})

	r.metrics.ObserveStrategyLatency(name, time.Since(start))
	r.metrics.SetBreakerState(name, br.State())

	if err != nil {
		if err == breaker.ErrOpen {
			r.logger.Debug("breaker open, strategy skipped", zap.String("strategy", name))
		} else {
			r.logger.Warn("strategy execution failed", zap.String("strategy", name), zap.Error(err))
		}
		r.metrics.RecordStrategyResult(name, "error")
		return
	}
	r.metrics.RecordStrategyResult(name, "ok")

	if signal == nil {
		return
	}

	signal.StrategyName = name
	signal.Config = signalmodel.ConfigProvenance{
		Source:     string(params.Source),
		Version:    params.Version,
		IsOverride: params.IsOverride,
	}

	r.publish(name, signal)
}

// publish adapts the internal signal to the wire contract and publishes it
// through the publisher's own breaker, fire-and-forget from the
// strategy's viewpoint.
func (r *Router) publish(strategyName string, signal *signalmodel.InternalSignal) {
	wire, err := r.adapter.Adapt(signal)
	if err != nil {
		r.logger.Error("signal adaptation failed", zap.String("strategy", strategyName), zap.Error(err))
		return
	}

	err = r.publisherBreaker.Execute(func() error {
		return r.publisher.Publish(wire)
	})
	r.metrics.SetBreakerState("publisher", r.publisherBreaker.State())
	if err != nil {
		r.metrics.PublishErrors.Inc()
		r.logger.Error("publish failed", zap.String("strategy", strategyName), zap.Error(err))
		return
	}

	r.metrics.RecordSignal(strategyName, wire.Action)
}
