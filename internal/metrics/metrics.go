// Package metrics is the Prometheus-backed MetricsEmitter: per-event
// counters and histograms plus a periodic heartbeat of aggregated stats.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

// Emitter owns every metric this engine exports, registered against its own
// registry so a caller can mount it under any HTTP path.
type Emitter struct {
	Registry *prometheus.Registry

	MessagesProcessed  prometheus.Counter
	ParseErrors        prometheus.Counter
	UnknownStreamCount prometheus.Counter
	StrategyExecutions *prometheus.CounterVec
	StrategyLatency    *prometheus.HistogramVec
	SignalsEmitted     *prometheus.CounterVec
	PublishErrors      prometheus.Counter
	BreakerState       *prometheus.GaugeVec
	LastMessageTime    prometheus.Gauge

	logger    *zap.Logger
	startedAt time.Time
}

// NewEmitter builds and registers every metric.
func NewEmitter(logger *zap.Logger) *Emitter {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Emitter{
		Registry: registry,
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_messages_processed_total",
			Help: "Total bus messages dispatched by the consumer.",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_parse_errors_total",
			Help: "Total events dropped for failing to parse.",
		}),
		UnknownStreamCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_unknown_stream_total",
			Help: "Total events dropped for an unrecognized stream kind.",
		}),
		StrategyExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_strategy_executions_total",
			Help: "Strategy dispatches by strategy and result.",
		}, []string{"strategy", "result"}),
		StrategyLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signal_engine_strategy_latency_seconds",
			Help:    "Per-strategy dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
		SignalsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_signals_emitted_total",
			Help: "Signals published by strategy and action.",
		}, []string{"strategy", "action"}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_publish_errors_total",
			Help: "Signals dropped after exhausting publish retries.",
		}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signal_engine_breaker_state",
			Help: "Circuit breaker state by name: 0=closed, 1=half-open, 2=open.",
		}, []string{"name"}),
		LastMessageTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signal_engine_last_message_timestamp_seconds",
			Help: "Unix timestamp of the last processed bus message.",
		}),
		logger:    logger.Named("metrics"),
		startedAt: time.Now(),
	}
}

// RecordStrategyResult increments the execution counter for a strategy.
func (e *Emitter) RecordStrategyResult(strategy, result string) {
	e.StrategyExecutions.WithLabelValues(strategy, result).Inc()
}

// RecordSignal increments the per-strategy, per-action signal counter.
func (e *Emitter) RecordSignal(strategy, action string) {
	e.SignalsEmitted.WithLabelValues(strategy, action).Inc()
}

// ObserveStrategyLatency records one dispatch duration.
func (e *Emitter) ObserveStrategyLatency(strategy string, d time.Duration) {
	e.StrategyLatency.WithLabelValues(strategy).Observe(d.Seconds())
}

// SetBreakerState reports a breaker's current numeric state.
func (e *Emitter) SetBreakerState(name string, state float64) {
	e.BreakerState.WithLabelValues(name).Set(state)
}

// Heartbeat is one periodic aggregated-stats snapshot.
type Heartbeat struct {
	UptimeSeconds float64
	MessagesTotal float64
	PublishErrors float64
}

// snapshot reads the current scalar counters back out of the registry for
// the heartbeat log line. The per-label vectors (StrategyExecutions,
// SignalsEmitted, BreakerState) are left to the Prometheus scrape itself
// rather than flattened here, since testutil.ToFloat64 only handles a
// collector with exactly one child series.
func (e *Emitter) snapshot() Heartbeat {
	return Heartbeat{
		UptimeSeconds: time.Since(e.startedAt).Seconds(),
		MessagesTotal: testutil.ToFloat64(e.MessagesProcessed),
		PublishErrors: testutil.ToFloat64(e.PublishErrors),
	}
}

// EmitHeartbeat logs one aggregated snapshot. Intended to be called by a
// periodic timer task.
func (e *Emitter) EmitHeartbeat() {
	h := e.snapshot()
	e.logger.Info("heartbeat",
		zap.Float64("uptime_seconds", h.UptimeSeconds),
		zap.Float64("messages_total", h.MessagesTotal),
		zap.Float64("publish_errors", h.PublishErrors),
	)
}
