// Package strategy provides the microstructure strategies: stateless or
// bounded-state analyzers that turn a single market event into at most one
// trading signal.
package strategy

import (
	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
)

// Parameters is a resolved, read-only snapshot of a strategy's
// configuration for a single event dispatch. Strategies capture it at the
// start of dispatch; a mid-dispatch reconfiguration is never observed
// (ConfigManager swaps a new map in rather than mutating one in place).
type Parameters map[string]interface{}

// Float returns the named parameter as float64, or def if absent/wrong type.
func (p Parameters) Float(name string, def float64) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Int returns the named parameter as int, or def if absent/wrong type.
func (p Parameters) Int(name string, def int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// String returns the named parameter as string, or def if absent/wrong type.
func (p Parameters) String(name, def string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return def
}

// DepthStrategy processes depth snapshots.
type DepthStrategy interface {
	Name() string
	OnDepth(params Parameters, ev *eventmodel.DepthSnapshot) (*signalmodel.InternalSignal, error)
}

// TradeStrategy processes trades.
type TradeStrategy interface {
	Name() string
	OnTrade(params Parameters, ev *eventmodel.Trade) (*signalmodel.InternalSignal, error)
}

// TickerStrategy processes ticker updates.
type TickerStrategy interface {
	Name() string
	OnTicker(params Parameters, ev *eventmodel.TickerUpdate) (*signalmodel.InternalSignal, error)
}
