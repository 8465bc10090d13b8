// Package breaker wraps sony/gobreaker.CircuitBreaker with this engine's
// naming and gauge-reporting conventions: one breaker per strategy plus
// one for the publisher, each exposing its state through State() for a
// metrics gauge.
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned (the same value as gobreaker's own sentinel) when a call is
// rejected because the breaker is open.
var ErrOpen = gobreaker.ErrOpenState

// StateObserver is notified of breaker state transitions, used to drive
// the metrics gauge.
type StateObserver func(name string, state gobreaker.State)

// Breaker wraps one gobreaker.CircuitBreaker.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// Config holds the breaker tunables: consecutive-failure threshold,
// cooldown before a half-open probe, and the observation window.
type Config struct {
	Name                string
	MaxConsecutiveFails uint32
	CooldownPeriod      time.Duration
	OpenWindow          time.Duration
}

// DefaultConfig returns sane breaker defaults: 5 consecutive failures trips
// it, 30s cooldown before probing half-open.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxConsecutiveFails: 5,
		CooldownPeriod:      30 * time.Second,
		OpenWindow:          60 * time.Second,
	}
}

// New creates a breaker. observer, if non-nil, is invoked on every state
// transition so the caller can drive a metrics gauge.
func New(cfg Config, observer StateObserver) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.OpenWindow,
		Timeout:     cfg.CooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFails
		},
	}
	if observer != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			observer(name, to)
		}
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. When the breaker is open, fn is
// never called and ErrOpen is returned.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrOpen
	}
	return err
}

// State returns the breaker's current numeric state for metrics reporting:
// 0=closed, 1=half-open, 2=open.
func (b *Breaker) State() float64 {
	switch b.cb.State() {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
