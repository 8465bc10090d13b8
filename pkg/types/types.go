// Package types provides shared type definitions for the signal engine.
package types

import "github.com/shopspring/decimal"

// OrderBookLevel represents a single price level in an order book snapshot.
type OrderBookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// PressureWindow identifies one of the rolling lookback windows the depth
// analyzer keeps pressure history for.
type PressureWindow string

const (
	PressureWindow1m  PressureWindow = "1m"
	PressureWindow5m  PressureWindow = "5m"
	PressureWindow15m PressureWindow = "15m"
)

// Duration returns the lookback duration for the window.
func (w PressureWindow) Duration() (seconds int64, ok bool) {
	switch w {
	case PressureWindow1m:
		return 60, true
	case PressureWindow5m:
		return 300, true
	case PressureWindow15m:
		return 900, true
	default:
		return 0, false
	}
}
