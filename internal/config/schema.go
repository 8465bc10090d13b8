package config

import "fmt"

// ParameterType is the scalar type a parameter schema entry constrains.
type ParameterType string

const (
	TypeInt    ParameterType = "int"
	TypeReal   ParameterType = "real"
	TypeBool   ParameterType = "bool"
	TypeString ParameterType = "string"
	TypeEnum   ParameterType = "enum"
)

// ParameterSchema describes one strategy parameter's type, bounds, and
// default.
type ParameterSchema struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Min         *float64      `json:"min,omitempty"`
	Max         *float64      `json:"max,omitempty"`
	Allowed     []string      `json:"allowed,omitempty"`
	Default     interface{}   `json:"default"`
	Description string        `json:"description"`
}

// StrategySchema is the full parameter schema for one strategy.
type StrategySchema []ParameterSchema

// ValidationError reports per-parameter schema violations from a config
// write. It is returned instead of a bare error so callers can render a
// field-by-field message list.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "config: validation failed"
	}
	return fmt.Sprintf("config: validation failed: %v", e.Messages)
}

func ptr(f float64) *float64 { return &f }

// Registry is the compiled-in schema and default parameters for every
// strategy this engine knows about.
var Registry = map[string]StrategySchema{
	"orderbook_skew": {
		{Name: "top_levels", Type: TypeInt, Min: ptr(1), Max: ptr(50), Default: 5, Description: "number of top-of-book levels to sum per side"},
		{Name: "buy_threshold", Type: TypeReal, Min: ptr(1.0), Default: 1.2, Description: "bid/ask ratio above which to buy"},
		{Name: "sell_threshold", Type: TypeReal, Max: ptr(1.0), Default: 0.8, Description: "bid/ask ratio below which to sell"},
		{Name: "min_spread_percent", Type: TypeReal, Min: ptr(0), Default: 0.1, Description: "max spread percent for a valid signal"},
		{Name: "base_confidence", Type: TypeReal, Min: ptr(0), Max: ptr(1), Default: 0.70, Description: "confidence floor before the threshold-distance bonus"},
	},
	"trade_momentum": {
		{Name: "buy_threshold", Type: TypeReal, Default: 0.5, Description: "momentum above which to buy"},
		{Name: "sell_threshold", Type: TypeReal, Default: -0.5, Description: "momentum below which to sell"},
	},
	"ticker_velocity": {
		{Name: "time_window", Type: TypeReal, Min: ptr(1), Default: 60.0, Description: "seconds of ticker history retained per symbol"},
		{Name: "buy_threshold", Type: TypeReal, Default: 0.5, Description: "percent-per-minute velocity above which to buy"},
		{Name: "sell_threshold", Type: TypeReal, Default: -0.5, Description: "percent-per-minute velocity below which to sell"},
	},
	"spread_liquidity": {
		{Name: "lookback_ticks", Type: TypeInt, Min: ptr(2), Default: 20, Description: "rolling buffer length in ticks"},
		{Name: "spread_threshold_bps", Type: TypeReal, Min: ptr(0), Default: 10.0, Description: "bps below which the book is considered tight"},
		{Name: "spread_ratio_threshold", Type: TypeReal, Min: ptr(1), Default: 2.5, Description: "current/average spread ratio that marks a regime shift"},
		{Name: "velocity_threshold", Type: TypeReal, Min: ptr(0), Default: 0.5, Description: "per-tick spread rate of change threshold"},
		{Name: "persistence_threshold_seconds", Type: TypeReal, Min: ptr(0), Default: 30.0, Description: "minimum widened-regime duration before narrowing is eligible"},
		{Name: "min_signal_interval_seconds", Type: TypeReal, Min: ptr(0), Default: 30.0, Description: "per-symbol signal rate limit"},
		{Name: "base_confidence", Type: TypeReal, Min: ptr(0), Max: ptr(1), Default: 0.70, Description: "confidence floor"},
	},
	"iceberg_detector": {
		{Name: "top_levels", Type: TypeInt, Min: ptr(1), Max: ptr(50), Default: 10, Description: "top-N levels tracked per side"},
		{Name: "max_symbols", Type: TypeInt, Min: ptr(1), Default: 100, Description: "maximum number of symbols tracked concurrently"},
		{Name: "history_window_seconds", Type: TypeReal, Min: ptr(1), Default: 300.0, Description: "per-level sample retention window"},
		{Name: "refill_speed_threshold_seconds", Type: TypeReal, Min: ptr(0), Default: 5.0, Description: "max elapsed time across a drain/refill triple"},
		{Name: "min_refill_count", Type: TypeInt, Min: ptr(1), Default: 3, Description: "cumulative refills required to fire a refill signal"},
		{Name: "consistency_threshold", Type: TypeReal, Min: ptr(0), Default: 0.15, Description: "coefficient-of-variation ceiling for consistent_size"},
		{Name: "persistence_threshold_seconds", Type: TypeReal, Min: ptr(0), Default: 120.0, Description: "continuous observation time required for anchor"},
		{Name: "level_proximity_pct", Type: TypeReal, Min: ptr(0), Default: 1.0, Description: "max percent distance from mid to still signal"},
		{Name: "min_signal_interval_seconds", Type: TypeReal, Min: ptr(0), Default: 30.0, Description: "per-symbol signal rate limit"},
		{Name: "base_confidence", Type: TypeReal, Min: ptr(0), Max: ptr(1), Default: 0.70, Description: "confidence floor for consistent_size"},
	},
}

// Defaults returns the compiled default parameter map for a strategy.
func Defaults(strategyID string) map[string]interface{} {
	schema, ok := Registry[strategyID]
	if !ok {
		return nil
	}
	out := make(map[string]interface{}, len(schema))
	for _, p := range schema {
		out[p.Name] = p.Default
	}
	return out
}

// Validate checks a parameter map against a strategy's schema: every
// supplied parameter must be known, correctly typed, and within bounds.
func Validate(strategyID string, parameters map[string]interface{}) error {
	schema, ok := Registry[strategyID]
	if !ok {
		return &ValidationError{Messages: []string{fmt.Sprintf("unknown strategy %q", strategyID)}}
	}
	byName := make(map[string]ParameterSchema, len(schema))
	for _, p := range schema {
		byName[p.Name] = p
	}

	var messages []string
	for name, value := range parameters {
		field, known := byName[name]
		if !known {
			messages = append(messages, fmt.Sprintf("%s: unknown parameter", name))
			continue
		}
		if msg := validateOne(field, value); msg != "" {
			messages = append(messages, fmt.Sprintf("%s: %s", name, msg))
		}
	}
	if len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	return nil
}

func validateOne(field ParameterSchema, value interface{}) string {
	switch field.Type {
	case TypeInt, TypeReal:
		f, ok := asFloat(value)
		if !ok {
			return "expected a number"
		}
		if field.Min != nil && f < *field.Min {
			return fmt.Sprintf("below minimum %v", *field.Min)
		}
		if field.Max != nil && f > *field.Max {
			return fmt.Sprintf("above maximum %v", *field.Max)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return "expected a bool"
		}
	case TypeString:
		if _, ok := value.(string); !ok {
			return "expected a string"
		}
	case TypeEnum:
		s, ok := value.(string)
		if !ok {
			return "expected a string"
		}
		for _, allowed := range field.Allowed {
			if allowed == s {
				return ""
			}
		}
		return fmt.Sprintf("must be one of %v", field.Allowed)
	}
	return ""
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
