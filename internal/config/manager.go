// Package config is the runtime configuration manager: priority-resolved
// per-strategy and per-symbol parameters, backed by the document store in
// internal/configstore, cached with a short TTL, and auditable.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/configstore"
	"github.com/atlas-desktop/signal-engine/pkg/utils"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Source identifies which layer of the priority chain produced a resolved
// record.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDBSymbol Source = "db-symbol"
	SourceDBGlobal Source = "db-global"
	SourceEnv      Source = "env"
	SourceDefault  Source = "default"
)

// Resolved is the record Get returns: a fully-resolved parameter map plus
// its provenance.
type Resolved struct {
	StrategyID string                 `json:"strategy_id"`
	Symbol     string                 `json:"symbol,omitempty"`
	Parameters map[string]interface{} `json:"parameters"`
	Source     Source                 `json:"source"`
	IsOverride bool                   `json:"is_override"`
	Version    int                    `json:"version"`
}

// Store is the persistence interface the manager depends on; satisfied by
// *configstore.Store. Defined here so the manager can run degraded (store
// nil) when the document store is unreachable at startup.
type Store interface {
	GetGlobal(ctx context.Context, strategyID string) (*configstore.StrategyConfig, error)
	GetSymbol(ctx context.Context, strategyID, symbol string) (*configstore.StrategyConfig, error)
	Upsert(ctx context.Context, cfg configstore.StrategyConfig) error
	Delete(ctx context.Context, strategyID, symbol string) error
	ListStrategies(ctx context.Context) (map[string]struct {
		GlobalOverride  bool
		SymbolOverrides int
	}, error)
	AppendAudit(ctx context.Context, rec configstore.AuditRecord) error
	Audit(ctx context.Context, strategyID, symbol string, limit int, before *time.Time) ([]configstore.AuditRecord, error)
}

// Manager resolves per-strategy, per-symbol parameters through the
// priority chain: cache, symbol override, global record, environment,
// compiled defaults.
type Manager struct {
	store      Store
	cache      *gocache.Cache
	logger     *zap.Logger
	opDeadline time.Duration
}

// NewManager creates a ConfigManager. store may be nil, in which case
// resolution falls through straight to env/defaults, matching the
// "document store unreachable" degraded mode.
func NewManager(store Store, cacheTTL time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		store:      store,
		cache:      gocache.New(cacheTTL, cacheTTL*2),
		logger:     logger.Named("config_manager"),
		opDeadline: 5 * time.Second,
	}
}

func cacheKey(strategyID, symbol string) string {
	if symbol == "" {
		return strategyID + "|global"
	}
	return strategyID + "|" + symbol
}

// Get resolves a strategy's parameters through the full priority chain. It
// never errors: an unreachable store or a missing record simply falls
// through to the next layer, bottoming out at compiled defaults.
func (m *Manager) Get(ctx context.Context, strategyID, symbol string) Resolved {
	key := cacheKey(strategyID, symbol)
	if cached, ok := m.cache.Get(key); ok {
		resolved := cached.(Resolved)
		return resolved
	}

	resolved := m.resolve(ctx, strategyID, symbol)
	m.cache.Set(key, resolved, gocache.DefaultExpiration)
	return resolved
}

func (m *Manager) resolve(ctx context.Context, strategyID, symbol string) Resolved {
	opCtx, cancel := context.WithTimeout(ctx, m.opDeadline)
	defer cancel()

	if m.store != nil && symbol != "" {
		if cfg, err := m.store.GetSymbol(opCtx, strategyID, symbol); err != nil {
			m.logger.Warn("symbol config lookup failed, falling through", zap.Error(err), zap.String("strategy_id", strategyID))
		} else if cfg != nil {
			return Resolved{
				StrategyID: strategyID,
				Symbol:     symbol,
				Parameters: mergeDefaults(strategyID, cfg.Parameters),
				Source:     SourceDBSymbol,
				IsOverride: true,
				Version:    cfg.Version,
			}
		}
	}

	if m.store != nil {
		if cfg, err := m.store.GetGlobal(opCtx, strategyID); err != nil {
			m.logger.Warn("global config lookup failed, falling through", zap.Error(err), zap.String("strategy_id", strategyID))
		} else if cfg != nil {
			return Resolved{
				StrategyID: strategyID,
				Symbol:     symbol,
				Parameters: mergeDefaults(strategyID, cfg.Parameters),
				Source:     SourceDBGlobal,
				Version:    cfg.Version,
			}
		}
	}

	if envParams := m.fromEnv(strategyID); len(envParams) > 0 {
		return Resolved{
			StrategyID: strategyID,
			Symbol:     symbol,
			Parameters: mergeDefaults(strategyID, envParams),
			Source:     SourceEnv,
		}
	}

	return Resolved{
		StrategyID: strategyID,
		Symbol:     symbol,
		Parameters: Defaults(strategyID),
		Source:     SourceDefault,
	}
}

// fromEnv reads SNAKE_UPPER env vars, e.g. ORDERBOOK_SKEW_BUY_THRESHOLD
// for strategy "orderbook_skew" parameter "buy_threshold".
func (m *Manager) fromEnv(strategyID string) map[string]interface{} {
	schema, ok := Registry[strategyID]
	if !ok {
		return nil
	}
	prefix := strings.ToUpper(strategyID)
	out := map[string]interface{}{}
	for _, field := range schema {
		envName := prefix + "_" + strings.ToUpper(field.Name)
		raw, present := os.LookupEnv(envName)
		if !present {
			continue
		}
		value, err := parseEnvValue(field, raw)
		if err != nil {
			m.logger.Warn("ignoring malformed env override", zap.String("env", envName), zap.Error(err))
			continue
		}
		out[field.Name] = value
	}
	return out
}

func parseEnvValue(field ParameterSchema, raw string) (interface{}, error) {
	switch field.Type {
	case TypeInt:
		return strconv.Atoi(raw)
	case TypeReal:
		return strconv.ParseFloat(raw, 64)
	case TypeBool:
		return strconv.ParseBool(raw)
	default:
		return raw, nil
	}
}

func mergeDefaults(strategyID string, overrides map[string]interface{}) map[string]interface{} {
	merged := Defaults(strategyID)
	if merged == nil {
		merged = map[string]interface{}{}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Set validates and persists a global (symbol == "") or symbol-specific
// parameter set, bumps version, writes an audit record, and invalidates
// the affected cache key.
func (m *Manager) Set(ctx context.Context, strategyID, symbol string, parameters map[string]interface{}, changedBy, reason string, validateOnly bool) error {
	if err := Validate(strategyID, parameters); err != nil {
		return err
	}
	if validateOnly {
		return nil
	}
	if m.store == nil {
		return fmt.Errorf("config: document store unreachable, cannot persist")
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opDeadline)
	defer cancel()

	var oldParams map[string]interface{}
	if symbol == "" {
		if existing, err := m.store.GetGlobal(opCtx, strategyID); err == nil && existing != nil {
			oldParams = existing.Parameters
		}
	} else if existing, err := m.store.GetSymbol(opCtx, strategyID, symbol); err == nil && existing != nil {
		oldParams = existing.Parameters
	}

	action := configstore.AuditCreate
	if oldParams != nil {
		action = configstore.AuditUpdate
	}

	if err := m.store.Upsert(opCtx, configstore.StrategyConfig{
		StrategyID: strategyID,
		Symbol:     symbol,
		Parameters: parameters,
		UpdatedAt:  time.Now().UTC(),
		UpdatedBy:  changedBy,
	}); err != nil {
		return fmt.Errorf("config: set: %w", err)
	}

	if err := m.store.AppendAudit(opCtx, configstore.AuditRecord{
		ID:            utils.GenerateAuditID(),
		StrategyID:    strategyID,
		Symbol:        symbol,
		Action:        action,
		OldParameters: oldParams,
		NewParameters: parameters,
		ChangedBy:     changedBy,
		ChangedAt:     time.Now().UTC(),
		Reason:        reason,
	}); err != nil {
		m.logger.Error("audit append failed after successful set", zap.Error(err))
	}

	m.cache.Delete(cacheKey(strategyID, symbol))
	return nil
}

// Delete removes a global or symbol-specific config record and invalidates
// its cache entry.
func (m *Manager) Delete(ctx context.Context, strategyID, symbol, changedBy, reason string) error {
	if m.store == nil {
		return fmt.Errorf("config: document store unreachable, cannot persist")
	}
	opCtx, cancel := context.WithTimeout(ctx, m.opDeadline)
	defer cancel()

	var oldParams map[string]interface{}
	if symbol == "" {
		if existing, err := m.store.GetGlobal(opCtx, strategyID); err == nil && existing != nil {
			oldParams = existing.Parameters
		}
	} else if existing, err := m.store.GetSymbol(opCtx, strategyID, symbol); err == nil && existing != nil {
		oldParams = existing.Parameters
	}

	if err := m.store.Delete(opCtx, strategyID, symbol); err != nil {
		return fmt.Errorf("config: delete: %w", err)
	}

	if err := m.store.AppendAudit(opCtx, configstore.AuditRecord{
		ID:            utils.GenerateAuditID(),
		StrategyID:    strategyID,
		Symbol:        symbol,
		Action:        configstore.AuditDelete,
		OldParameters: oldParams,
		ChangedBy:     changedBy,
		ChangedAt:     time.Now().UTC(),
		Reason:        reason,
	}); err != nil {
		m.logger.Error("audit append failed after successful delete", zap.Error(err))
	}

	m.cache.Delete(cacheKey(strategyID, symbol))
	return nil
}

// StrategyOverview summarizes one strategy's override counts for
// list-strategies().
type StrategyOverview struct {
	StrategyID      string `json:"strategy_id"`
	GlobalOverride  bool   `json:"global_override"`
	SymbolOverrides int    `json:"symbol_overrides"`
}

// ListStrategies enumerates every registered strategy with its override
// counts. Strategies with no db record at all still appear, with zero
// counts, since the schema registry is the source of truth for "registered".
func (m *Manager) ListStrategies(ctx context.Context) ([]StrategyOverview, error) {
	overrides := map[string]struct {
		GlobalOverride  bool
		SymbolOverrides int
	}{}
	if m.store != nil {
		opCtx, cancel := context.WithTimeout(ctx, m.opDeadline)
		defer cancel()
		var err error
		overrides, err = m.store.ListStrategies(opCtx)
		if err != nil {
			m.logger.Warn("list strategies degraded: store unreachable", zap.Error(err))
			overrides = map[string]struct {
				GlobalOverride  bool
				SymbolOverrides int
			}{}
		}
	}

	out := make([]StrategyOverview, 0, len(Registry))
	for strategyID := range Registry {
		entry := overrides[strategyID]
		out = append(out, StrategyOverview{
			StrategyID:      strategyID,
			GlobalOverride:  entry.GlobalOverride,
			SymbolOverrides: entry.SymbolOverrides,
		})
	}
	return out, nil
}

// Audit returns a paginated audit history for a (strategy, symbol).
func (m *Manager) Audit(ctx context.Context, strategyID, symbol string, limit int, before *time.Time) ([]configstore.AuditRecord, error) {
	if m.store == nil {
		return nil, fmt.Errorf("config: document store unreachable")
	}
	opCtx, cancel := context.WithTimeout(ctx, m.opDeadline)
	defer cancel()
	return m.store.Audit(opCtx, strategyID, symbol, limit, before)
}

// Refresh force-invalidates the entire cache.
func (m *Manager) Refresh() {
	m.cache.Flush()
}
