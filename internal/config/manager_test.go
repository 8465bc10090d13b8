package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/config"
	"github.com/atlas-desktop/signal-engine/internal/configstore"
	"go.uber.org/zap"
)

// fakeStore is an in-memory stand-in for *configstore.Store, used to drive
// the priority-chain scenario without a real Mongo instance.
type fakeStore struct {
	global map[string]*configstore.StrategyConfig
	symbol map[string]*configstore.StrategyConfig
	audit  []configstore.AuditRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		global: map[string]*configstore.StrategyConfig{},
		symbol: map[string]*configstore.StrategyConfig{},
	}
}

func (f *fakeStore) GetGlobal(ctx context.Context, strategyID string) (*configstore.StrategyConfig, error) {
	return f.global[strategyID], nil
}

func (f *fakeStore) GetSymbol(ctx context.Context, strategyID, symbol string) (*configstore.StrategyConfig, error) {
	return f.symbol[strategyID+"|"+symbol], nil
}

func (f *fakeStore) Upsert(ctx context.Context, cfg configstore.StrategyConfig) error {
	if cfg.Symbol == "" {
		f.global[cfg.StrategyID] = &cfg
	} else {
		f.symbol[cfg.StrategyID+"|"+cfg.Symbol] = &cfg
	}
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, strategyID, symbol string) error {
	if symbol == "" {
		delete(f.global, strategyID)
	} else {
		delete(f.symbol, strategyID+"|"+symbol)
	}
	return nil
}

func (f *fakeStore) ListStrategies(ctx context.Context) (map[string]struct {
	GlobalOverride  bool
	SymbolOverrides int
}, error) {
	return nil, nil
}

func (f *fakeStore) AppendAudit(ctx context.Context, rec configstore.AuditRecord) error {
	f.audit = append(f.audit, rec)
	return nil
}

func (f *fakeStore) Audit(ctx context.Context, strategyID, symbol string, limit int, before *time.Time) ([]configstore.AuditRecord, error) {
	return f.audit, nil
}

// TestConfigPriorityFallthrough walks the resolution chain end to end:
// symbol override beats global, global beats env, env beats compiled
// default.
func TestConfigPriorityFallthrough(t *testing.T) {
	t.Setenv("ORDERBOOK_SKEW_BUY_THRESHOLD", "1.2")

	store := newFakeStore()
	mgr := config.NewManager(store, time.Minute, zap.NewNop())

	store.global["orderbook_skew"] = &configstore.StrategyConfig{
		StrategyID: "orderbook_skew",
		Parameters: map[string]interface{}{"buy_threshold": 1.3},
		Version:    1,
	}

	resolved := mgr.Get(context.Background(), "orderbook_skew", "BTCUSDT")
	if resolved.Source != config.SourceDBGlobal {
		t.Fatalf("source = %v, want db-global", resolved.Source)
	}
	if resolved.Parameters["buy_threshold"] != 1.3 {
		t.Errorf("buy_threshold = %v, want 1.3", resolved.Parameters["buy_threshold"])
	}

	mgr.Refresh()
	store.symbol["orderbook_skew|BTCUSDT"] = &configstore.StrategyConfig{
		StrategyID: "orderbook_skew",
		Symbol:     "BTCUSDT",
		Parameters: map[string]interface{}{"buy_threshold": 1.5},
		Version:    1,
	}
	resolved = mgr.Get(context.Background(), "orderbook_skew", "BTCUSDT")
	if resolved.Source != config.SourceDBSymbol || !resolved.IsOverride {
		t.Fatalf("expected db-symbol override, got source=%v override=%v", resolved.Source, resolved.IsOverride)
	}
	if resolved.Parameters["buy_threshold"] != 1.5 {
		t.Errorf("buy_threshold = %v, want 1.5", resolved.Parameters["buy_threshold"])
	}

	delete(store.symbol, "orderbook_skew|BTCUSDT")
	mgr.Refresh()
	resolved = mgr.Get(context.Background(), "orderbook_skew", "BTCUSDT")
	if resolved.Source != config.SourceDBGlobal {
		t.Fatalf("expected fallback to db-global, got %v", resolved.Source)
	}

	delete(store.global, "orderbook_skew")
	mgr.Refresh()
	resolved = mgr.Get(context.Background(), "orderbook_skew", "BTCUSDT")
	if resolved.Source != config.SourceEnv {
		t.Fatalf("expected fallback to env, got %v", resolved.Source)
	}
	if resolved.Parameters["buy_threshold"] != 1.2 {
		t.Errorf("buy_threshold = %v, want 1.2 from env", resolved.Parameters["buy_threshold"])
	}
}

func TestConfigSetRejectsInvalidParameters(t *testing.T) {
	store := newFakeStore()
	mgr := config.NewManager(store, time.Minute, zap.NewNop())

	err := mgr.Set(context.Background(), "orderbook_skew", "", map[string]interface{}{
		"buy_threshold": "not-a-number",
	}, "tester", "bad value", false)
	if err == nil {
		t.Fatalf("expected a validation error")
	}
}

func TestConfigSetAppendsAuditRecord(t *testing.T) {
	store := newFakeStore()
	mgr := config.NewManager(store, time.Minute, zap.NewNop())

	err := mgr.Set(context.Background(), "orderbook_skew", "", map[string]interface{}{
		"buy_threshold": 1.4,
	}, "tester", "tuning", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.audit) != 1 {
		t.Fatalf("audit records = %d, want 1", len(store.audit))
	}
	if store.audit[0].Action != configstore.AuditCreate {
		t.Errorf("action = %v, want create", store.audit[0].Action)
	}
}
