// Package configstore is the document-store persistence layer backing the
// runtime configuration manager: global and per-symbol strategy parameter
// records, plus an append-only audit trail.
package configstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collGlobal = "strategy_configs_global"
	collSymbol = "strategy_configs_symbol"
	collAudit  = "strategy_config_audit"
)

// StrategyConfig is one persisted parameter record, global or per-symbol.
type StrategyConfig struct {
	StrategyID string                 `bson:"strategy_id" json:"strategy_id"`
	Symbol     string                 `bson:"symbol,omitempty" json:"symbol,omitempty"`
	Parameters map[string]interface{} `bson:"parameters" json:"parameters"`
	Version    int                    `bson:"version" json:"version"`
	UpdatedAt  time.Time              `bson:"updated_at" json:"updated_at"`
	UpdatedBy  string                 `bson:"updated_by" json:"updated_by"`
}

// AuditAction is the kind of mutation an audit record describes.
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// AuditRecord is one append-only entry in the audit trail.
type AuditRecord struct {
	ID            string                 `bson:"_id" json:"id"`
	StrategyID    string                 `bson:"strategy_id" json:"strategy_id"`
	Symbol        string                 `bson:"symbol,omitempty" json:"symbol,omitempty"`
	Action        AuditAction            `bson:"action" json:"action"`
	OldParameters map[string]interface{} `bson:"old_parameters,omitempty" json:"old_parameters,omitempty"`
	NewParameters map[string]interface{} `bson:"new_parameters,omitempty" json:"new_parameters,omitempty"`
	ChangedBy     string                 `bson:"changed_by" json:"changed_by"`
	ChangedAt     time.Time              `bson:"changed_at" json:"changed_at"`
	Reason        string                 `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Store is the Mongo-backed persistence layer. Every operation takes a
// deadline-bound context; callers are expected to wrap calls with a
// circuit breaker.
type Store struct {
	global *mongo.Collection
	symbol *mongo.Collection
	audit  *mongo.Collection
}

// New connects to Mongo and ensures the collection indexes exist.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("configstore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("configstore: ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		global: db.Collection(collGlobal),
		symbol: db.Collection(collSymbol),
		audit:  db.Collection(collAudit),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.global.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "strategy_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("configstore: global index: %w", err)
	}

	_, err = s.symbol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "strategy_id", Value: 1}, {Key: "symbol", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("configstore: symbol index: %w", err)
	}

	_, err = s.audit.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "strategy_id", Value: 1}, {Key: "symbol", Value: 1}, {Key: "changed_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("configstore: audit index: %w", err)
	}
	return nil
}

// GetGlobal fetches the global config record for a strategy, if any.
func (s *Store) GetGlobal(ctx context.Context, strategyID string) (*StrategyConfig, error) {
	var cfg StrategyConfig
	err := s.global.FindOne(ctx, bson.M{"strategy_id": strategyID}).Decode(&cfg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configstore: get global: %w", err)
	}
	return &cfg, nil
}

// GetSymbol fetches the symbol-specific override, if any.
func (s *Store) GetSymbol(ctx context.Context, strategyID, symbol string) (*StrategyConfig, error) {
	var cfg StrategyConfig
	err := s.symbol.FindOne(ctx, bson.M{"strategy_id": strategyID, "symbol": symbol}).Decode(&cfg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configstore: get symbol: %w", err)
	}
	return &cfg, nil
}

// Upsert writes a global (symbol == "") or symbol-specific config record,
// bumping version by one.
func (s *Store) Upsert(ctx context.Context, cfg StrategyConfig) error {
	coll := s.collectionFor(cfg.Symbol)
	filter := s.filterFor(cfg.StrategyID, cfg.Symbol)

	update := bson.M{
		"$set": bson.M{
			"strategy_id": cfg.StrategyID,
			"symbol":      cfg.Symbol,
			"parameters":  cfg.Parameters,
			"updated_at":  cfg.UpdatedAt,
			"updated_by":  cfg.UpdatedBy,
		},
		"$inc": bson.M{"version": 1},
	}
	_, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("configstore: upsert: %w", err)
	}
	return nil
}

// Delete removes a global or symbol-specific config record.
func (s *Store) Delete(ctx context.Context, strategyID, symbol string) error {
	coll := s.collectionFor(symbol)
	_, err := coll.DeleteOne(ctx, s.filterFor(strategyID, symbol))
	if err != nil {
		return fmt.Errorf("configstore: delete: %w", err)
	}
	return nil
}

// ListStrategies enumerates every distinct strategy-id across both
// collections, with override counts for list-strategies().
func (s *Store) ListStrategies(ctx context.Context) (map[string]struct {
	GlobalOverride  bool
	SymbolOverrides int
}, error) {
	result := make(map[string]struct {
		GlobalOverride  bool
		SymbolOverrides int
	})

	globalCur, err := s.global.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("configstore: list global: %w", err)
	}
	defer globalCur.Close(ctx)
	for globalCur.Next(ctx) {
		var cfg StrategyConfig
		if err := globalCur.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("configstore: decode global: %w", err)
		}
		entry := result[cfg.StrategyID]
		entry.GlobalOverride = true
		result[cfg.StrategyID] = entry
	}

	symbolCur, err := s.symbol.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("configstore: list symbol: %w", err)
	}
	defer symbolCur.Close(ctx)
	for symbolCur.Next(ctx) {
		var cfg StrategyConfig
		if err := symbolCur.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("configstore: decode symbol: %w", err)
		}
		entry := result[cfg.StrategyID]
		entry.SymbolOverrides++
		result[cfg.StrategyID] = entry
	}

	return result, nil
}

// AppendAudit writes one append-only audit record.
func (s *Store) AppendAudit(ctx context.Context, rec AuditRecord) error {
	_, err := s.audit.InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("configstore: append audit: %w", err)
	}
	return nil
}

// Audit returns the most recent audit records for a (strategy, symbol),
// newest first, bounded by limit and optionally paginated before a cursor
// timestamp.
func (s *Store) Audit(ctx context.Context, strategyID, symbol string, limit int, before *time.Time) ([]AuditRecord, error) {
	filter := bson.M{"strategy_id": strategyID}
	if symbol != "" {
		filter["symbol"] = symbol
	}
	if before != nil {
		filter["changed_at"] = bson.M{"$lt": *before}
	}

	opts := options.Find().SetSort(bson.D{{Key: "changed_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.audit.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("configstore: audit query: %w", err)
	}
	defer cur.Close(ctx)

	var records []AuditRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("configstore: audit decode: %w", err)
	}
	return records, nil
}

func (s *Store) collectionFor(symbol string) *mongo.Collection {
	if symbol == "" {
		return s.global
	}
	return s.symbol
}

func (s *Store) filterFor(strategyID, symbol string) bson.M {
	if symbol == "" {
		return bson.M{"strategy_id": strategyID}
	}
	return bson.M{"strategy_id": strategyID, "symbol": symbol}
}
