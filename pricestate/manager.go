// Package pricestate holds the process-wide rate table. SQL is the source of
// truth; redis is a read-through copy and may be absent or down.
package pricestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"courierdesk/access"
	"courierdesk/pricing"
	"courierdesk/store"
)

var (
	// ErrInvalidRates wraps RateConfig validation failures.
	ErrInvalidRates = errors.New("invalid rate table")
	// ErrStorage wraps SQL failures while saving. Callers may retry.
	ErrStorage = errors.New("rate storage unavailable")
)

// Listener is told about every saved rate change.
type Listener func(old, updated pricing.RateConfig, actor string)

// Manager provides write-through rate management: SQL first, then Redis.
type Manager struct {
	db       *store.DB
	redis    *RedisStore
	defaults pricing.RateConfig
	listener Listener
	log      *zap.Logger
}

// NewManager creates a rate manager. redis may be nil.
func NewManager(db *store.DB, redis *RedisStore, defaults pricing.RateConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{db: db, redis: redis, defaults: defaults, log: log}
}

// OnChange registers the listener. Call before serving.
func (m *Manager) OnChange(l Listener) { m.listener = l }

// Get returns the current rates, preferring redis, then SQL, then defaults.
// It never fails; a broken store degrades to the configured defaults.
func (m *Manager) Get(ctx context.Context) pricing.RateConfig {
	if m.redis != nil {
		cfg, err := m.redis.GetRates(ctx)
		if err == nil && cfg != nil {
			return *cfg
		}
		if err != nil {
			m.log.Debug("pricestate: redis read failed, using sql", zap.Error(err))
		}
	}
	cfg, err := m.fromSQL()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Warn("pricestate: sql read failed, using defaults", zap.Error(err))
		}
		return m.defaults
	}
	return cfg
}

func (m *Manager) fromSQL() (pricing.RateConfig, error) {
	raw, err := m.db.GetSetting(store.SettingRateConfig)
	if err != nil {
		return pricing.RateConfig{}, err
	}
	var cfg pricing.RateConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return pricing.RateConfig{}, fmt.Errorf("decode stored rates: %w", err)
	}
	return cfg, nil
}

// Update saves a new rate table. Only subsequent quotes see it.
func (m *Manager) Update(ctx context.Context, caller access.Caller, cfg pricing.RateConfig) (pricing.RateConfig, error) {
	if err := access.Authorize(caller, access.ActionManagePricing, "").Err(); err != nil {
		return pricing.RateConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return pricing.RateConfig{}, fmt.Errorf("%w: %w", ErrInvalidRates, err)
	}

	old := m.Get(ctx)
	data, err := json.Marshal(cfg)
	if err != nil {
		return pricing.RateConfig{}, err
	}
	if err := m.db.PutSetting(store.SettingRateConfig, string(data)); err != nil {
		return pricing.RateConfig{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	m.refreshRedis(ctx, cfg)

	m.log.Info("pricestate: rates updated", zap.String("actor", caller.Actor()),
		zap.Float64("van", cfg.BaseRateVan), zap.Float64("bike", cfg.BaseRateBike))
	if m.listener != nil {
		m.listener(old, cfg, caller.Actor())
	}
	return cfg, nil
}

// SyncRedisFromSQL rebuilds the redis copy from SQL. Called on startup.
func (m *Manager) SyncRedisFromSQL(ctx context.Context) error {
	if m.redis == nil {
		return nil
	}
	cfg, err := m.fromSQL()
	if errors.Is(err, store.ErrNotFound) {
		return m.redis.Clear(ctx)
	}
	if err != nil {
		return err
	}
	if err := m.redis.SetRates(ctx, cfg); err != nil {
		return err
	}
	m.log.Info("pricestate: synced rates to redis")
	return nil
}

func (m *Manager) refreshRedis(ctx context.Context, cfg pricing.RateConfig) {
	if m.redis == nil {
		return
	}
	if err := m.redis.SetRates(ctx, cfg); err != nil {
		// a stale copy would keep serving old rates
		m.log.Warn("pricestate: redis write failed, clearing", zap.Error(err))
		m.redis.Clear(ctx)
	}
}
