package pricestate

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"courierdesk/pricing"
)

const ratesKey = "courierdesk:pricing:rates"

// RedisStore caches the current rate table.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) SetRates(ctx context.Context, cfg pricing.RateConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, ratesKey, data, 0).Err()
}

// GetRates returns nil, nil when nothing is cached.
func (r *RedisStore) GetRates(ctx context.Context) (*pricing.RateConfig, error) {
	data, err := r.client.Get(ctx, ratesKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg pricing.RateConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, ratesKey).Err()
}
