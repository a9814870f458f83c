package pricestate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"courierdesk/access"
	"courierdesk/config"
	"courierdesk/pricing"
	"courierdesk/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewRedisStore(rdb)
}

var (
	admin  = access.Caller{UserID: "u-admin", Email: "admin@example.com", Role: access.Admin{}}
	viewer = access.Caller{UserID: "u-w", Role: access.Worker{Permissions: access.Permissions{ViewPricing: true}}}
	pricer = access.Caller{UserID: "u-p", Role: access.Worker{Permissions: access.Permissions{ManagePricing: true}}}
)

func newRates() pricing.RateConfig {
	r := pricing.DefaultRates()
	r.BaseRateVan = 3.50
	r.VATRate = 0.175
	return r
}

func TestGetFallsBackToDefaults(t *testing.T) {
	_, rs := testRedis(t)
	m := NewManager(testDB(t), rs, pricing.DefaultRates(), zaptest.NewLogger(t))
	if got := m.Get(context.Background()); got != pricing.DefaultRates() {
		t.Errorf("Get = %+v, want defaults", got)
	}
}

func TestUpdateWritesThrough(t *testing.T) {
	mr, rs := testRedis(t)
	db := testDB(t)
	m := NewManager(db, rs, pricing.DefaultRates(), zaptest.NewLogger(t))

	var gotOld, gotNew pricing.RateConfig
	var gotActor string
	m.OnChange(func(old, updated pricing.RateConfig, actor string) {
		gotOld, gotNew, gotActor = old, updated, actor
	})

	want := newRates()
	if _, err := m.Update(context.Background(), pricer, want); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := m.Get(context.Background()); got != want {
		t.Errorf("Get = %+v", got)
	}
	if !mr.Exists(ratesKey) {
		t.Error("rates not cached in redis")
	}
	if raw, err := db.GetSetting(store.SettingRateConfig); err != nil || raw == "" {
		t.Errorf("rates not in sql: %q, %v", raw, err)
	}
	if gotOld != pricing.DefaultRates() || gotNew != want || gotActor != "u-p" {
		t.Errorf("listener got %+v -> %+v by %q", gotOld, gotNew, gotActor)
	}
}

func TestUpdateRejects(t *testing.T) {
	m := NewManager(testDB(t), nil, pricing.DefaultRates(), zaptest.NewLogger(t))

	if _, err := m.Update(context.Background(), viewer, newRates()); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("view-only worker: err = %v", err)
	}
	bad := newRates()
	bad.UrgentMultiplier = 0
	if _, err := m.Update(context.Background(), admin, bad); !errors.Is(err, ErrInvalidRates) {
		t.Errorf("zero multiplier: err = %v", err)
	}
	if got := m.Get(context.Background()); got != pricing.DefaultRates() {
		t.Error("rejected update changed rates")
	}
}

func TestRedisDownReadsSQL(t *testing.T) {
	mr, rs := testRedis(t)
	m := NewManager(testDB(t), rs, pricing.DefaultRates(), zaptest.NewLogger(t))
	want := newRates()
	if _, err := m.Update(context.Background(), admin, want); err != nil {
		t.Fatalf("Update: %v", err)
	}
	mr.Close()
	if got := m.Get(context.Background()); got != want {
		t.Errorf("Get with redis down = %+v", got)
	}
}

func TestSyncRedisFromSQL(t *testing.T) {
	mr, rs := testRedis(t)
	db := testDB(t)

	// saved while no cache was configured
	plain := NewManager(db, nil, pricing.DefaultRates(), zaptest.NewLogger(t))
	want := newRates()
	if _, err := plain.Update(context.Background(), admin, want); err != nil {
		t.Fatal(err)
	}
	mr.Set(ratesKey, `{"base_rate_van":99}`)

	m := NewManager(db, rs, pricing.DefaultRates(), zaptest.NewLogger(t))
	if err := m.SyncRedisFromSQL(context.Background()); err != nil {
		t.Fatalf("SyncRedisFromSQL: %v", err)
	}
	cached, err := rs.GetRates(context.Background())
	if err != nil || cached == nil || *cached != want {
		t.Errorf("cached = %+v, %v", cached, err)
	}
}
