// Package distance resolves driving distances between two addresses.
//
// The Adapter never returns an error: every provider failure collapses into
// an unknown distance so that quoting can fall back to an estimate.
package distance

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"courierdesk/store"
)

// Router is a route-distance provider. Client implements it.
type Router interface {
	Route(ctx context.Context, origin, destination string) (float64, error)
}

// Cache stores resolved distances. RedisCache implements it.
type Cache interface {
	Get(ctx context.Context, origin, destination string) (float64, bool)
	Set(ctx context.Context, origin, destination string, meters float64)
}

type Adapter struct {
	router  Router
	cache   Cache
	timeout time.Duration
	log     *zap.Logger
}

// NewAdapter wraps router. cache may be nil. A zero timeout defaults to 10s.
func NewAdapter(router Router, cache Cache, timeout time.Duration, log *zap.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{router: router, cache: cache, timeout: timeout, log: log}
}

// Resolve returns the driving distance in meters and whether it is known.
// The full address is tried first, then one postcode-only query.
func (a *Adapter) Resolve(ctx context.Context, origin, destination store.Address) (float64, bool) {
	origin, destination = origin.Normalized(), destination.Normalized()
	if origin.Postcode == "" || destination.Postcode == "" {
		return 0, false
	}

	attempts := [][2]string{
		{FullQuery(origin), FullQuery(destination)},
		{PostcodeQuery(origin), PostcodeQuery(destination)},
	}
	for i, q := range attempts {
		if i > 0 && q == attempts[0] {
			break
		}
		if m, ok := a.lookup(ctx, q[0], q[1]); ok {
			return m, true
		}
		if ctx.Err() != nil {
			break
		}
	}
	return 0, false
}

func (a *Adapter) lookup(ctx context.Context, origin, destination string) (float64, bool) {
	if a.cache != nil {
		if m, ok := a.cache.Get(ctx, origin, destination); ok {
			return m, true
		}
	}

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	m, err := a.router.Route(cctx, origin, destination)
	if err != nil {
		a.log.Info("distance: lookup failed",
			zap.String("origin", origin), zap.String("destination", destination), zap.Error(err))
		return 0, false
	}
	if a.cache != nil {
		a.cache.Set(ctx, origin, destination, m)
	}
	return m, true
}

// FullQuery joins the non-empty address parts into a provider query.
func FullQuery(a store.Address) string {
	var parts []string
	line := strings.TrimSpace(strings.Join([]string{a.Building, a.AddressLine}, " "))
	for _, p := range []string{line, a.Street, a.Town, a.City, a.County, a.Postcode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, "UK")
	return strings.Join(parts, ", ")
}

// PostcodeQuery is the degraded query used when the full address fails.
func PostcodeQuery(a store.Address) string {
	return store.NormalizePostcode(a.Postcode) + ", UK"
}
