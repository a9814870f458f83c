package protocol

import "time"

// Status changes matter to downstream dispatch for longer than edits do.
var defaultTTLs = map[string]time.Duration{
	TypeBookingCreated:       24 * time.Hour,
	TypeBookingStatusChanged: 24 * time.Hour,
	TypeBookingDeleted:       24 * time.Hour,
	TypeBookingUpdated:       6 * time.Hour,
	TypeRatesChanged:         time.Hour,
}

// FallbackTTL is used when no specific TTL is configured.
const FallbackTTL = time.Hour

// DefaultTTLFor returns the default TTL for a message type.
func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

// IsExpired returns true if the envelope has passed its expiry time.
func IsExpired(env *Envelope) bool {
	if env.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(env.ExpiresAt)
}
