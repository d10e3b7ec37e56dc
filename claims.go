package sessionkeeper

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryInfo is the expiry instant decoded from an access token's claims.
// The zero value means the instant could not be determined.
//
// ExpiryInfo is derived on demand and must never be cached across a token
// rotation.
type ExpiryInfo struct {
	ExpiresAt time.Time
}

// Known reports whether an expiry instant was decoded.
func (e ExpiryInfo) Known() bool {
	return !e.ExpiresAt.IsZero()
}

// Remaining returns the time left until expiry relative to now. Negative
// means already expired. Meaningless when Known is false.
func (e ExpiryInfo) Remaining(now time.Time) time.Duration {
	return e.ExpiresAt.Sub(now)
}

// DecodeExpiry extracts the "exp" claim from an access token without
// verifying its signature. The server remains the authority on validity;
// this only drives client-side scheduling and freshness checks.
//
// Decoding fails soft: any malformed input yields a zero ExpiryInfo.
// Reactive callers should treat an unknown expiry as "assume expired";
// scheduling callers should leave proactive timers disarmed instead, so a
// decode bug never turns into a refresh storm.
func DecodeExpiry(token string) ExpiryInfo {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ExpiryInfo{}
	}
	if claims.ExpiresAt == nil {
		return ExpiryInfo{}
	}
	return ExpiryInfo{ExpiresAt: claims.ExpiresAt.Time}
}
