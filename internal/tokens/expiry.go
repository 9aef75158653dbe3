package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SkewMargin is how long before its exp claim a token is already treated as
// expired, to absorb clock differences with the API.
const SkewMargin = 10 * time.Second

// DecodeExpiry reads the exp claim of a JWT without verifying its signature.
// Signature checks belong to the API; the client only needs the timestamp.
// The parser still rejects a header whose alg is missing or unregistered, so
// such tokens report an error and count as expired.
func DecodeExpiry(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, ErrNoToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}

// expiredAt decides expiry for a loaded pair at now.
// A known ExpiresAt is authoritative, boundary included. Otherwise the JWT
// exp claim minus SkewMargin is used, and anything undecodable is expired.
func expiredAt(pair *Pair, now time.Time) bool {
	if pair == nil {
		return true
	}

	if pair.ExpiresAt != 0 {
		return now.UnixMilli() >= pair.ExpiresAt
	}

	exp, err := DecodeExpiry(pair.AccessToken)
	if err != nil {
		return true
	}
	return !now.Before(exp.Add(-SkewMargin))
}
