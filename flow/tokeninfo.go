package flow

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is the subset of access-token claims the engine falls back to
// when a response omits an explicit expiry or subject.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// ParseTokenInfo decodes the claims of a JWT access token without
// verifying its signature. The values are used for cache bookkeeping only,
// never for authorization decisions.
func ParseTokenInfo(raw string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parsing access token: %w", err)
	}
	var info TokenInfo
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}
