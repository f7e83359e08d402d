package remote

import (
	"strings"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// CheckToken inspects the bearer token locally before any request is made.
// The signature is not verified: only the server can do that. Tokens that are
// not JWTs are treated as opaque and accepted.
func CheckToken(token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return common.ErrMissingToken
	}
	if strings.Count(token, ".") != 2 {
		return nil
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return common.ErrInvalidToken
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return common.ErrTokenExpired
	}
	return nil
}

// TokenExpiry returns the exp claim of a JWT, if present.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
